package balancer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockingStrategy parks until released so tests can hold a probe in flight.
type blockingStrategy struct {
	entered chan struct{}
	release chan struct{}
	result  Classification
}

func (b *blockingStrategy) Check(ctx context.Context, token string) (Classification, error) {
	close(b.entered)
	select {
	case <-b.release:
		return b.result, nil
	case <-ctx.Done():
		return Classification{}, ctx.Err()
	}
}

func testRegistry(strategies map[string]Strategy) *Registry {
	return &Registry{strategies: strategies}
}

func TestEngineUnsupportedProvider(t *testing.T) {
	e := NewEngine(testRegistry(map[string]Strategy{}))
	_, err := e.Classify(context.Background(), "nobody.example", "tok", "alice")
	assert.ErrorIs(t, err, ErrUnsupportedProvider)
}

func TestEngineSecondConcurrentCheckRejected(t *testing.T) {
	blocking := &blockingStrategy{
		entered: make(chan struct{}),
		release: make(chan struct{}),
		result:  Paid("Paid Key"),
	}
	e := NewEngine(testRegistry(map[string]Strategy{"slow.example": blocking}))

	type outcome struct {
		c   Classification
		err error
	}
	first := make(chan outcome, 1)
	go func() {
		c, err := e.Classify(context.Background(), "slow.example", "tok", "alice")
		first <- outcome{c, err}
	}()

	select {
	case <-blocking.entered:
	case <-time.After(time.Second):
		t.Fatal("probe never started")
	}

	// Same user, probe still in flight: rejected without queueing.
	_, err := e.Classify(context.Background(), "slow.example", "tok2", "alice")
	assert.ErrorIs(t, err, ErrCheckInFlight)

	close(blocking.release)
	got := <-first
	require.NoError(t, got.err)
	assert.Equal(t, Paid("Paid Key"), got.c)

	// Slot is free again once the probe settled.
	e2 := &blockingStrategy{entered: make(chan struct{}), release: make(chan struct{}), result: Free("Free Key")}
	close(e2.release)
	e.registry.strategies["slow.example"] = e2
	c, err := e.Classify(context.Background(), "slow.example", "tok3", "alice")
	require.NoError(t, err)
	assert.Equal(t, Free("Free Key"), c)
}

func TestEngineDifferentUsersDoNotBlock(t *testing.T) {
	blocking := &blockingStrategy{
		entered: make(chan struct{}),
		release: make(chan struct{}),
		result:  Paid("Paid Key"),
	}
	fast := &blockingStrategy{entered: make(chan struct{}), release: make(chan struct{}), result: Balance(1)}
	close(fast.release)

	e := NewEngine(testRegistry(map[string]Strategy{
		"slow.example": blocking,
		"fast.example": fast,
	}))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = e.Classify(context.Background(), "slow.example", "tok", "alice")
	}()
	<-blocking.entered

	c, err := e.Classify(context.Background(), "fast.example", "tok", "bob")
	require.NoError(t, err)
	assert.Equal(t, Balance(1), c)

	close(blocking.release)
	wg.Wait()
}

func TestEngineWrapsTransportErrors(t *testing.T) {
	failing := NewBasicStrategy(newTestDispatcher(), "down", "http://127.0.0.1:1", BasicConfig{})
	e := NewEngine(testRegistry(map[string]Strategy{"down.example": failing}))

	_, err := e.Classify(context.Background(), "down.example", "tok", "alice")
	assert.ErrorIs(t, err, ErrProbeFailed)
}
