package balancer

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestThrottle(t *testing.T) {
	th := NewThrottle()

	assert.True(t, th.TryAcquire("alice"))
	assert.False(t, th.TryAcquire("alice"))
	// Other users are not affected.
	assert.True(t, th.TryAcquire("bob"))

	th.Release("alice")
	assert.True(t, th.TryAcquire("alice"))

	// Releasing an unheld slot is harmless.
	th.Release("nobody")
}

func TestThrottleConcurrent(t *testing.T) {
	th := NewThrottle()

	const attempts = 64
	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if th.TryAcquire("shared") {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, admitted)
}
