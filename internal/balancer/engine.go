package balancer

import (
	"context"
	"errors"
	"time"

	"keybalancer-go/internal/logging"
	"keybalancer-go/internal/monitoring"
	log "github.com/sirupsen/logrus"
)

var (
	// ErrCheckInFlight means the user already has a probe outstanding.
	// Retryable: callers should surface "please wait", not a failure.
	ErrCheckInFlight = errors.New("a balance check is already in flight for this user")
	// ErrUnsupportedProvider means no strategy exists for the provider id.
	ErrUnsupportedProvider = errors.New("no balancer strategy for provider")
	// ErrProbeFailed wraps transport-level failures (DNS, refused, TLS,
	// timeout without a defined fallback).
	ErrProbeFailed = errors.New("probe failed")
)

// Engine is the classification core: registry dispatch, per-user throttling
// and the outcome taxonomy around each outbound probe.
type Engine struct {
	registry *Registry
	throttle *Throttle
}

func NewEngine(registry *Registry) *Engine {
	return &Engine{registry: registry, throttle: NewThrottle()}
}

// Registry exposes the provider table for support lookups.
func (e *Engine) Registry() *Registry { return e.registry }

// Classify probes token against providerID on behalf of userID.
// Returns ErrCheckInFlight when the user's throttle slot is taken,
// ErrUnsupportedProvider when the registry has no strategy, and a wrapped
// ErrProbeFailed on transport trouble. Every recognizable provider answer
// comes back as a Classification value, never an error.
func (e *Engine) Classify(ctx context.Context, providerID, token, userID string) (Classification, error) {
	if !e.throttle.TryAcquire(userID) {
		monitoring.ThrottleRejectionsTotal.Inc()
		return Classification{}, ErrCheckInFlight
	}
	defer e.throttle.Release(userID)

	strategy := e.registry.Resolve(providerID)
	if strategy == nil {
		return Classification{}, ErrUnsupportedProvider
	}

	start := time.Now()
	result, err := strategy.Check(ctx, token)
	elapsed := time.Since(start)

	if err != nil {
		monitoring.ProbesTotal.WithLabelValues(providerID, "error").Inc()
		log.WithFields(log.Fields{
			"provider":   providerID,
			"user":       userID,
			"latency_ms": logging.DurationMS(elapsed),
		}).WithError(err).Warn("balance probe failed")
		return Classification{}, errors.Join(ErrProbeFailed, err)
	}

	monitoring.ProbesTotal.WithLabelValues(providerID, result.Kind.String()).Inc()
	monitoring.ProbeDuration.WithLabelValues(providerID).Observe(elapsed.Seconds())
	log.WithFields(log.Fields{
		"provider":   providerID,
		"user":       userID,
		"outcome":    result.Kind.String(),
		"latency_ms": logging.DurationMS(elapsed),
	}).Info("balance probe settled")
	return result, nil
}
