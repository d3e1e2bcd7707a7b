package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerConfig holds circuit breaker parameters for one upstream.
type BreakerConfig struct {
	Upstream         string
	FailureThreshold int
	Timeout          time.Duration
	OnStateChange    func(upstream string, from, to gobreaker.State)
}

// Breaker fails fast while an upstream keeps failing. A nil *Breaker is valid and always calls through.
type Breaker struct {
	cb *gobreaker.CircuitBreaker
}

// NewBreaker opens after FailureThreshold consecutive failures and lets one probe through
// after Timeout.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	threshold := uint32(cfg.FailureThreshold)
	return &Breaker{cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Upstream,
		MaxRequests: 1,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: cfg.OnStateChange,
	})}
}

// Execute runs fn through the breaker. Not-found replies and caller cancellation are
// returned to the caller without counting against the upstream.
func (b *Breaker) Execute(fn func() error) error {
	if b == nil {
		return fn()
	}
	var passthrough error
	_, err := b.cb.Execute(func() (interface{}, error) {
		if err := fn(); err != nil {
			if !countsAsFailure(err) {
				passthrough = err
				return nil, nil
			}
			return nil, err
		}
		return nil, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &UpstreamError{
			Upstream: b.cb.Name(),
			Kind:     KindTransport,
			Err:      fmt.Errorf("%w: %w", ErrCircuitOpen, err),
		}
	}
	if err != nil {
		return err
	}
	return passthrough
}

// State returns the current breaker state. Closed for a nil breaker.
func (b *Breaker) State() gobreaker.State {
	if b == nil {
		return gobreaker.StateClosed
	}
	return b.cb.State()
}

func countsAsFailure(err error) bool {
	return !errors.Is(err, ErrNotFound) && !errors.Is(err, context.Canceled)
}
