package resilience

import (
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrRetryExhausted marks a transient failure whose retry budget ran out.
// The original cause stays in the chain, so errors.Is against the cause's
// kind still matches.
var ErrRetryExhausted = errors.New("retry attempts exhausted")

// RetryConfig tunes the exponential backoff wrapped around a dispatch call.
type RetryConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64

	// Jitter multiplies each delay by a uniform factor in [0.5, 1.5] so
	// synchronized callers don't retry in lockstep.
	Jitter bool

	// Transient classifies which errors are worth retrying; everything
	// else propagates immediately. A nil classifier treats every error as
	// transient. Circuit-breaker rejections are always retryable
	// regardless: by the next attempt the breaker may have moved to
	// HALF_OPEN and let a probe through.
	Transient func(error) bool
}

// DefaultRetryConfig mirrors the breaker's own cooldown scale: start at
// 200ms, double each attempt, cap at 5s, give up after 3 retries.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		Multiplier:      2.0,
		Jitter:          true,
	}
}

// WithRetry runs fn under the config's backoff policy. Transient errors
// (per the classifier, plus every circuit-breaker rejection) are retried
// until the budget runs out, then surfaced wrapped in ErrRetryExhausted;
// non-transient errors propagate on the first attempt.
func WithRetry(config RetryConfig, fn func() error) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = config.InitialInterval
	eb.MaxInterval = config.MaxInterval
	eb.Multiplier = config.Multiplier
	eb.MaxElapsedTime = 0 // bounded by MaxRetries below, not wall-clock
	if config.Jitter {
		eb.RandomizationFactor = 0.5 // uniform delay factor in [0.5, 1.5]
	} else {
		eb.RandomizationFactor = 0
	}

	bounded := backoff.WithMaxRetries(eb, uint64(config.MaxRetries))

	var lastErr error
	err := backoff.Retry(func() error {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(config, err) {
			return backoff.Permanent(err)
		}
		return err
	}, bounded)

	if err == nil {
		return nil
	}
	if !isRetryable(config, err) {
		// Non-transient: propagate the cause untouched.
		return err
	}
	return fmt.Errorf("%w: %w", ErrRetryExhausted, lastErr)
}

// isRetryable applies the transient classification. Breaker rejections are
// always retryable; beyond that the configured classifier decides, and no
// classifier means everything is.
func isRetryable(config RetryConfig, err error) bool {
	var open *ErrCircuitOpen
	if errors.As(err, &open) {
		return true
	}
	if config.Transient == nil {
		return true
	}
	return config.Transient(err)
}
