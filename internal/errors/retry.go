package errors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// RetryConfig is a bounded retry policy with exponential backoff.
type RetryConfig struct {
	// MaxRetries is the maximum number of retry attempts (not including initial attempt).
	MaxRetries int

	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration

	// MaxDelay is the maximum delay between retries.
	MaxDelay time.Duration

	// Multiplier is the factor by which delay increases after each retry.
	Multiplier float64

	// Jitter scales each delay by a random factor in [0.5, 1.0).
	Jitter bool

	// ShouldRetry decides whether an error is worth another attempt.
	// Nil retries every error except context cancellation.
	ShouldRetry func(error) bool
}

// DefaultRetryConfig returns the policy used for embedding calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     8 * time.Second,
		Multiplier:   2.0,
	}
}

// NoRetry returns a policy that makes exactly one attempt.
func NoRetry() RetryConfig {
	return RetryConfig{Multiplier: 1.0}
}

// Attempts is the total number of calls the policy allows.
func (c RetryConfig) Attempts() int {
	if c.MaxRetries < 0 {
		return 1
	}
	return c.MaxRetries + 1
}

// Delays returns the backoff schedule without jitter, one entry per retry.
func (c RetryConfig) Delays() []time.Duration {
	if c.MaxRetries <= 0 {
		return nil
	}
	out := make([]time.Duration, 0, c.MaxRetries)
	delay := c.InitialDelay
	for i := 0; i < c.MaxRetries; i++ {
		out = append(out, delay)
		delay = c.next(delay)
	}
	return out
}

func (c RetryConfig) next(delay time.Duration) time.Duration {
	mult := c.Multiplier
	if mult < 1 {
		mult = 1
	}
	delay = time.Duration(float64(delay) * mult)
	if c.MaxDelay > 0 && delay > c.MaxDelay {
		delay = c.MaxDelay
	}
	return delay
}

func (c RetryConfig) retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if c.ShouldRetry != nil {
		return c.ShouldRetry(err)
	}
	return true
}

// Retry executes fn until it succeeds, the policy is exhausted, or ctx is
// done. The returned error wraps the last failure.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	_, err := RetryWithResult(ctx, cfg, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// RetryWithResult is Retry for functions returning a value.
func RetryWithResult[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	var zero T
	delay := cfg.InitialDelay
	var lastErr error
	retries := 0

	for attempt := 0; attempt < cfg.Attempts(); attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt+1 >= cfg.Attempts() || !cfg.retryable(err) {
			break
		}

		wait := delay
		if cfg.Jitter {
			wait = time.Duration(float64(delay) * (0.5 + rand.Float64()*0.5))
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}

		retries++
		delay = cfg.next(delay)
	}

	if retries == 0 {
		return zero, lastErr
	}
	return zero, fmt.Errorf("failed after %d retries: %w", retries, lastErr)
}
