package util

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// Retry calls fn up to maxTries times until it returns a nil error.
// If maxTries <= 0, it defaults to 1. Returns the last error if all
// attempts fail.
func Retry[T any](maxTries int, fn func() (T, error)) (T, error) {
	if maxTries <= 0 {
		maxTries = 1
	}
	var lastErr error
	var zero T
	for i := 0; i < maxTries; i++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err
	}
	return zero, lastErr
}

// RetryErr calls fn up to maxTries times until it returns nil error.
func RetryErr(maxTries int, fn func() error) error {
	if maxTries <= 0 {
		maxTries = 1
	}
	var lastErr error
	for i := 0; i < maxTries; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
	}
	return lastErr
}

// BackoffOptions bounds RetryReadWithBackoff. Zero values fall back to
// 3 tries starting at 100ms, doubling, capped at 2s.
type BackoffOptions struct {
	MaxTries int
	Initial  time.Duration
	Cap      time.Duration
}

// RetryReadWithBackoff retries a read-only operation with bounded
// exponential backoff and jitter. Only reads go through here: a write
// retried after an ambiguous failure could double-apply, so writes surface
// their first error to the caller.
func RetryReadWithBackoff[T any](ctx context.Context, opts BackoffOptions, fn func(context.Context) (T, error)) (T, error) {
	if opts.MaxTries <= 0 {
		opts.MaxTries = 3
	}
	if opts.Initial <= 0 {
		opts.Initial = 100 * time.Millisecond
	}
	if opts.Cap <= 0 {
		opts.Cap = 2 * time.Second
	}

	var zero T
	var lastErr error
	delay := opts.Initial
	for i := 0; i < opts.MaxTries; i++ {
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return zero, err
		}
		lastErr = err

		if i == opts.MaxTries-1 {
			break
		}
		jitter := time.Duration(rand.Int64N(int64(delay) / 2))
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay + jitter):
		}
		delay = min(delay*2, opts.Cap)
	}
	return zero, lastErr
}
