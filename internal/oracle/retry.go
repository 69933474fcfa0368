package oracle

import (
	"context"
	"time"
)

const maxAttempts = 4

// initialDelay is a var so tests can shrink the backoff.
var initialDelay = 800 * time.Millisecond

// withRetry runs fn up to maxAttempts times. Only rate-limit errors are
// retried; the delay starts at initialDelay and doubles between attempts.
// Any other error, and the final rate-limit error, surface unchanged.
func withRetry[T any](ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	delay := initialDelay

	for attempt := 1; ; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if attempt >= maxAttempts || !IsRateLimited(err) {
			return zero, err
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return zero, ctx.Err()
		}
		delay *= 2
	}
}
