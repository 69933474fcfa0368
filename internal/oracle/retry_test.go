package oracle

import (
	"context"
	"errors"
	"testing"
	"time"
)

func shrinkBackoff(t *testing.T) {
	t.Helper()
	original := initialDelay
	initialDelay = time.Millisecond
	t.Cleanup(func() { initialDelay = original })
}

func TestWithRetryGivesUpAfterMaxAttempts(t *testing.T) {
	shrinkBackoff(t)

	calls := 0
	_, err := withRetry(context.Background(), func(ctx context.Context) (string, error) {
		calls++
		return "", &APIError{StatusCode: 429, Message: "rate limited"}
	})

	if err == nil {
		t.Fatal("expected error")
	}
	if calls != maxAttempts {
		t.Errorf("calls = %d, want %d", calls, maxAttempts)
	}
}

func TestWithRetryStopsOnNonRetryableError(t *testing.T) {
	calls := 0
	want := errors.New("bad request")
	_, err := withRetry(context.Background(), func(ctx context.Context) (string, error) {
		calls++
		return "", want
	})

	if !errors.Is(err, want) {
		t.Errorf("err = %v, want %v", err, want)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestWithRetryRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := withRetry(ctx, func(ctx context.Context) (string, error) {
		return "", &APIError{StatusCode: 429, Message: "rate limited"}
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
