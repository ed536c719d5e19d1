package providers

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// Policy controls attempt count and backoff shape for one provider call.
type Policy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	UseExponential bool
}

// IsTransient decides whether an error should be retried.
type IsTransient func(error) bool

// Do runs fn, retrying according to policy while isTransient(err) holds. A
// *RateLimitError carrying a positive RetryAfter overrides the computed
// backoff for that attempt.
func Do(ctx context.Context, policy Policy, isTransient IsTransient, fn func() error) error {
	var err error
	backoff := policy.InitialBackoff
	if backoff <= 0 {
		backoff = time.Second
	}

	attempts := policy.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	for attempt := 0; attempt < attempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}

		if !isTransient(err) {
			return err
		}

		if attempt == attempts-1 {
			break
		}

		sleep := backoff
		var rle *RateLimitError
		if errors.As(err, &rle) && rle.RetryAfter > 0 {
			sleep = rle.RetryAfter
		} else {
			jitter := time.Duration(0)
			if sleep > 1 {
				jitter = time.Duration(rand.Int63n(int64(sleep/2) + 1))
			}
			sleep += jitter
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
			if policy.UseExponential {
				backoff = minDuration(backoff*2, policy.MaxBackoff)
			}
		}
	}

	return err
}

func minDuration(a, b time.Duration) time.Duration {
	if b <= 0 {
		return a
	}
	if a < b {
		return a
	}
	return b
}

// RateLimitError wraps an HTTP 429 response, carrying the server's
// Retry-After hint if present.
type RateLimitError struct {
	Endpoint   string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return "optionscan/providers: rate limited on " + e.Endpoint
}
