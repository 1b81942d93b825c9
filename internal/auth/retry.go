package auth

import (
	"context"
	"errors"
	"time"
)

// RetryPolicy wraps the token-request call with exponential backoff.
// Transport failures and 5xx responses are retried; a TokenRequestError
// (401/403 or any other 4xx) aborts immediately, since retrying an auth
// rejection wastes time and may trigger provider-side lockout.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration

	// sleep is replaceable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   5 * time.Second,
		MaxDelay:    60 * time.Second,
		sleep:       sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// Do runs fn up to MaxAttempts times. Exhausted retries surface as a
// TokenRequestError wrapping the last transient failure.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	if p.sleep == nil {
		p.sleep = sleepCtx
	}

	delay := p.BaseDelay
	var lastErr error

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		var reqErr *TokenRequestError
		if errors.As(err, &reqErr) {
			return err // non-retryable
		}

		lastErr = err
		if attempt == p.MaxAttempts {
			break
		}

		if err := p.sleep(ctx, delay); err != nil {
			return err
		}
		delay *= 2
		if delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}

	return &TokenRequestError{Err: lastErr}
}
