package transport

import (
	"context"
	"time"
)

// Retry controls how API transports retry transient failures.
type Retry struct {
	// Attempts is the number of retries after the first try.
	Attempts int
	// BaseDelay is doubled for every retry.
	BaseDelay time.Duration
}

// DefaultRetry is used by transports that are not given a policy.
var DefaultRetry = Retry{Attempts: 3, BaseDelay: time.Second}

// Backoff returns the exponential backoff delay for the given attempt.
func (r Retry) Backoff(attempt int) time.Duration {
	delay := r.BaseDelay
	for i := 0; i < attempt; i++ {
		delay *= 2
	}

	return delay
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
