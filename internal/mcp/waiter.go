package mcp

import (
	"context"
	"time"
)

// DefaultPollInterval is how often a Waiter asks the relay for new messages.
const DefaultPollInterval = time.Second

// PollFunc fetches whatever the relay has not yet returned.
type PollFunc func(ctx context.Context) ([]string, error)

// Waiter turns the relay's non-blocking poll into a blocking wait. The relay
// has no push channel, so it polls on an interval.
type Waiter struct {
	interval time.Duration
}

// NewWaiter creates a Waiter. A non-positive interval selects
// DefaultPollInterval.
func NewWaiter(interval time.Duration) *Waiter {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Waiter{interval: interval}
}

// Interval returns the polling interval.
func (w *Waiter) Interval() time.Duration {
	return w.interval
}

// Wait polls until poll returns at least one line or ctx is done. On timeout
// or cancellation it returns nil lines and ctx.Err(), even if a poll was cut
// short by it. Other poll errors end the wait immediately.
func (w *Waiter) Wait(ctx context.Context, poll PollFunc) ([]string, error) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		lines, err := poll(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, err
		}
		if len(lines) > 0 {
			return lines, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
