// Package retry implements the bounded fixed-delay retry loop used around
// the download and upload transfers.
package retry

import (
	"context"
	"fmt"
	"time"

	"streamlapse/internal/services"
)

// Sleeper waits out the delay between attempts. Tests substitute a
// recording implementation.
type Sleeper func(ctx context.Context, d time.Duration) error

func defaultSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Policy bounds an operation at a fixed number of attempts with a fixed
// delay between them.
type Policy struct {
	Attempts int
	Delay    time.Duration
	sleep    Sleeper
}

// NewPolicy builds a Policy. Attempts below one are clamped to one.
func NewPolicy(attempts int, delay time.Duration) Policy {
	if attempts < 1 {
		attempts = 1
	}
	return Policy{Attempts: attempts, Delay: delay, sleep: defaultSleep}
}

// WithSleeper returns a copy of the policy using the given sleeper.
func (p Policy) WithSleeper(sleep Sleeper) Policy {
	if sleep != nil {
		p.sleep = sleep
	}
	return p
}

// Do runs op until it succeeds, a fatal error is returned, or the attempt
// budget is exhausted. Fatal errors (validation, configuration, not-found
// per services.IsRetryable) abort immediately; the delay is observed only
// between attempts, never after the last one.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	sleep := p.sleep
	if sleep == nil {
		sleep = defaultSleep
	}

	var lastErr error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if !services.IsRetryable(lastErr) {
			return lastErr
		}
		if attempt == p.Attempts {
			break
		}
		if err := sleep(ctx, p.Delay); err != nil {
			return err
		}
	}
	return fmt.Errorf("after %d attempts: %w", p.Attempts, lastErr)
}
