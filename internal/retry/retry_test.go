package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"streamlapse/internal/retry"
	"streamlapse/internal/services"
)

func recordingSleeper(delays *[]time.Duration) retry.Sleeper {
	return func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
}

func TestDoStopsOnSuccess(t *testing.T) {
	var delays []time.Duration
	policy := retry.NewPolicy(3, 30*time.Second).WithSleeper(recordingSleeper(&delays))

	calls := 0
	err := policy.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 2 {
			return errors.New("transient failure")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do returned error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls)
	}
	if len(delays) != 1 || delays[0] != 30*time.Second {
		t.Fatalf("expected one 30s delay, got %v", delays)
	}
}

func TestDoExhaustsAttemptBudget(t *testing.T) {
	var delays []time.Duration
	policy := retry.NewPolicy(3, 10*time.Second).WithSleeper(recordingSleeper(&delays))

	calls := 0
	failure := errors.New("network down")
	err := policy.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return failure
	})
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if !errors.Is(err, failure) {
		t.Fatalf("expected wrapped original error, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", calls)
	}
	// The delay runs between attempts only: N attempts, N-1 delays.
	if len(delays) != 2 {
		t.Fatalf("expected 2 delays, got %d", len(delays))
	}
}

func TestDoAbortsOnFatalError(t *testing.T) {
	var delays []time.Duration
	policy := retry.NewPolicy(5, time.Second).WithSleeper(recordingSleeper(&delays))

	calls := 0
	fatal := services.Wrap(services.ErrValidation, "fetch", "verify", "empty download", nil)
	err := policy.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return fatal
	})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("fatal error should not be retried, got %d attempts", calls)
	}
	if len(delays) != 0 {
		t.Fatalf("fatal error should not sleep, got %v", delays)
	}
}

func TestDoHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := retry.NewPolicy(5, time.Second).WithSleeper(func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	})

	err := policy.Do(ctx, func(ctx context.Context) error {
		return errors.New("keep trying")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
}

func TestNewPolicyClampsAttempts(t *testing.T) {
	policy := retry.NewPolicy(0, time.Second)
	if policy.Attempts != 1 {
		t.Fatalf("expected attempts clamped to 1, got %d", policy.Attempts)
	}
}
