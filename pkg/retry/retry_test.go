package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	errs "igwalker/pkg/errors"
)

func noJitter() float64 { return 0 }

func TestBackoffDelayMonotonic(t *testing.T) {
	p := (&Policy{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second}).WithRand(noJitter)

	prev := time.Duration(-1)
	for attempt := 0; attempt < 8; attempt++ {
		d := p.BackoffDelay(attempt)
		if d < prev {
			t.Errorf("attempt %d: delay %v decreased from %v", attempt, d, prev)
		}
		if d > time.Second {
			t.Errorf("attempt %d: delay %v exceeds cap", attempt, d)
		}
		prev = d
	}
}

func TestBackoffDelayDoubling(t *testing.T) {
	p := (&Policy{BaseDelay: 100 * time.Millisecond, MaxDelay: 10 * time.Second}).WithRand(noJitter)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{2, 400 * time.Millisecond},
		{3, 800 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := p.BackoffDelay(tt.attempt); got != tt.want {
			t.Errorf("BackoffDelay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestBackoffJitterBound(t *testing.T) {
	p := &Policy{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second}

	for i := 0; i < 50; i++ {
		d := p.BackoffDelay(0)
		if d < 100*time.Millisecond || d >= 200*time.Millisecond {
			t.Fatalf("jittered delay %v outside [base, 2*base)", d)
		}
	}
}

func TestDecideRateLimitCooldownFloor(t *testing.T) {
	p := (&Policy{BaseDelay: time.Second, MaxDelay: time.Minute}).WithRand(noJitter)

	// signaled cooldown exceeds computed backoff: cooldown wins
	d := p.Decide(errs.KindRateLimited, 0, 30*time.Second)
	if !d.Retry {
		t.Fatal("rate limited failure should be retryable")
	}
	if d.Delay < 30*time.Second {
		t.Errorf("delay %v is below the signaled 30s cooldown", d.Delay)
	}

	// computed backoff exceeds a small hint: backoff wins
	d = p.Decide(errs.KindRateLimited, 3, time.Second)
	if d.Delay != 8*time.Second {
		t.Errorf("delay %v, want computed backoff 8s", d.Delay)
	}
}

func TestDecideExhaustion(t *testing.T) {
	p := NewPolicy()

	if d := p.Decide(errs.KindAuthInvalid, 0, 0); d.Retry {
		t.Error("auth failures must not be retried")
	}
	if d := p.Decide(errs.KindStall, 1, 0); d.Retry {
		t.Error("stall must be retried at most once")
	}
	if d := p.Decide(errs.KindStall, 0, 0); !d.Retry {
		t.Error("first stall should be retried")
	}
	if d := p.Decide(errs.KindNetwork, errs.MaxAttempts(errs.KindNetwork), 0); d.Retry {
		t.Error("exhausted network budget should abort")
	}
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	p := (&Policy{BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond}).WithRand(noJitter)

	attempts := 0
	err := Do(context.Background(), p, func() error {
		attempts++
		if attempts < 3 {
			return errs.New(errs.KindNetwork, "probe", "reset")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do returned error: %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestDoStopsOnNonRetryable(t *testing.T) {
	p := (&Policy{BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond}).WithRand(noJitter)

	attempts := 0
	err := Do(context.Background(), p, func() error {
		attempts++
		return errs.New(errs.KindAuthInvalid, "login", "bad credentials")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestWaitCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Wait(ctx, time.Minute); !errors.Is(err, context.Canceled) {
		t.Errorf("Wait = %v, want context.Canceled", err)
	}
}
