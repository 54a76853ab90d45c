package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fakeClock drives the limiter without real delays.
type fakeClock struct {
	now    time.Time
	slept  []time.Duration
	cancel bool
}

func newFakeLimiter(interval, maxExtra time.Duration) (*IntervalLimiter, *fakeClock) {
	clk := &fakeClock{now: time.Unix(1000, 0)}
	l := NewIntervalLimiter(interval, maxExtra)
	l.now = func() time.Time { return clk.now }
	l.sleep = func(ctx context.Context, d time.Duration) error {
		if clk.cancel {
			return context.Canceled
		}
		clk.slept = append(clk.slept, d)
		clk.now = clk.now.Add(d)
		return nil
	}
	l.randFloat = func() float64 { return 0 }
	return l, clk
}

func TestFirstAcquireImmediate(t *testing.T) {
	l, clk := newFakeLimiter(10*time.Second, 0)

	if err := l.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if len(clk.slept) != 0 {
		t.Errorf("first acquire slept %v, want no sleep", clk.slept)
	}
}

func TestAcquireEnforcesInterval(t *testing.T) {
	l, clk := newFakeLimiter(10*time.Second, 0)

	for i := 0; i < 3; i++ {
		if err := l.Acquire(context.Background()); err != nil {
			t.Fatalf("Acquire %d: %v", i, err)
		}
	}
	if len(clk.slept) != 2 {
		t.Fatalf("slept %d times, want 2", len(clk.slept))
	}
	for _, d := range clk.slept {
		if d != 10*time.Second {
			t.Errorf("slept %v, want 10s", d)
		}
	}
}

func TestAcquireRandomExtraDelay(t *testing.T) {
	l, clk := newFakeLimiter(10*time.Second, 5*time.Second)
	l.randFloat = func() float64 { return 0.5 }

	_ = l.Acquire(context.Background())
	_ = l.Acquire(context.Background())

	if len(clk.slept) != 1 || clk.slept[0] != 12500*time.Millisecond {
		t.Errorf("slept %v, want [12.5s]", clk.slept)
	}
}

func TestAcquireNoSleepAfterIdle(t *testing.T) {
	l, clk := newFakeLimiter(10*time.Second, 0)

	_ = l.Acquire(context.Background())
	clk.now = clk.now.Add(time.Minute) // remote work took longer than the interval
	_ = l.Acquire(context.Background())

	if len(clk.slept) != 0 {
		t.Errorf("slept %v, want no sleep after idle period", clk.slept)
	}
}

func TestAcquireCancelled(t *testing.T) {
	l, clk := newFakeLimiter(10*time.Second, 0)

	_ = l.Acquire(context.Background())
	clk.cancel = true
	if err := l.Acquire(context.Background()); !errors.Is(err, context.Canceled) {
		t.Errorf("Acquire = %v, want context.Canceled", err)
	}
}
