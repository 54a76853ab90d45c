package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Limiter gates operations directed at the remote source. Every
// profile owns its own instance; limiter state is never shared or
// persisted.
type Limiter interface {
	// Acquire blocks until the next operation is permitted or the
	// context is cancelled.
	Acquire(ctx context.Context) error
}

// IntervalLimiter enforces a minimum interval between operations,
// with an optional randomized extra delay to avoid a mechanical
// request rhythm.
type IntervalLimiter struct {
	interval time.Duration
	maxExtra time.Duration

	mu   sync.Mutex
	next time.Time

	// injectable for tests
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
	randFloat func() float64
}

// NewIntervalLimiter creates a limiter with the given minimum
// inter-operation interval and randomized extra delay bound.
func NewIntervalLimiter(interval, maxExtra time.Duration) *IntervalLimiter {
	return &IntervalLimiter{
		interval:  interval,
		maxExtra:  maxExtra,
		now:       time.Now,
		sleep:     sleepCtx,
		randFloat: rand.Float64,
	}
}

// Acquire waits until the interval since the previous acquisition has
// elapsed. The first acquisition proceeds immediately.
func (l *IntervalLimiter) Acquire(ctx context.Context) error {
	l.mu.Lock()
	now := l.now()
	wait := l.next.Sub(now)

	gap := l.interval
	if l.maxExtra > 0 {
		gap += time.Duration(l.randFloat() * float64(l.maxExtra))
	}
	if wait > 0 {
		l.next = l.next.Add(gap)
	} else {
		l.next = now.Add(gap)
	}
	l.mu.Unlock()

	if wait <= 0 {
		return nil
	}
	return l.sleep(ctx, wait)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
