package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	errs "igwalker/pkg/errors"
)

// Decision is the outcome of consulting the policy for one failure.
type Decision struct {
	Retry bool
	Delay time.Duration
}

// Abort is the terminal decision.
var Abort = Decision{}

// Policy computes retry schedules from (failure kind, attempt count).
// It holds no per-operation state and is safe to share across all
// profile workers.
type Policy struct {
	// BaseDelay is the first-attempt delay and the jitter bound.
	BaseDelay time.Duration
	// MaxDelay caps the computed exponential delay.
	MaxDelay time.Duration
	// randFloat is replaceable in tests for deterministic delays.
	randFloat func() float64
}

// NewPolicy returns a policy with production defaults.
func NewPolicy() *Policy {
	return &Policy{
		BaseDelay: 2 * time.Second,
		MaxDelay:  2 * time.Minute,
		randFloat: rand.Float64,
	}
}

// WithRand returns a copy of the policy using the given random source.
// Tests pass func() float64 { return 0 } to remove jitter.
func (p *Policy) WithRand(f func() float64) *Policy {
	cp := *p
	cp.randFloat = f
	return &cp
}

// Decide returns the retry decision for the given failure. attempt is
// the number of retries already made for this operation (0 before the
// first retry). hint is a server-signaled cooldown, zero when absent.
func (p *Policy) Decide(kind errs.Kind, attempt int, hint time.Duration) Decision {
	if !errs.IsRetryable(kind) {
		return Abort
	}
	if attempt >= errs.MaxAttempts(kind) {
		return Abort
	}

	delay := p.BackoffDelay(attempt)

	// Rate limiting honors the signaled cooldown as a floor.
	if kind == errs.KindRateLimited && hint > delay {
		delay = hint
	}

	return Decision{Retry: true, Delay: delay}
}

// BackoffDelay computes base * 2^attempt capped at MaxDelay, plus
// uniform jitter in [0, base).
func (p *Policy) BackoffDelay(attempt int) time.Duration {
	delay := float64(p.BaseDelay) * math.Pow(2, float64(attempt))
	if delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}

	rf := p.randFloat
	if rf == nil {
		rf = rand.Float64
	}
	delay += rf() * float64(p.BaseDelay)

	return time.Duration(delay)
}

// Wait sleeps for the given delay or until the context is cancelled.
func Wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do runs op, retrying per the policy until it succeeds, the policy
// aborts, or the context is cancelled. Used where a whole operation
// retries as a unit (login, session refresh); the navigation
// controller drives Decide/Wait itself from its Recovering state.
func Do(ctx context.Context, p *Policy, op func() error) error {
	attempt := 0
	for {
		err := op()
		if err == nil {
			return nil
		}

		d := p.Decide(errs.KindOf(err), attempt, errs.RetryAfterHint(err))
		if !d.Retry {
			return err
		}
		attempt++

		if werr := Wait(ctx, d.Delay); werr != nil {
			return fmt.Errorf("retry cancelled: %w", werr)
		}
	}
}
