// Package navigator implements the modal-navigation state machine
// that walks sequential content items for one (profile, content-type)
// pair. Every remote interaction is an explicit state with defined
// entry actions, so failure recovery composes uniformly across "open"
// and "advance".
package navigator

import (
	"context"
	"fmt"
	"time"

	"igwalker/pkg/checkpoint"
	"igwalker/pkg/driver"
	errs "igwalker/pkg/errors"
	"igwalker/pkg/logger"
	"igwalker/pkg/models"
	"igwalker/pkg/ratelimit"
	"igwalker/pkg/retry"
	"igwalker/pkg/session"
)

// State is the walk state machine state.
type State string

const (
	StateIdle       State = "idle"
	StateOpening    State = "opening"
	StateItemReady  State = "item_ready"
	StateAdvancing  State = "advancing"
	StateFailed     State = "failed"
	StateRecovering State = "recovering"
	StateCompleted  State = "completed"
)

// Outcome describes how a walk ended.
type Outcome string

const (
	OutcomeQuotaReached    Outcome = "quota-reached"
	OutcomeSourceExhausted Outcome = "source-exhausted"
	OutcomePartial         Outcome = "partial" // run cancelled mid-walk
	OutcomeFailed          Outcome = "failed"
)

// Succeeded reports whether the outcome is a normal terminal state.
func (o Outcome) Succeeded() bool {
	return o == OutcomeQuotaReached || o == OutcomeSourceExhausted
}

// Result is what one walk reports back to the orchestrator. Items
// holds only the items emitted by this run; identifiers checkpointed
// by earlier runs are never re-emitted.
type Result struct {
	Items   []models.ContentItem
	Outcome Outcome
	Err     error
}

// Controller walks one (profile, content-type) pair. It borrows its
// session and checkpoint store from the orchestrator and is driven by
// a single worker.
type Controller struct {
	profile models.Profile
	ct      models.ContentType
	quota   int

	drv     driver.Driver
	sess    *session.Session
	store   checkpoint.Store
	limiter ratelimit.Limiter
	policy  *retry.Policy
	log     logger.Logger

	state  State
	cursor checkpoint.Cursor

	seenPrior   map[string]bool // identifiers checkpointed by earlier runs
	seenThisRun map[string]bool
	prevID      string
	current     driver.RenderedItem
	items       []models.ContentItem

	// transient retry state, scoped to the failing operation
	failedFrom State
	lastErr    error
	lastKind   errs.Kind
	attempts   int
}

// New creates a controller for one (profile, content-type) walk.
func New(profile models.Profile, ct models.ContentType, drv driver.Driver, sess *session.Session,
	store checkpoint.Store, limiter ratelimit.Limiter, policy *retry.Policy, log logger.Logger) *Controller {
	return &Controller{
		profile: profile,
		ct:      ct,
		quota:   profile.QuotaFor(ct),
		drv:     drv,
		sess:    sess,
		store:   store,
		limiter: limiter,
		policy:  policy,
		log: log.WithFields(map[string]interface{}{
			"profile":      profile.Handle,
			"content_type": string(ct),
		}),
		state:       StateIdle,
		seenPrior:   make(map[string]bool),
		seenThisRun: make(map[string]bool),
	}
}

// Walk runs the state machine to a terminal state. The checkpoint is
// durable after every emitted item, so a crash or cancellation loses
// at most one in-flight step.
func (c *Controller) Walk(ctx context.Context) Result {
	if ctx.Err() != nil {
		return c.cancelled(ctx)
	}
	if err := c.resume(ctx); err != nil {
		return Result{Outcome: OutcomeFailed, Err: err}
	}

	if c.quota <= 0 || c.cursor.Ordinal >= c.quota {
		c.state = StateCompleted
		return Result{Outcome: OutcomeQuotaReached}
	}

	defer func() {
		// Always dismiss the modal surface, success or not.
		if err := c.drv.CloseSurface(context.WithoutCancel(ctx)); err != nil {
			c.log.WithError(err).Debug("failed to close modal surface")
		}
	}()

	for {
		if ctx.Err() != nil {
			return c.cancelled(ctx)
		}

		switch c.state {
		case StateIdle:
			c.enterOpening(ctx)

		case StateItemReady:
			if res, done := c.handleItem(ctx); done {
				return res
			}

		case StateAdvancing:
			c.enterAdvancing(ctx)

		case StateFailed:
			if res, done := c.recover(ctx); done {
				return res
			}

		case StateCompleted:
			return Result{Items: c.items, Outcome: OutcomeSourceExhausted}
		}
	}
}

// resume loads the checkpoint record and seeds the seen-set.
func (c *Controller) resume(ctx context.Context) error {
	rec, err := c.store.Load(ctx, c.profile.Handle, c.ct)
	if err != nil {
		return fmt.Errorf("failed to load checkpoint: %w", err)
	}
	if rec == nil {
		return nil
	}

	c.cursor = rec.Cursor
	for _, it := range rec.Items {
		c.seenPrior[it.ID] = true
	}
	if len(rec.Items) > 0 {
		c.log.InfoWithFields("resuming from checkpoint", map[string]interface{}{
			"collected": len(rec.Items),
			"ordinal":   rec.Cursor.Ordinal,
		})
	}
	return nil
}

// enterOpening asks the driver to open the profile's first item.
func (c *Controller) enterOpening(ctx context.Context) {
	c.state = StateOpening

	if err := c.sess.Ensure(ctx); err != nil {
		c.fail(StateIdle, err)
		return
	}
	if err := c.limiter.Acquire(ctx); err != nil {
		c.fail(StateIdle, err)
		return
	}

	item, err := c.drv.OpenEntryPoint(ctx, c.profile.Handle, c.ct)
	if err != nil {
		if err == driver.ErrNoMoreItems {
			// Profile has no content of this type.
			c.state = StateCompleted
			return
		}
		c.fail(StateIdle, err)
		return
	}

	c.current = item
	c.state = StateItemReady
}

// enterAdvancing asks the driver to move to the next item.
func (c *Controller) enterAdvancing(ctx context.Context) {
	if err := c.sess.Ensure(ctx); err != nil {
		c.fail(StateAdvancing, err)
		return
	}
	if err := c.limiter.Acquire(ctx); err != nil {
		c.fail(StateAdvancing, err)
		return
	}

	item, err := c.drv.Advance(ctx)
	if err != nil {
		if err == driver.ErrNoMoreItems {
			if c.cursor.Ordinal > 0 {
				c.cursor.CanAdvance = false
				if serr := c.store.SnapshotCursor(ctx, c.profile.Handle, c.ct, c.cursor); serr != nil {
					c.log.WithError(serr).Warn("failed to snapshot exhausted cursor")
				}
			}
			c.state = StateCompleted
			return
		}
		c.fail(StateAdvancing, err)
		return
	}

	c.current = item
	c.state = StateItemReady
}

// handleItem processes the rendered item: dedup, stall and wrap-around
// detection, checkpointed emission, quota check.
func (c *Controller) handleItem(ctx context.Context) (Result, bool) {
	url := models.CleanItemURL(c.current.URL)
	id := models.ExtractContentID(url)

	if id == "unknown" {
		c.fail(StateAdvancing, errs.New(errs.KindRenderMismatch, "extract",
			"rendered item has no recognizable identifier: "+url))
		return Result{}, false
	}

	switch {
	case id == c.prevID:
		// The remote surface returned the same item after an advance.
		c.fail(StateAdvancing, errs.New(errs.KindStall, "advance",
			"advance returned the same item: "+id))
		return Result{}, false

	case c.seenThisRun[id]:
		// Cycled back to an item discovered earlier in this run.
		c.log.WithField("content_id", id).Info("wrap-around detected, stopping walk")
		c.state = StateCompleted
		return Result{}, false

	case c.seenPrior[id]:
		// Checkpointed by an earlier run: drop silently and move on.
		c.seenThisRun[id] = true
		c.prevID = id
		c.resetRetryState()
		c.state = StateAdvancing
		return Result{}, false
	}

	item := models.ContentItem{
		URL: url,
		ID:  id,
		// Typed by the rendered URL: a reel surfacing in the posts walk
		// is still a reel.
		Type:      models.ContentTypeOf(url),
		ScrapedAt: time.Now().UTC(),
		Order:     c.cursor.Ordinal + 1,
	}

	dup, err := c.store.Append(ctx, c.profile.Handle, c.ct, item)
	if err != nil {
		return Result{Items: c.items, Outcome: OutcomeFailed,
			Err: fmt.Errorf("failed to checkpoint item: %w", err)}, true
	}
	if !dup {
		c.cursor.CurrentID = id
		c.cursor.Ordinal++
		c.cursor.CanAdvance = true
		c.cursor.LastSuccess = time.Now().UTC()
		if err := c.store.SnapshotCursor(ctx, c.profile.Handle, c.ct, c.cursor); err != nil {
			return Result{Items: c.items, Outcome: OutcomeFailed,
				Err: fmt.Errorf("failed to snapshot cursor: %w", err)}, true
		}

		c.items = append(c.items, item)
		c.log.DebugWithFields("collected item", map[string]interface{}{
			"content_id": id,
			"ordinal":    item.Order,
		})
	}

	c.seenThisRun[id] = true
	c.prevID = id
	c.resetRetryState()

	if c.cursor.Ordinal >= c.quota {
		return Result{Items: c.items, Outcome: OutcomeQuotaReached}, true
	}

	c.state = StateAdvancing
	return Result{}, false
}

// fail records a classified failure and enters the Failed state.
func (c *Controller) fail(from State, err error) {
	kind := errs.KindOf(err)
	if kind == errs.KindUnknown {
		// Unclassified driver errors are treated as transient network
		// failures, the generous default.
		kind = errs.KindNetwork
	}
	// attempts is scoped to the operation, not the kind: alternating
	// failure kinds must not grant an unbounded retry budget. Only a
	// successfully handled item resets it.
	c.lastKind = kind
	c.failedFrom = from
	c.lastErr = err
	c.state = StateFailed
}

// recover consults the policy and either re-enters the failed state
// after the backoff delay or surfaces a terminal failure.
func (c *Controller) recover(ctx context.Context) (Result, bool) {
	decision := c.policy.Decide(c.lastKind, c.attempts, errs.RetryAfterHint(c.lastErr))
	if !decision.Retry {
		c.log.ErrorWithFields("walk failed", map[string]interface{}{
			"kind":     string(c.lastKind),
			"attempts": c.attempts,
			"error":    c.lastErr.Error(),
		})
		return Result{Items: c.items, Outcome: OutcomeFailed, Err: c.lastErr}, true
	}

	c.state = StateRecovering
	c.attempts++
	c.log.WarnWithFields("recovering from failure", map[string]interface{}{
		"kind":    string(c.lastKind),
		"attempt": c.attempts,
		"delay":   decision.Delay,
	})

	if err := retry.Wait(ctx, decision.Delay); err != nil {
		return c.cancelled(ctx), true
	}

	// Re-enter the state that failed: re-open or re-advance.
	if c.failedFrom == StateIdle {
		c.state = StateIdle
	} else {
		c.state = StateAdvancing
	}
	return Result{}, false
}

func (c *Controller) resetRetryState() {
	c.attempts = 0
	c.lastKind = ""
	c.lastErr = nil
}

// cancelled finishes a walk cut short by run-level cancellation. All
// emitted items are already durable.
func (c *Controller) cancelled(ctx context.Context) Result {
	c.log.Info("walk cancelled")
	return Result{Items: c.items, Outcome: OutcomePartial, Err: ctx.Err()}
}
