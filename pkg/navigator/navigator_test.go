package navigator

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igwalker/pkg/checkpoint"
	"igwalker/pkg/config"
	"igwalker/pkg/driver"
	errs "igwalker/pkg/errors"
	"igwalker/pkg/logger"
	"igwalker/pkg/models"
	"igwalker/pkg/retry"
	"igwalker/pkg/session"
)

type nopLimiter struct{}

func (nopLimiter) Acquire(ctx context.Context) error { return ctx.Err() }

func fastPolicy() *retry.Policy {
	return (&retry.Policy{BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}).
		WithRand(func() float64 { return 0 })
}

func testStore(t *testing.T) checkpoint.Store {
	t.Helper()
	s, err := checkpoint.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func postURL(id string) string {
	return "https://www.instagram.com/p/" + id + "/"
}

func newController(t *testing.T, quota int, drv driver.Driver, store checkpoint.Store) *Controller {
	t.Helper()
	profile := models.Profile{
		Handle:     "alice",
		PostsQuota: quota,
		ReelsQuota: quota,
		Selection:  models.SelectBoth,
	}
	sess := session.New("alice", session.Credentials{Username: "alice", Password: "secret"},
		drv, store, fastPolicy(), nopLimiter{}, config.SessionConfig{Reuse: false, TTL: time.Hour, MaxRefreshAttempts: 2},
		logger.GetLogger())
	return New(profile, models.ContentTypePost, drv, sess, store, nopLimiter{}, fastPolicy(), logger.GetLogger())
}

func TestQuotaReached(t *testing.T) {
	drv := driver.NewScripted().QueueOpen(postURL("A1"), nil)
	for _, id := range []string{"A2", "A3", "A4", "A5", "A6"} {
		drv.QueueAdvance(postURL(id), nil)
	}
	store := testStore(t)

	res := newController(t, 4, drv, store).Walk(context.Background())

	require.NoError(t, res.Err)
	assert.Equal(t, OutcomeQuotaReached, res.Outcome)
	require.Len(t, res.Items, 4)
	assert.Equal(t, "A4", res.Items[3].ID)
	// The walk stops as soon as the quota is met; items 5 and 6 are
	// never visited.
	assert.Equal(t, 3, drv.Advances)
	assert.Equal(t, 1, drv.Closes)
}

func TestOrdinalsStrictlyIncrease(t *testing.T) {
	drv := driver.NewScripted().QueueOpen(postURL("B1"), nil).
		QueueAdvance(postURL("B2"), nil).
		QueueAdvance(postURL("B3"), nil)
	store := testStore(t)

	res := newController(t, 10, drv, store).Walk(context.Background())

	require.Len(t, res.Items, 3)
	for i, it := range res.Items {
		assert.Equal(t, i+1, it.Order)
		assert.Equal(t, models.ContentTypePost, it.Type)
	}
}

func TestItemTypeFollowsRenderedURL(t *testing.T) {
	drv := driver.NewScripted().QueueOpen(postURL("L1"), nil).
		QueueAdvance("https://www.instagram.com/reel/L2/", nil)
	store := testStore(t)

	res := newController(t, 2, drv, store).Walk(context.Background())

	require.NoError(t, res.Err)
	require.Len(t, res.Items, 2)
	assert.Equal(t, models.ContentTypePost, res.Items[0].Type)
	assert.Equal(t, models.ContentTypeReel, res.Items[1].Type)
}

func TestSourceExhausted(t *testing.T) {
	drv := driver.NewScripted().QueueOpen(postURL("C1"), nil).
		QueueAdvance(postURL("C2"), nil)
	// Advance queue runs dry after two items.
	store := testStore(t)

	res := newController(t, 8, drv, store).Walk(context.Background())

	require.NoError(t, res.Err)
	assert.Equal(t, OutcomeSourceExhausted, res.Outcome)
	assert.Len(t, res.Items, 2)
}

func TestEmptyProfile(t *testing.T) {
	drv := driver.NewScripted() // open queue empty: no content at all
	store := testStore(t)

	res := newController(t, 4, drv, store).Walk(context.Background())

	require.NoError(t, res.Err)
	assert.Equal(t, OutcomeSourceExhausted, res.Outcome)
	assert.Empty(t, res.Items)
}

func TestWrapAroundStopsWalk(t *testing.T) {
	drv := driver.NewScripted().QueueOpen(postURL("D1"), nil).
		QueueAdvance(postURL("D2"), nil).
		QueueAdvance(postURL("D1"), nil) // cycled back to the start
	store := testStore(t)

	res := newController(t, 10, drv, store).Walk(context.Background())

	require.NoError(t, res.Err)
	assert.Equal(t, OutcomeSourceExhausted, res.Outcome)
	assert.Len(t, res.Items, 2)
}

func TestStallRetriedOnceThenFails(t *testing.T) {
	drv := driver.NewScripted().QueueOpen(postURL("E1"), nil).
		QueueAdvance(postURL("E1"), nil).
		QueueAdvance(postURL("E1"), nil)
	store := testStore(t)

	res := newController(t, 10, drv, store).Walk(context.Background())

	assert.Equal(t, OutcomeFailed, res.Outcome)
	require.Error(t, res.Err)
	assert.Equal(t, errs.KindStall, errs.KindOf(res.Err))
	// The first item was still collected and stays checkpointed.
	assert.Len(t, res.Items, 1)
	assert.Equal(t, 2, drv.Advances)
}

func TestTransientAdvanceErrorRetried(t *testing.T) {
	drv := driver.NewScripted().QueueOpen(postURL("F1"), nil).
		QueueAdvance("", errs.New(errs.KindNetwork, "advance", "connection reset")).
		QueueAdvance(postURL("F2"), nil)
	store := testStore(t)

	res := newController(t, 2, drv, store).Walk(context.Background())

	require.NoError(t, res.Err)
	assert.Equal(t, OutcomeQuotaReached, res.Outcome)
	assert.Len(t, res.Items, 2)
	assert.Equal(t, 2, drv.Advances)
}

func TestUnclassifiedErrorTreatedAsNetwork(t *testing.T) {
	drv := driver.NewScripted().QueueOpen("", assert.AnError).
		QueueOpen(postURL("G1"), nil)
	store := testStore(t)

	res := newController(t, 1, drv, store).Walk(context.Background())

	require.NoError(t, res.Err)
	assert.Equal(t, OutcomeQuotaReached, res.Outcome)
	assert.Equal(t, 2, drv.Opens)
}

func TestAlternatingFailureKindsExhaustBudget(t *testing.T) {
	drv := driver.NewScripted().QueueOpen(postURL("K1"), nil)
	// Failure kinds flip on every attempt; the attempt counter must
	// keep climbing so the walk still terminates.
	for i := 0; i < 5; i++ {
		drv.QueueAdvance("", errs.New(errs.KindNetwork, "advance", "connection reset"))
		drv.QueueAdvance("", errs.New(errs.KindRateLimited, "advance", "429 too many requests"))
	}
	store := testStore(t)

	res := newController(t, 8, drv, store).Walk(context.Background())

	require.Error(t, res.Err)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Equal(t, errs.KindRateLimited, errs.KindOf(res.Err))
	// Six failed advances exhaust the budget; the remaining queued
	// failures are never reached.
	assert.Equal(t, 6, drv.Advances)
	assert.Len(t, res.Items, 1)
}

func TestRateLimitHintHonored(t *testing.T) {
	hinted := errs.New(errs.KindRateLimited, "advance", "429 too many requests").
		WithRetryAfter(20 * time.Millisecond)
	drv := driver.NewScripted().QueueOpen(postURL("H1"), nil).
		QueueAdvance("", hinted).
		QueueAdvance(postURL("H2"), nil)
	store := testStore(t)

	start := time.Now()
	res := newController(t, 2, drv, store).Walk(context.Background())

	require.NoError(t, res.Err)
	assert.Equal(t, OutcomeQuotaReached, res.Outcome)
	// The server hint outranks the (1ms) backoff as the cooldown floor.
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestRenderMismatchExhaustsQuickly(t *testing.T) {
	drv := driver.NewScripted().
		QueueOpen("https://www.instagram.com/alice/", nil).
		QueueAdvance("https://www.instagram.com/alice/", nil).
		QueueAdvance("https://www.instagram.com/alice/", nil)
	store := testStore(t)

	res := newController(t, 4, drv, store).Walk(context.Background())

	assert.Equal(t, OutcomeFailed, res.Outcome)
	require.Error(t, res.Err)
	assert.Equal(t, errs.KindRenderMismatch, errs.KindOf(res.Err))
	assert.Empty(t, res.Items)
}

func TestResumeSkipsCheckpointedItems(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	// A previous run collected items 1 and 2 before dying.
	for i, id := range []string{"R1", "R2"} {
		_, err := store.Append(ctx, "alice", models.ContentTypePost, models.ContentItem{
			URL: postURL(id), ID: id, ScrapedAt: time.Now().UTC(),
			Type: models.ContentTypePost, Order: i + 1,
		})
		require.NoError(t, err)
	}
	require.NoError(t, store.SnapshotCursor(ctx, "alice", models.ContentTypePost, checkpoint.Cursor{
		CurrentID: "R2", Ordinal: 2, CanAdvance: true, LastSuccess: time.Now().UTC(),
	}))

	// The restarted walk re-opens the entry point and walks through the
	// already-collected items before reaching new ground.
	drv := driver.NewScripted().QueueOpen(postURL("R1"), nil).
		QueueAdvance(postURL("R2"), nil).
		QueueAdvance(postURL("R3"), nil).
		QueueAdvance(postURL("R4"), nil)

	res := newController(t, 4, drv, store).Walk(ctx)

	require.NoError(t, res.Err)
	assert.Equal(t, OutcomeQuotaReached, res.Outcome)
	// Only the new items are emitted this run, ordinals continuing
	// where the previous run stopped.
	require.Len(t, res.Items, 2)
	assert.Equal(t, "R3", res.Items[0].ID)
	assert.Equal(t, 3, res.Items[0].Order)
	assert.Equal(t, "R4", res.Items[1].ID)
	assert.Equal(t, 4, res.Items[1].Order)

	rec, err := store.Load(ctx, "alice", models.ContentTypePost)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Len(t, rec.Items, 4)
	assert.Equal(t, 4, rec.Cursor.Ordinal)
}

func TestQuotaAlreadyMetAtResume(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	_, err := store.Append(ctx, "alice", models.ContentTypePost, models.ContentItem{
		URL: postURL("Z1"), ID: "Z1", ScrapedAt: time.Now().UTC(),
		Type: models.ContentTypePost, Order: 1,
	})
	require.NoError(t, err)
	require.NoError(t, store.SnapshotCursor(ctx, "alice", models.ContentTypePost, checkpoint.Cursor{
		CurrentID: "Z1", Ordinal: 1, CanAdvance: true, LastSuccess: time.Now().UTC(),
	}))

	drv := driver.NewScripted()
	res := newController(t, 1, drv, store).Walk(ctx)

	assert.Equal(t, OutcomeQuotaReached, res.Outcome)
	assert.Empty(t, res.Items)
	// No remote interaction at all when there is nothing left to do.
	assert.Zero(t, drv.Opens)
}

func TestCancellationYieldsPartial(t *testing.T) {
	drv := driver.NewScripted().QueueOpen(postURL("P1"), nil)
	store := testStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := newController(t, 4, drv, store).Walk(ctx)

	assert.Equal(t, OutcomePartial, res.Outcome)
	assert.ErrorIs(t, res.Err, context.Canceled)
}

func TestAbandonedSessionFailsWalk(t *testing.T) {
	drv := driver.NewScripted().
		QueueLogin("", errs.New(errs.KindAuthInvalid, "login", "bad credentials"))
	store := testStore(t)

	res := newController(t, 4, drv, store).Walk(context.Background())

	assert.Equal(t, OutcomeFailed, res.Outcome)
	require.Error(t, res.Err)
	assert.Equal(t, errs.KindAuthInvalid, errs.KindOf(res.Err))
}
