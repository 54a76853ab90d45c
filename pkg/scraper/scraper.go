// Package scraper orchestrates a run across profiles: one worker per
// profile, each owning its driver, session and rate limiter, walking
// the selected content types in order and reporting back for the
// aggregate run report.
package scraper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"igwalker/pkg/checkpoint"
	"igwalker/pkg/config"
	"igwalker/pkg/driver"
	"igwalker/pkg/logger"
	"igwalker/pkg/models"
	"igwalker/pkg/navigator"
	"igwalker/pkg/ratelimit"
	"igwalker/pkg/retry"
	"igwalker/pkg/session"
)

// CredentialSource resolves login credentials for an account
// reference. The scraper never sees where they come from.
type CredentialSource interface {
	Resolve(account string) (session.Credentials, error)
}

// Scraper runs walks across a set of profiles.
type Scraper struct {
	cfg     *config.Config
	store   checkpoint.Store
	factory driver.Factory
	creds   CredentialSource
	log     logger.Logger

	// Restart drops existing checkpoints before walking instead of
	// resuming from them.
	Restart bool

	// newLimiter builds the per-profile rate limiter; replaceable in
	// tests to avoid real delays.
	newLimiter func() ratelimit.Limiter
}

// New creates a scraper. Each profile worker gets its own driver and
// rate limiter; the checkpoint store and retry policy are shared.
func New(cfg *config.Config, store checkpoint.Store, factory driver.Factory,
	creds CredentialSource, log logger.Logger) *Scraper {
	return &Scraper{
		cfg:     cfg,
		store:   store,
		factory: factory,
		creds:   creds,
		log:     log,
		newLimiter: func() ratelimit.Limiter {
			return ratelimit.NewIntervalLimiter(cfg.RateLimit.MinInterval, cfg.RateLimit.MaxExtraDelay)
		},
	}
}

// Run walks every profile concurrently and assembles the run report.
// A failing profile never affects the others; cancellation stops all
// walks at the next remote operation with checkpoints already durable.
func (s *Scraper) Run(ctx context.Context, profiles []models.Profile) *models.Report {
	runID := ulid.Make().String()
	log := s.log.WithField("run_id", runID)
	log.InfoWithFields("starting run", map[string]interface{}{
		"profiles": len(profiles),
	})

	policy := retry.NewPolicy()
	policy.BaseDelay = s.cfg.Retry.BaseDelay
	policy.MaxDelay = s.cfg.Retry.MaxDelay

	results := make([]models.ProfileResult, len(profiles))
	var wg sync.WaitGroup
	for i, p := range profiles {
		wg.Add(1)
		go func(i int, p models.Profile) {
			defer wg.Done()
			results[i] = s.walkProfile(ctx, p, policy, log)
		}(i, p)
	}
	wg.Wait()

	report := &models.Report{
		RunID:    runID,
		Profiles: results,
		Summary:  summarize(results),
	}
	log.InfoWithFields("run finished", map[string]interface{}{
		"successful": report.Summary.SuccessfulProfiles,
		"total":      report.Summary.TotalProfiles,
	})
	return report
}

// walkProfile runs all selected content-type walks for one profile.
func (s *Scraper) walkProfile(ctx context.Context, p models.Profile, policy *retry.Policy, log logger.Logger) models.ProfileResult {
	start := time.Now()
	result := models.ProfileResult{
		Profile: models.ProfileData{
			Username:   p.Handle,
			ProfileURL: models.ProfileURL(p.Handle),
			ScrapedAt:  start.UTC(),
			Posts:      []models.ContentItem{},
			Reels:      []models.ContentItem{},
		},
		Summary: models.ProfileSummary{Username: p.Handle},
	}
	fail := func(outcome navigator.Outcome, err error) models.ProfileResult {
		log.WithError(err).WithField("profile", p.Handle).Error("profile walk failed")
		result.Summary.Success = false
		result.Summary.Outcome = string(outcome)
		if err != nil {
			result.Summary.FailureReason = err.Error()
		}
		// Progress collected before the failure stays in the report.
		result.Summary.PostsCount = len(result.Profile.Posts)
		result.Summary.ReelsCount = len(result.Profile.Reels)
		result.Summary.ScrapingTimeSeconds = time.Since(start).Seconds()
		return result
	}

	creds, err := s.creds.Resolve(p.Account)
	if err != nil {
		return fail(navigator.OutcomeFailed, fmt.Errorf("failed to resolve credentials: %w", err))
	}
	drv, err := s.factory.NewDriver(ctx, p.Handle)
	if err != nil {
		return fail(navigator.OutcomeFailed, fmt.Errorf("failed to create driver: %w", err))
	}

	limiter := s.newLimiter()
	sess := session.New(p.Handle, creds, drv, s.store, policy, limiter, s.cfg.Session, log)

	outcome := navigator.OutcomeSourceExhausted
	for _, ct := range p.Selection.ContentTypes() {
		if s.Restart {
			if err := s.store.Reset(ctx, p.Handle, ct); err != nil {
				return fail(navigator.OutcomeFailed, fmt.Errorf("failed to reset checkpoint: %w", err))
			}
		}

		ctrl := navigator.New(p, ct, drv, sess, s.store, limiter, policy, log)
		res := ctrl.Walk(ctx)

		for _, item := range res.Items {
			if item.Type == models.ContentTypeReel {
				result.Profile.Reels = append(result.Profile.Reels, item)
			} else {
				result.Profile.Posts = append(result.Profile.Posts, item)
			}
		}
		if !res.Outcome.Succeeded() {
			return fail(res.Outcome, res.Err)
		}
		outcome = res.Outcome
	}

	result.Summary.PostsCount = len(result.Profile.Posts)
	result.Summary.ReelsCount = len(result.Profile.Reels)
	result.Summary.ScrapingTimeSeconds = time.Since(start).Seconds()
	result.Summary.Success = true
	result.Summary.Outcome = string(outcome)
	return result
}

// summarize rolls up per-profile summaries into the run summary.
func summarize(results []models.ProfileResult) models.RunSummary {
	sum := models.RunSummary{
		TotalProfiles: len(results),
		ScrapedAt:     time.Now().UTC(),
	}
	for _, r := range results {
		if r.Summary.Success {
			sum.SuccessfulProfiles++
		}
		sum.TotalPosts += r.Summary.PostsCount
		sum.TotalReels += r.Summary.ReelsCount
	}
	if sum.TotalProfiles > 0 {
		sum.SuccessRate = float64(sum.SuccessfulProfiles) / float64(sum.TotalProfiles) * 100
	}
	return sum
}

// ThresholdMet reports whether enough profiles succeeded for a zero
// exit status. A zero min-success requires every requested profile to
// succeed.
func (s *Scraper) ThresholdMet(report *models.Report) bool {
	required := s.cfg.Walk.MinSuccess
	if required <= 0 || required > report.Summary.TotalProfiles {
		required = report.Summary.TotalProfiles
	}
	return report.Summary.SuccessfulProfiles >= required
}
