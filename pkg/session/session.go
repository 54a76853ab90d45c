// Package session manages the authentication lifecycle for one
// profile. The state machine guarantees that no navigation operation
// runs unless the session is Authenticated.
package session

import (
	"context"
	"time"

	"igwalker/pkg/checkpoint"
	"igwalker/pkg/config"
	"igwalker/pkg/driver"
	errs "igwalker/pkg/errors"
	"igwalker/pkg/logger"
	"igwalker/pkg/ratelimit"
	"igwalker/pkg/retry"
)

// State is the authentication lifecycle state.
type State string

const (
	StateUnauthenticated State = "unauthenticated"
	StateAuthenticating  State = "authenticating"
	StateAuthenticated   State = "authenticated"
	StateStale           State = "stale"
	StateAbandoned       State = "abandoned"
)

// Credentials is a resolved username/password pair. The session never
// persists these; only the opaque token returned by the driver is
// stored.
type Credentials struct {
	Username string
	Password string
}

// Session owns the authentication state for exactly one profile. It
// is driven by a single profile worker and is not safe for concurrent
// use.
type Session struct {
	profile string
	creds   Credentials
	drv     driver.Driver
	store   checkpoint.Store
	policy  *retry.Policy
	limiter ratelimit.Limiter
	cfg     config.SessionConfig
	log     logger.Logger

	state         State
	token         string
	lastValidated time.Time
	refreshes     int

	now func() time.Time
}

// New creates a session in the Unauthenticated state.
func New(profile string, creds Credentials, drv driver.Driver, store checkpoint.Store,
	policy *retry.Policy, limiter ratelimit.Limiter, cfg config.SessionConfig, log logger.Logger) *Session {
	return &Session{
		profile: profile,
		creds:   creds,
		drv:     drv,
		store:   store,
		policy:  policy,
		limiter: limiter,
		cfg:     cfg,
		log:     log.WithField("profile", profile),
		state:   StateUnauthenticated,
		now:     time.Now,
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return s.state
}

// Ensure brings the session to Authenticated before a navigation
// operation, probing the current session and re-authenticating as
// needed. Returns a classified terminal error once the session is
// abandoned.
func (s *Session) Ensure(ctx context.Context) error {
	switch s.state {
	case StateAbandoned:
		return errs.New(errs.KindAuthInvalid, "session", "session abandoned for profile "+s.profile)

	case StateUnauthenticated:
		if err := s.bootstrap(ctx); err != nil {
			return err
		}

	case StateStale:
		if err := s.refresh(ctx); err != nil {
			return err
		}
	}

	// Lightweight probe before every use.
	ok, err := s.probe(ctx)
	if err != nil {
		return err
	}
	if ok {
		s.refreshes = 0
		s.lastValidated = s.now()
		return nil
	}

	s.log.Warn("session probe failed, marking stale")
	s.state = StateStale
	if err := s.refresh(ctx); err != nil {
		return err
	}

	ok, err = s.probe(ctx)
	if err != nil {
		return err
	}
	if !ok {
		s.abandon()
		return errs.New(errs.KindAuthInvalid, "session", "session unusable after refresh")
	}
	s.refreshes = 0
	s.lastValidated = s.now()
	return nil
}

// bootstrap moves Unauthenticated to Authenticated, preferring a
// persisted session within its expiry hint when reuse is enabled.
func (s *Session) bootstrap(ctx context.Context) error {
	if !s.cfg.Reuse {
		// fresh-login request destroys the persisted session
		if err := s.store.DeleteSession(ctx, s.profile); err != nil {
			s.log.WithError(err).Warn("failed to drop persisted session")
		}
		return s.authenticate(ctx)
	}

	blob, err := s.store.LoadSession(ctx, s.profile)
	if err != nil {
		s.log.WithError(err).Warn("failed to load persisted session")
	}
	if blob == nil || s.now().Sub(blob.LastValidated) > s.cfg.TTL {
		return s.authenticate(ctx)
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return err
	}
	if err := s.drv.RestoreSession(ctx, blob.Token); err != nil {
		s.log.WithError(err).Info("persisted session rejected, logging in")
		return s.authenticate(ctx)
	}

	// Optimistically Authenticated; Ensure's probe still runs.
	s.token = blob.Token
	s.lastValidated = blob.LastValidated
	s.state = StateAuthenticated
	s.log.InfoWithFields("restored persisted session", map[string]interface{}{
		"last_validated": blob.LastValidated,
	})
	return nil
}

// authenticate performs the full login sequence, retrying transient
// failures per the policy. Permanent failures abandon the session.
func (s *Session) authenticate(ctx context.Context) error {
	s.state = StateAuthenticating
	s.log.Info("authenticating")

	var token string
	err := retry.Do(ctx, s.policy, func() error {
		if err := s.limiter.Acquire(ctx); err != nil {
			return err
		}
		var lerr error
		token, lerr = s.drv.Login(ctx, s.creds.Username, s.creds.Password)
		return lerr
	})
	if err != nil {
		s.abandon()
		if errs.KindOf(err) == errs.KindAuthInvalid {
			return err
		}
		return errs.Wrap(errs.KindAuthInvalid, "login", err)
	}

	now := s.now()
	s.token = token
	s.lastValidated = now
	s.state = StateAuthenticated

	if err := s.store.SaveSession(ctx, s.profile, checkpoint.SessionBlob{
		Token:         token,
		LastValidated: now,
	}); err != nil {
		s.log.WithError(err).Warn("failed to persist session")
	}
	s.log.Info("authenticated")
	return nil
}

// refresh re-authenticates a stale session, bounded by the refresh
// attempt budget.
func (s *Session) refresh(ctx context.Context) error {
	if s.refreshes >= s.cfg.MaxRefreshAttempts {
		s.abandon()
		return errs.New(errs.KindAuthInvalid, "session", "refresh attempts exhausted")
	}
	s.refreshes++
	return s.authenticate(ctx)
}

// probe runs the lightweight validation check.
func (s *Session) probe(ctx context.Context) (bool, error) {
	if err := s.limiter.Acquire(ctx); err != nil {
		return false, err
	}
	ok, err := s.drv.ValidateSession(ctx)
	if err != nil {
		kind := errs.KindOf(err)
		if kind == errs.KindUnknown {
			kind = errs.KindNetwork
		}
		return false, errs.Wrap(kind, "validate", err)
	}
	return ok, nil
}

func (s *Session) abandon() {
	s.state = StateAbandoned
	s.log.Error("session abandoned")
}
