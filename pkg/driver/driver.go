// Package driver defines the contract between the walk engine and a
// UI-automation implementation. The engine never touches markup or
// selectors; it asks a Driver to perform abstract actions and reports
// outcomes. Concrete implementations (a browser automation stack) live
// outside this module.
package driver

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"igwalker/pkg/models"
)

// ErrNoMoreItems is returned by Advance when the remote surface has
// no next item. It is a normal terminal signal, not a failure.
var ErrNoMoreItems = errors.New("no more items available")

// RenderedItem is the fixed-shape record the driver extracts from the
// currently rendered item.
type RenderedItem struct {
	URL string
}

// Driver performs remote UI actions for exactly one profile. All
// calls are fallible, possibly slow, and rate sensitive; the engine
// acquires its rate limiter before every one of them. A Driver is
// never shared between profiles.
type Driver interface {
	// Login performs a full login sequence and returns an opaque
	// session token on success.
	Login(ctx context.Context, username, password string) (string, error)

	// RestoreSession applies a previously persisted session token.
	RestoreSession(ctx context.Context, token string) error

	// ValidateSession probes whether the current session is usable
	// (an authenticated-only affordance is present).
	ValidateSession(ctx context.Context) (bool, error)

	// OpenEntryPoint opens the first content item of the given kind on
	// the profile's page, rendering the modal surface.
	OpenEntryPoint(ctx context.Context, handle string, ct models.ContentType) (RenderedItem, error)

	// Advance moves the modal to the next item. Returns ErrNoMoreItems
	// at the end of the sequence.
	Advance(ctx context.Context) (RenderedItem, error)

	// CloseSurface dismisses the modal. Called when a walk ends,
	// success or not.
	CloseSurface(ctx context.Context) error
}

// Factory yields one exclusive Driver per profile, guaranteeing that
// cookies and identity are never shared across profiles.
type Factory interface {
	NewDriver(ctx context.Context, handle string) (Driver, error)
}

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]Factory)
)

// RegisterFactory makes a driver factory available under a name, the
// way database/sql drivers register themselves. Implementations call
// it from an init function; the importing binary selects by name.
func RegisterFactory(name string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	if f == nil {
		panic("driver: RegisterFactory with nil factory")
	}
	if _, dup := factories[name]; dup {
		panic("driver: RegisterFactory called twice for " + name)
	}
	factories[name] = f
}

// OpenFactory returns the named driver factory.
func OpenFactory(name string) (Factory, error) {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	f, ok := factories[name]
	if !ok {
		names := make([]string, 0, len(factories))
		for n := range factories {
			names = append(names, n)
		}
		sort.Strings(names)
		return nil, fmt.Errorf("unknown driver %q (registered: %s)", name, strings.Join(names, ", "))
	}
	return f, nil
}
