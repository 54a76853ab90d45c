package driver

import (
	"context"
	"sync"

	"igwalker/pkg/models"
)

// StepResult is one scripted reply from the fake remote surface.
type StepResult struct {
	URL string
	Err error
}

// LoginResult is one scripted reply to a login attempt.
type LoginResult struct {
	Token string
	Err   error
}

// ScriptedDriver is a step-programmable Driver used by tests. Each
// queue is consumed one entry per call; an exhausted advance queue
// yields ErrNoMoreItems, matching a source that ran out of items.
type ScriptedDriver struct {
	mu sync.Mutex

	openQueue     []StepResult
	advanceQueue  []StepResult
	loginQueue    []LoginResult
	validateQueue []bool

	// ValidateDefault is returned once the validate queue is empty.
	ValidateDefault bool
	// RestoreErr, when set, fails RestoreSession calls.
	RestoreErr error

	Opens     int
	Advances  int
	Logins    int
	Restores  int
	Validates int
	Closes    int

	// RestoredToken records the last token passed to RestoreSession.
	RestoredToken string
}

// NewScripted returns a driver whose session probes succeed by
// default.
func NewScripted() *ScriptedDriver {
	return &ScriptedDriver{ValidateDefault: true}
}

// QueueOpen appends a reply for the next OpenEntryPoint call.
func (d *ScriptedDriver) QueueOpen(url string, err error) *ScriptedDriver {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.openQueue = append(d.openQueue, StepResult{URL: url, Err: err})
	return d
}

// QueueAdvance appends a reply for the next Advance call.
func (d *ScriptedDriver) QueueAdvance(url string, err error) *ScriptedDriver {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.advanceQueue = append(d.advanceQueue, StepResult{URL: url, Err: err})
	return d
}

// QueueLogin appends a reply for the next Login call.
func (d *ScriptedDriver) QueueLogin(token string, err error) *ScriptedDriver {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.loginQueue = append(d.loginQueue, LoginResult{Token: token, Err: err})
	return d
}

// QueueValidate appends a reply for the next ValidateSession call.
func (d *ScriptedDriver) QueueValidate(ok bool) *ScriptedDriver {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.validateQueue = append(d.validateQueue, ok)
	return d
}

func (d *ScriptedDriver) Login(ctx context.Context, username, password string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Logins++
	if len(d.loginQueue) == 0 {
		return "scripted-token", nil
	}
	r := d.loginQueue[0]
	d.loginQueue = d.loginQueue[1:]
	return r.Token, r.Err
}

func (d *ScriptedDriver) RestoreSession(ctx context.Context, token string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Restores++
	d.RestoredToken = token
	return d.RestoreErr
}

func (d *ScriptedDriver) ValidateSession(ctx context.Context) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Validates++
	if len(d.validateQueue) == 0 {
		return d.ValidateDefault, nil
	}
	ok := d.validateQueue[0]
	d.validateQueue = d.validateQueue[1:]
	return ok, nil
}

func (d *ScriptedDriver) OpenEntryPoint(ctx context.Context, handle string, ct models.ContentType) (RenderedItem, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Opens++
	if len(d.openQueue) == 0 {
		return RenderedItem{}, ErrNoMoreItems
	}
	r := d.openQueue[0]
	d.openQueue = d.openQueue[1:]
	if r.Err != nil {
		return RenderedItem{}, r.Err
	}
	return RenderedItem{URL: r.URL}, nil
}

func (d *ScriptedDriver) Advance(ctx context.Context) (RenderedItem, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Advances++
	if len(d.advanceQueue) == 0 {
		return RenderedItem{}, ErrNoMoreItems
	}
	r := d.advanceQueue[0]
	d.advanceQueue = d.advanceQueue[1:]
	if r.Err != nil {
		return RenderedItem{}, r.Err
	}
	return RenderedItem{URL: r.URL}, nil
}

func (d *ScriptedDriver) CloseSurface(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Closes++
	return nil
}

func init() {
	// The scripted driver doubles as a dry-run backend: with nothing
	// queued every walk ends immediately with no items.
	RegisterFactory("scripted", NewScriptedFactory())
}

// ScriptedFactory hands out pre-built scripted drivers by profile
// handle.
type ScriptedFactory struct {
	mu      sync.Mutex
	Drivers map[string]*ScriptedDriver
}

// NewScriptedFactory creates an empty factory; tests register drivers
// per handle before the run.
func NewScriptedFactory() *ScriptedFactory {
	return &ScriptedFactory{Drivers: make(map[string]*ScriptedDriver)}
}

// Register binds a scripted driver to a profile handle.
func (f *ScriptedFactory) Register(handle string, d *ScriptedDriver) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Drivers[handle] = d
}

func (f *ScriptedFactory) NewDriver(ctx context.Context, handle string) (Driver, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d, ok := f.Drivers[handle]; ok {
		return d, nil
	}
	d := NewScripted()
	f.Drivers[handle] = d
	return d, nil
}
