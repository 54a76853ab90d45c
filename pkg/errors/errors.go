package errors

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies a failure for retry and reporting decisions.
type Kind string

const (
	KindNetwork        Kind = "network"         // timeouts, connection resets
	KindRateLimited    Kind = "rate_limited"    // explicit throttling signal
	KindRenderMismatch Kind = "render_mismatch" // expected UI affordance absent
	KindAuthInvalid    Kind = "auth_invalid"    // credentials rejected, account action required
	KindStall          Kind = "stall"           // advance returned the same item again
	KindUnknown        Kind = "unknown"
)

// Error is a classified walk failure. RetryAfter carries a
// server-signaled cooldown when the remote source provided one.
type Error struct {
	Kind       Kind
	Op         string
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s error: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s error: %s", e.Op, e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a classified error with a message.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap classifies an underlying error.
func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// WithRetryAfter attaches a server-signaled cooldown hint.
func (e *Error) WithRetryAfter(d time.Duration) *Error {
	e.RetryAfter = d
	return e
}

// KindOf extracts the failure kind from any error.
func KindOf(err error) Kind {
	var we *Error
	if errors.As(err, &we) {
		return we.Kind
	}
	return KindUnknown
}

// RetryAfterHint returns the signaled cooldown from a classified
// error, zero when none was signaled.
func RetryAfterHint(err error) time.Duration {
	var we *Error
	if errors.As(err, &we) {
		return we.RetryAfter
	}
	return 0
}

// IsRetryable reports whether a failure kind may be retried at all.
func IsRetryable(kind Kind) bool {
	switch kind {
	case KindNetwork, KindRateLimited, KindRenderMismatch, KindStall:
		return true
	case KindAuthInvalid:
		return false
	default:
		return false
	}
}

// MaxAttempts returns the retry budget for a failure kind: how many
// retries are allowed after the initial attempt. Exhausting the
// budget is always a terminal, reported failure.
func MaxAttempts(kind Kind) int {
	switch kind {
	case KindNetwork:
		return 5
	case KindRateLimited:
		return 4
	case KindRenderMismatch:
		return 2
	case KindStall:
		return 1
	default:
		return 0
	}
}
