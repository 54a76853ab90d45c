package errors

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestKindOf(t *testing.T) {
	err := New(KindRateLimited, "advance", "throttled")
	if got := KindOf(err); got != KindRateLimited {
		t.Errorf("KindOf = %v, want %v", got, KindRateLimited)
	}

	wrapped := fmt.Errorf("walk failed: %w", err)
	if got := KindOf(wrapped); got != KindRateLimited {
		t.Errorf("KindOf through wrapping = %v, want %v", got, KindRateLimited)
	}

	if got := KindOf(errors.New("plain")); got != KindUnknown {
		t.Errorf("KindOf(plain) = %v, want %v", got, KindUnknown)
	}
}

func TestRetryAfterHint(t *testing.T) {
	err := New(KindRateLimited, "advance", "throttled").WithRetryAfter(30 * time.Second)
	if got := RetryAfterHint(fmt.Errorf("op: %w", err)); got != 30*time.Second {
		t.Errorf("RetryAfterHint = %v, want 30s", got)
	}
	if got := RetryAfterHint(errors.New("plain")); got != 0 {
		t.Errorf("RetryAfterHint(plain) = %v, want 0", got)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		kind Kind
		want bool
	}{
		{KindNetwork, true},
		{KindRateLimited, true},
		{KindRenderMismatch, true},
		{KindStall, true},
		{KindAuthInvalid, false},
		{KindUnknown, false},
	}
	for _, tt := range tests {
		if got := IsRetryable(tt.kind); got != tt.want {
			t.Errorf("IsRetryable(%v) = %v, want %v", tt.kind, got, tt.want)
		}
	}
}

func TestMaxAttemptsOrdering(t *testing.T) {
	// network gets the most generous budget, stall exactly one retry
	if MaxAttempts(KindNetwork) <= MaxAttempts(KindRenderMismatch) {
		t.Error("network budget should exceed render mismatch budget")
	}
	if MaxAttempts(KindStall) != 1 {
		t.Errorf("stall budget = %d, want 1", MaxAttempts(KindStall))
	}
	if MaxAttempts(KindAuthInvalid) != 0 {
		t.Errorf("auth budget = %d, want 0", MaxAttempts(KindAuthInvalid))
	}
}

func TestErrorUnwrap(t *testing.T) {
	base := errors.New("connection reset")
	err := Wrap(KindNetwork, "open", base)
	if !errors.Is(err, base) {
		t.Error("Wrap should preserve the error chain")
	}
}
