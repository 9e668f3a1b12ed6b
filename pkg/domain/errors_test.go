package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorMatching(t *testing.T) {
	cases := []struct {
		err     error
		matches []error
		misses  []error
	}{
		{NotFound("VAX-1"), []error{ErrBatchNotFound}, []error{ErrInvalidArgument}},
		{InvalidStagef("bad"), []error{ErrInvalidStage, ErrInvalidArgument}, []error{ErrInvalidStatus}},
		{InvalidStatusf("bad"), []error{ErrInvalidStatus, ErrInvalidArgument}, []error{ErrInvalidStage}},
		{InvalidArgumentf("bad"), []error{ErrInvalidArgument}, []error{ErrInvalidStage}},
		{AuditUnavailable(errors.New("down")), []error{ErrAuditSinkUnavailable}, []error{ErrInvalidArgument}},
	}
	for _, tc := range cases {
		wrapped := fmt.Errorf("op: %w", tc.err)
		for _, target := range tc.matches {
			if !errors.Is(wrapped, target) {
				t.Errorf("%v should match %v", tc.err, target)
			}
		}
		for _, target := range tc.misses {
			if errors.Is(wrapped, target) {
				t.Errorf("%v should not match %v", tc.err, target)
			}
		}
	}
}

func TestErrorMessagesAndCause(t *testing.T) {
	if got := NotFound("VAX-1").Error(); got != "batch VAX-1 not found" {
		t.Fatalf("unexpected message %q", got)
	}
	cause := errors.New("connection refused")
	err := AuditUnavailable(cause)
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause in chain")
	}
	if err.Error() != "audit sink unavailable: connection refused" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestCodeOf(t *testing.T) {
	code, ok := CodeOf(fmt.Errorf("wrap: %w", InvalidStagef("x")))
	if !ok || code != CodeInvalidStage {
		t.Fatalf("expected INVALID_STAGE, got %q %v", code, ok)
	}
	if _, ok := CodeOf(errors.New("plain")); ok {
		t.Fatalf("plain errors carry no code")
	}
	if _, ok := CodeOf(nil); ok {
		t.Fatalf("nil carries no code")
	}
}
