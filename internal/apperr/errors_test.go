package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestValidationErrorUnwraps(t *testing.T) {
	err := fmt.Errorf("update limits: %w", Validation("limits.facebook", "must be between 1 and 1440"))

	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError in chain")
	}
	if verr.Field != "limits.facebook" {
		t.Errorf("expected field limits.facebook, got %q", verr.Field)
	}
	if got := verr.Error(); got != "limits.facebook: must be between 1 and 1440" {
		t.Errorf("unexpected message %q", got)
	}
}

func TestNotFoundErrorUnwraps(t *testing.T) {
	err := NotFound("activity", "abc")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if errors.Is(err, ErrValidation) {
		t.Fatalf("not found must not match validation")
	}
	if got := err.Error(); got != `activity "abc" not found` {
		t.Errorf("unexpected message %q", got)
	}
}

func TestUpstream(t *testing.T) {
	err := Upstream("smtp", errors.New("connection refused"))
	if !errors.Is(err, ErrUpstreamUnavailable) {
		t.Fatalf("expected ErrUpstreamUnavailable, got %v", err)
	}
}
