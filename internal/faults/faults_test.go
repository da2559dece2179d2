package faults

import (
	"errors"
	"fmt"
	"testing"
)

func TestCodeOfClassified(t *testing.T) {
	err := New(AuthFailed, "token rejected")
	if got := CodeOf(err); got != AuthFailed {
		t.Fatalf("expected AUTH_FAILED, got %s", got)
	}
}

func TestCodeOfWrappedChain(t *testing.T) {
	inner := Wrap(RateLimit, "too many calls", errors.New("429"))
	outer := fmt.Errorf("publish: %w", inner)
	if got := CodeOf(outer); got != RateLimit {
		t.Fatalf("expected RATE_LIMIT through wrap chain, got %s", got)
	}
	if !Is(outer, RateLimit) {
		t.Fatalf("Is should see RATE_LIMIT through wrap chain")
	}
}

func TestCodeOfUnclassifiedDefaultsToRequestFailed(t *testing.T) {
	if got := CodeOf(errors.New("connection reset")); got != RequestFailed {
		t.Fatalf("expected REQUEST_FAILED fallback, got %s", got)
	}
}

func TestWrapNilIsNil(t *testing.T) {
	if Wrap(Timeout, "", nil) != nil {
		t.Fatalf("wrapping nil must stay nil")
	}
}
