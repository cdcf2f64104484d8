package errs

import (
	"errors"
	"strings"
	"testing"
)

func TestKindOf_DirectError(t *testing.T) {
	err := New(KindNotFound, "station missing")
	if got := KindOf(err); got != KindNotFound {
		t.Errorf("KindOf() = %q, want %q", got, KindNotFound)
	}
}

func TestKindOf_WrappedError(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(KindSourceUnavailable, "ping failed", cause)

	if got := KindOf(err); got != KindSourceUnavailable {
		t.Errorf("KindOf() = %q, want %q", got, KindSourceUnavailable)
	}
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find the wrapped cause")
	}
}

func TestKindOf_PlainError(t *testing.T) {
	if got := KindOf(errors.New("boom")); got != KindInternal {
		t.Errorf("KindOf() on a plain error = %q, want %q", got, KindInternal)
	}
}

func TestIs(t *testing.T) {
	err := New(KindSlugTaken, "slug rock already exists")
	if !Is(err, KindSlugTaken) {
		t.Error("Is() should report true for a matching kind")
	}
	if Is(err, KindNotFound) {
		t.Error("Is() should report false for a non-matching kind")
	}
}

func TestErrorString_IncludesCause(t *testing.T) {
	cause := errors.New("dial tcp: timeout")
	err := Wrap(KindSourceUnavailable, "search3 failed", cause)

	msg := err.Error()
	if !strings.Contains(msg, cause.Error()) {
		t.Fatalf("Error() = %q, want it to include the cause %q", msg, cause.Error())
	}
	if !errors.Is(err, cause) {
		t.Error("Unwrap chain broken")
	}
}
