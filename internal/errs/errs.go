// Package errs defines the named error kinds shared across every component
// of the broadcasting engine so that the HTTP layer can map them to status
// codes without sniffing error text.
package errs

import (
	"errors"
	"fmt"
)

// Kind identifies one of the well-known error surfaces. It is a string, not
// an enum, so it round-trips cleanly through JSON bodies and log fields.
type Kind string

const (
	KindValidation         Kind = "validation"
	KindNotFound           Kind = "not_found"
	KindSlugTaken          Kind = "slug_taken"
	KindNotActive          Kind = "not_active"
	KindAlreadyActive      Kind = "already_active"
	KindEmptyPlaylist      Kind = "empty_playlist"
	KindSourceUnavailable  Kind = "source_unavailable"
	KindSourceUnauthorized Kind = "source_unauthorized"
	KindDecodeError        Kind = "decode_error"
	KindModelError         Kind = "model_error"
	KindFileNotFound       Kind = "file_not_found"
	KindInsufficientSeeds  Kind = "insufficient_seeds"
	KindStationDegraded    Kind = "station_degraded"
	KindGone               Kind = "gone"
	KindNotYet             Kind = "not_yet"
	KindCapacity           Kind = "capacity"
	KindInternal           Kind = "internal"
)

// Error is the common shape for every named error kind. Components build one
// with New or Wrap; callers recover it with errors.As or KindOf.
type Error struct {
	kind    Kind
	message string
	cause   error
}

// New creates a bare error of the given kind with a message.
func New(kind Kind, message string) *Error {
	return &Error{kind: kind, message: message}
}

// Wrap attaches a kind to an underlying error, preserving it for errors.Is/As.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{kind: kind, message: message, cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.kind, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.message)
}

func (e *Error) Unwrap() error { return e.cause }

// Kind returns the error's surface kind.
func (e *Error) Kind() Kind { return e.kind }

// KindOf extracts the Kind from err, defaulting to KindInternal when err
// does not carry one of ours.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return KindInternal
}

// Is reports whether err was built with kind k, at any wrapping depth.
func Is(err error, k Kind) bool {
	return KindOf(err) == k
}
