// Package apperr classifies service errors so transports can map them to
// status codes without knowing every sentinel.
package apperr

import "errors"

// Kind is a broad error category. Kinds are errors themselves so callers can
// write errors.Is(err, apperr.NotFound).
type Kind string

func (k Kind) Error() string { return string(k) }

const (
	NotFound        Kind = "not found"
	Conflict        Kind = "conflict"
	Unauthenticated Kind = "unauthenticated"
	Forbidden       Kind = "forbidden"
	Validation      Kind = "validation"
	Upstream        Kind = "upstream failure"
)

// Error is a categorized error with a user-facing message.
type Error struct {
	Kind Kind
	Msg  string
}

// New returns a categorized error.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func (e *Error) Error() string { return e.Msg }

// Is reports whether target is this error's kind or the same sentinel.
func (e *Error) Is(target error) bool {
	if k, ok := target.(Kind); ok {
		return e.Kind == k
	}
	return false
}

// KindOf returns the kind attached to err, or "" when err is uncategorized.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Message returns the user-facing message of a categorized error. Other
// errors yield fallback so internal details never reach clients.
func Message(err error, fallback string) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Msg
	}
	return fallback
}
