// Package apperr defines the error kinds surfaced at the API boundary.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the caller
type Kind string

const (
	KindValidation Kind = "validation"
	KindConflict   Kind = "conflict"
	KindNotReady   Kind = "not_ready"
	KindTransport  Kind = "transport"
)

// Error carries a Kind and a user-facing message
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Validation reports missing or invalid input.
func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

// Conflict reports a uniqueness or concurrency clash.
func Conflict(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Msg: fmt.Sprintf(format, args...)}
}

// NotReady reports that the session does not permit the action yet (or any more).
func NotReady(format string, args ...any) *Error {
	return &Error{Kind: KindNotReady, Msg: fmt.Sprintf(format, args...)}
}

// Transport wraps a failed store or bus operation.
func Transport(err error, msg string) *Error {
	return &Error{Kind: KindTransport, Msg: msg, Err: err}
}

// KindOf returns the Kind of err, or KindTransport for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindTransport
}

// Message returns the user-facing message for err.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Msg
	}
	return "internal error"
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
