// Package apperr defines the error taxonomy shared by every core service.
// All business-rule failures carry a stable machine-readable kind so the API
// layer can map them to HTTP statuses without string matching.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindInvalidInput       Kind = "invalid_input"
	KindNotFound           Kind = "not_found"
	KindInvalidTransition  Kind = "invalid_transition"
	KindInsufficientFunds  Kind = "insufficient_funds"
	KindPolicyViolation    Kind = "policy_violation"
	KindConflict           Kind = "conflict"
	KindInvariantViolation Kind = "invariant_violation"
)

// Error is a kinded error. InvariantViolation is always a bug in the caller
// or the core itself, never a user-triggered condition.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an Error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying error.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of err, or KindInvariantViolation for errors that
// did not originate from this taxonomy (an unclassified failure is a bug).
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInvariantViolation
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
