// Package apperr carries the error taxonomy shared by the stores and the
// HTTP layer: invalid input, not found, state conflict and access denied.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for callers and the HTTP status mapping.
type Kind int

const (
	// KindUnknown marks errors that did not originate in this package.
	KindUnknown Kind = iota
	// KindInvalid is a missing or malformed input.
	KindInvalid
	// KindNotFound is a missing project, task, change order or user.
	KindNotFound
	// KindConflict is an operation not legal from the current state.
	KindConflict
	// KindDenied is a failed authorization predicate.
	KindDenied
)

// Error is a classified failure with a human-readable message.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return e.Message }

// Invalid reports malformed input.
func Invalid(msg string) error { return &Error{Kind: KindInvalid, Message: msg} }

// Invalidf reports malformed input with a formatted message.
func Invalidf(format string, args ...any) error {
	return &Error{Kind: KindInvalid, Message: fmt.Sprintf(format, args...)}
}

// NotFound reports a missing entity.
func NotFound(msg string) error { return &Error{Kind: KindNotFound, Message: msg} }

// NotFoundf reports a missing entity with a formatted message.
func NotFoundf(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Conflict reports an operation attempted from a state that does not
// permit it. Store-level transaction conflicts surface here as well and
// are retryable by the caller.
func Conflict(msg string) error { return &Error{Kind: KindConflict, Message: msg} }

// Conflictf reports a state conflict with a formatted message.
func Conflictf(format string, args ...any) error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// Denied reports a failed access check.
func Denied(msg string) error { return &Error{Kind: KindDenied, Message: msg} }

// KindOf extracts the kind from err, or KindUnknown for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
