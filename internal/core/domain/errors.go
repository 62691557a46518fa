package domain

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies expected domain outcomes so callers can branch on
// them instead of matching message text.
type ErrorKind string

const (
	// KindNotFound indicates the requested entity does not exist.
	KindNotFound ErrorKind = "not_found"
	// KindAlreadyExists indicates a uniqueness constraint would be violated.
	KindAlreadyExists ErrorKind = "already_exists"
	// KindNotAssigned indicates a relation removal targeted a pair that was never assigned.
	KindNotAssigned ErrorKind = "not_assigned"
	// KindValidation indicates malformed or rejected input.
	KindValidation ErrorKind = "validation"
	// KindConflict indicates the mutation would break an aggregate invariant.
	KindConflict ErrorKind = "conflict"
	// KindUnavailable indicates a transient infrastructure failure; callers may retry.
	KindUnavailable ErrorKind = "unavailable"
	// KindCanceled indicates the operation was canceled before completion.
	KindCanceled ErrorKind = "canceled"
)

// Error is the typed result value for expected domain outcomes. It is never
// used for programming errors or fatal infrastructure failures.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError constructs a typed domain error.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// WrapError attaches an underlying cause to a typed domain error.
func WrapError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// NotFoundf builds a KindNotFound error with a formatted message.
func NotFoundf(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Validationf builds a KindValidation error with a formatted message.
func Validationf(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// Conflictf builds a KindConflict error with a formatted message.
func Conflictf(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the domain error kind, mapping context cancellation to
// KindCanceled. Unknown errors report KindUnavailable so callers treat them
// as retryable infrastructure failures.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCanceled
	}
	return KindUnavailable
}

// IsKind reports whether err carries the given domain error kind.
func IsKind(err error, kind ErrorKind) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind == kind
	}
	return false
}
