// Package apierr defines the stable error-kind taxonomy every sn77-server
// handler and orchestrator returns, per spec.md §7.
package apierr

import (
	"errors"
	"fmt"
)

// Kind is one of the stable, user-facing error categories.
type Kind string

const (
	InvalidInput         Kind = "InvalidInput"
	AuthError            Kind = "AuthError"
	InvalidPool          Kind = "InvalidPool"
	InvalidBlock         Kind = "InvalidBlock"
	StaleBlock           Kind = "StaleBlock"
	NotAHolder           Kind = "NotAHolder"
	RateLimited          Kind = "RateLimited"
	CooldownActive       Kind = "CooldownActive"
	DatabaseError        Kind = "DatabaseError"
	UpstreamError        Kind = "UpstreamError"
	NotRegisteredMiner   Kind = "NotRegisteredMiner"
	VersionIncompatible  Kind = "VersionIncompatible"
	InternalError        Kind = "InternalError"
)

// Error is a typed error carrying a stable Kind plus a user-facing Message.
// The underlying cause, if any, is available via Unwrap but is never
// serialized to clients.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates an Error with the given kind and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an Error with the given kind, message, and underlying cause.
// The cause is logged by callers but never reaches the HTTP response body.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// As extracts an *Error from err (including wrapped chains), reporting
// ok=false for nil or foreign errors, in which case callers should treat
// the failure as InternalError.
func As(err error) (*Error, bool) {
	var target *Error
	if err == nil {
		return nil, false
	}
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}
