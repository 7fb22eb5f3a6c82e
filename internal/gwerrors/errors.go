// Package gwerrors defines the typed error kinds used across gatewayd's
// request paths, per the gateway's error-handling design: every terminal
// path returns one of these kinds (or wraps one with %w) so callers can map
// it to a client-facing disposition without string matching.
package gwerrors

import "errors"

// Kind identifies the category of a gatewayd error.
type Kind string

const (
	AuthMissing      Kind = "auth_missing"
	Blocked          Kind = "blocked"
	Inactive         Kind = "inactive"
	QuotaExceeded    Kind = "quota_exceeded"
	PermissionDenied Kind = "permission_denied"
	BreakerOpen      Kind = "breaker_open"
	TransportError   Kind = "transport_error"
	ToolError        Kind = "tool_error"
	PromptUnsafe     Kind = "prompt_unsafe"
	IterationCap     Kind = "iteration_cap"
	ClientGone       Kind = "client_gone"
	Internal         Kind = "internal"
)

// Error is a typed gatewayd error carrying a Kind alongside the message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an Error of the given kind with a message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an Error of the given kind wrapping err.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the Kind from err, walking the unwrap chain. Returns
// Internal if err is not (or does not wrap) a *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}
