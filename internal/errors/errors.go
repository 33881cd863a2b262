// Package errors defines the error taxonomy shared by the dashboard client.
// Every failure that crosses a package boundary is one of these kinds, so
// callers can branch on the kind without parsing message text.
package errors

import (
	"errors"
	"fmt"
)

// Code identifies the machine-readable kind of an error.
type Code string

const (
	// CodeValidation means the server rejected the request payload. The
	// server-provided message is surfaced verbatim to the user.
	CodeValidation Code = "validation"
	// CodeAuth means the token is missing, expired or invalid. The local
	// session must be purged.
	CodeAuth Code = "auth"
	// CodeNetwork means a transport failure or a retryable server error.
	CodeNetwork Code = "network"
	// CodeNotFound means the requested resource does not exist. Empty
	// search or feed results are not errors and never carry this code.
	CodeNotFound Code = "not_found"
	// CodeInternal means an unexpected client-side failure.
	CodeInternal Code = "internal"
)

// Error is a typed error with a machine-readable code and the HTTP status
// that produced it, when one exists.
type Error struct {
	Code    Code
	Message string
	Status  int
	cause   error
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error { return e.cause }

// WithStatus attaches the HTTP status code that produced the error.
func (e *Error) WithStatus(status int) *Error {
	e.Status = status
	return e
}

// Validation creates a validation error carrying the server message.
func Validation(message string) *Error {
	return &Error{Code: CodeValidation, Message: message}
}

// Unauthorized creates an auth error.
func Unauthorized(message string) *Error {
	return &Error{Code: CodeAuth, Message: message}
}

// Network creates a transport error wrapping its cause.
func Network(message string, cause error) *Error {
	return &Error{Code: CodeNetwork, Message: message, cause: cause}
}

// NotFound creates a not-found error for a named resource.
func NotFound(resource string) *Error {
	return &Error{Code: CodeNotFound, Message: resource + " not found"}
}

// Internal creates an internal error wrapping its cause.
func Internal(message string, cause error) *Error {
	return &Error{Code: CodeInternal, Message: message, cause: cause}
}

// CodeOf returns the code of err, or CodeInternal for untyped errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// StatusOf returns the HTTP status recorded on err, or 0.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return 0
}

// IsAuth reports whether err is an auth error.
func IsAuth(err error) bool { return CodeOf(err) == CodeAuth }

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool { return CodeOf(err) == CodeValidation }

// IsNetwork reports whether err is a transport error.
func IsNetwork(err error) bool { return CodeOf(err) == CodeNetwork }

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool { return CodeOf(err) == CodeNotFound }
