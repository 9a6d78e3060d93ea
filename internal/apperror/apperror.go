// Package apperror defines the coded errors shared across the backend.
package apperror

import (
	"errors"
	"fmt"
)

// Code classifies an error for handlers and logs.
type Code string

const (
	CodeUnauthorized    Code = "UNAUTHORIZED"
	CodeNotFound        Code = "NOT_FOUND"
	CodeInvalidInput    Code = "INVALID_INPUT"
	CodeUpstreamFailure Code = "UPSTREAM_FAILURE"
	CodeTransport       Code = "TRANSPORT_ERROR"
	CodeStorage         Code = "STORAGE_FAILURE"
)

// Error carries a code, a short reason safe to log, and an optional cause.
type Error struct {
	Code   Code
	Reason string
	Err    error

	// StatusCode is set for UPSTREAM_FAILURE.
	StatusCode int
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates an error with the given code.
func New(code Code, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}

// NotFound reports a missing record.
func NotFound(reason string) *Error {
	return &Error{Code: CodeNotFound, Reason: reason}
}

// InvalidInput reports a rejected argument.
func InvalidInput(reason string) *Error {
	return &Error{Code: CodeInvalidInput, Reason: reason}
}

// Upstream reports a non-2xx answer from an external service.
func Upstream(service string, status int) *Error {
	return &Error{
		Code:       CodeUpstreamFailure,
		Reason:     fmt.Sprintf("%s returned status %d", service, status),
		StatusCode: status,
	}
}

// Transport reports a network or decoding failure talking to a service.
func Transport(service string, err error) *Error {
	return &Error{Code: CodeTransport, Reason: service, Err: err}
}

// Storage reports a failed store operation.
func Storage(op string, err error) *Error {
	return &Error{Code: CodeStorage, Reason: op, Err: err}
}

// CodeOf returns the code of the first *Error in err's chain, or "" if none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}
