// Package domainerrors defines the coded error taxonomy shared by services and
// transports. Services return *Error values; transports map the Code onto an
// HTTP status with ToHTTPStatus.
package domainerrors

import (
	"errors"
	"net/http"
)

// Code classifies an error independently of its message.
type Code string

const (
	CodeNotFound       Code = "not_found"
	CodeUpstream       Code = "upstream_error"
	CodeNotImplemented Code = "not_implemented"
	CodeValidation     Code = "validation_error"
	CodeGrantDenied    Code = "grant_denied"
	CodeUnauthorized   Code = "unauthorized"
	CodeForbidden      Code = "forbidden"
	CodeBadRequest     Code = "bad_request"
	CodeConflict       Code = "conflict"
	CodeTooLarge       Code = "payload_too_large"
	CodeTooManyRequest Code = "too_many_requests"
	CodeInternal       Code = "internal_error"
)

// Error is a domain error carrying a Code, a client-safe message and an
// optional cause.
type Error struct {
	Code    Code
	Message string
	Err     error
	// Fields carries per-field validation messages for CodeValidation.
	Fields FieldErrors
}

// FieldErrors maps an input field name to a human readable message.
type FieldErrors map[string]string

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error with the same code, and the same message when the
// target sets one.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	if t.Code != e.Code {
		return false
	}
	return t.Message == "" || t.Message == e.Message
}

// New creates an error with the given code and message.
func New(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// Wrap attaches a code and message to an underlying cause.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, Err: err}
}

// Validation builds a CodeValidation error with field level details.
func Validation(msg string, fields FieldErrors) *Error {
	return &Error{Code: CodeValidation, Message: msg, Fields: fields}
}

// As extracts the outermost *Error from err.
func As(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// HasCode reports whether err is (or wraps) a domain error with code.
func HasCode(err error, code Code) bool {
	de, ok := As(err)
	return ok && de.Code == code
}

// Is is errors.Is re-exported so callers need a single import.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// ToHTTPStatus maps a code onto the status a transport should answer with.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeUpstream:
		return http.StatusBadGateway
	case CodeNotImplemented:
		return http.StatusNotImplemented
	case CodeValidation, CodeBadRequest, CodeGrantDenied:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeConflict:
		return http.StatusConflict
	case CodeTooLarge:
		return http.StatusRequestEntityTooLarge
	case CodeTooManyRequest:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
