// Package domainerrors defines the code-typed error taxonomy shared by
// services and transport. Stores return sentinel facts; services translate
// them into one of these codes; transport maps codes to HTTP statuses.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies a domain failure.
type Code string

const (
	// CodeValidation marks malformed input. Nothing is persisted.
	CodeValidation Code = "validation_error"
	// CodeUnauthorized marks bad credentials (unknown guard, wrong PIN).
	CodeUnauthorized Code = "auth_error"
	// CodeForbidden marks a known caller that may not perform the operation
	// (inactive or blacklisted guard, submission outside the geofence).
	CodeForbidden Code = "authorization_error"
	// CodeConflict marks a state conflict (alternation violation,
	// double-start, checkpoint overflow).
	CodeConflict Code = "conflict_error"
	// CodeNotFound marks an unknown site, execution, or checkpoint.
	CodeNotFound Code = "not_found_error"
	// CodeIntegrity marks a stored record whose recomputed digest does not
	// match its persisted digest.
	CodeIntegrity Code = "integrity_error"
	// CodeUnavailable marks a transient network/storage failure. This is the
	// only retryable category, and only the edge client's queue retries it.
	CodeUnavailable Code = "transient_error"
	// CodeInternal marks everything else.
	CodeInternal Code = "internal_error"
)

// Error carries a code, an operator-safe message, an optional wrapped cause,
// and optional structured details surfaced in API responses (for example the
// computed geofence distance alongside the configured radius).
type Error struct {
	Code    Code
	Message string
	Details map[string]any
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds a domain error with no cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf builds a domain error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying cause.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, cause: err}
}

// WithDetails returns a copy of the error carrying response details.
func (e *Error) WithDetails(details map[string]any) *Error {
	clone := *e
	clone.Details = details
	return &clone
}

// HasCode reports whether err is (or wraps) a domain error with the code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf extracts the code from err, defaulting to CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// ToHTTPStatus maps a code to the HTTP status the public API documents.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
