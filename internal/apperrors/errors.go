// Package apperrors provides structured application errors with HTTP status mapping.
package apperrors

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for classification via errors.Is().
var (
	ErrValidation = errors.New("validation error")
	ErrResolution = errors.New("resolution error")
	ErrDispatch   = errors.New("dispatch error")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrInternal   = errors.New("internal error")
)

// Error provides structured error with context.
type Error struct {
	Sentinel error    // Wrapped sentinel for errors.Is() classification
	Message  string   // Human-readable message
	Field    string   // For validation errors (e.g., "runAt", "sourceName")
	Allowed  []string // Allowed values for the offending field, when a fixed whitelist exists
	Resource string   // For not found/conflict (e.g., "run")
	Op       string   // Operation that failed (e.g., "awsbatch.submitJob")
	Cause    error    // Underlying error
}

// Error returns the human-readable error message.
func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the sentinel error for errors.Is() classification.
func (e *Error) Unwrap() error {
	return e.Sentinel
}

// Validation creates a validation error for a specific field.
func Validation(field, message string) error {
	return &Error{
		Sentinel: ErrValidation,
		Message:  message,
		Field:    field,
	}
}

// ValidationAllowed creates a validation error for a field restricted to a
// fixed set of values. The allowed values travel with the error so the API
// layer can surface them to the caller.
func ValidationAllowed(field, got string, allowed ...string) error {
	return &Error{
		Sentinel: ErrValidation,
		Message:  fmt.Sprintf("%s %q not supported, choose from: %s", field, got, strings.Join(allowed, ", ")),
		Field:    field,
		Allowed:  allowed,
	}
}

// Resolution creates an error for a failed external source-locator lookup.
// Resolution failures abort a submission before any record is created.
func Resolution(op string, cause error) error {
	return &Error{
		Sentinel: ErrResolution,
		Message:  fmt.Sprintf("%s: %v", op, cause),
		Op:       op,
		Cause:    cause,
	}
}

// Dispatch creates an error for a backend that rejected or could not receive
// a job. Dispatch errors are recorded against the run, never returned to the
// submitting caller.
func Dispatch(op string, cause error) error {
	return &Error{
		Sentinel: ErrDispatch,
		Message:  fmt.Sprintf("%s: %v", op, cause),
		Op:       op,
		Cause:    cause,
	}
}

// NotFound creates a not found error for a resource.
func NotFound(resource, id string) error {
	return &Error{
		Sentinel: ErrNotFound,
		Message:  fmt.Sprintf("%s %s not found", resource, id),
		Resource: resource,
	}
}

// Conflict creates a conflict error for a resource.
func Conflict(resource, id, reason string) error {
	return &Error{
		Sentinel: ErrConflict,
		Message:  fmt.Sprintf("%s %s: %s", resource, id, reason),
		Resource: resource,
	}
}

// Internal creates an internal error wrapping an underlying cause.
func Internal(op string, cause error) error {
	return &Error{
		Sentinel: ErrInternal,
		Message:  fmt.Sprintf("%s: %v", op, cause),
		Op:       op,
		Cause:    cause,
	}
}
