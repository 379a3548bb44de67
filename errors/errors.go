// Package errors provides error handling for BuzzSnip.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - Details and hints that stay out of user-facing messages
//
// On top of the re-exports it defines the service's error taxonomy as
// sentinels. Wrap a sentinel (or Mark an error with one) and callers
// classify with Is:
//
//	if errors.Is(err, errors.ErrCapacity) {
//	    // admission ceiling reached
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
	Mark         = crdb.Mark
)

// User-facing messages and details
var (
	WithHint        = crdb.WithHint
	WithHintf       = crdb.WithHintf
	WithDetail      = crdb.WithDetail
	WithDetailf     = crdb.WithDetailf
	WithSafeDetails = crdb.WithSafeDetails
)

// Error inspection
var (
	Is             = crdb.Is
	IsAny          = crdb.IsAny
	As             = crdb.As
	Unwrap         = crdb.Unwrap
	UnwrapAll      = crdb.UnwrapAll
	GetAllHints    = crdb.GetAllHints
	GetAllDetails  = crdb.GetAllDetails
	FlattenHints   = crdb.FlattenHints
	FlattenDetails = crdb.FlattenDetails

	GetReportableStackTrace = crdb.GetReportableStackTrace
)

// Sentinel errors for the service's error taxonomy.
// Use these with errors.Is() for type-safe error checking.
// Wrap these with errors.Wrap() to add context while preserving the type.
var (
	// ErrNotFound indicates the requested schedule or job does not exist
	ErrNotFound = New("not found")

	// ErrInvalidRequest indicates missing or malformed input
	ErrInvalidRequest = New("invalid request")

	// ErrInvalidTransition indicates a job status change that the state machine forbids
	ErrInvalidTransition = Wrap(ErrInvalidRequest, "invalid status transition")

	// ErrCapacity indicates the admission ceiling for active jobs was reached
	ErrCapacity = New("capacity exceeded")

	// ErrServiceUnavailable indicates the generation service could not be reached or timed out
	ErrServiceUnavailable = New("service unavailable")

	// ErrGenerationFailed indicates the generation service answered with a non-success status
	ErrGenerationFailed = New("generation failed")

	// ErrStore indicates a persistence read or write failure
	ErrStore = New("store failure")

	// ErrConflict indicates a resource conflict (e.g., duplicate key)
	ErrConflict = New("resource conflict")
)

// FieldError is a validation failure tied to one input field.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	if e.Reason == "" {
		return "invalid field: " + e.Field
	}
	return e.Field + ": " + e.Reason
}

// Unwrap makes every FieldError match ErrInvalidRequest.
func (e *FieldError) Unwrap() error { return ErrInvalidRequest }

// NewFieldError creates a validation error for field with a formatted reason.
func NewFieldError(field, format string, args ...interface{}) error {
	return WithStack(&FieldError{Field: field, Reason: Newf(format, args...).Error()})
}

// MissingField is the validation error for an absent required field.
func MissingField(field string) error {
	return WithStack(&FieldError{Field: field, Reason: "missing required field"})
}

// FieldOf returns the offending field of a validation error, or "" when err carries none.
func FieldOf(err error) string {
	var fe *FieldError
	if As(err, &fe) {
		return fe.Field
	}
	return ""
}

// IsNotFoundError checks if an error is or wraps ErrNotFound
func IsNotFoundError(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// IsInvalidRequestError checks if an error is or wraps ErrInvalidRequest
func IsInvalidRequestError(err error) bool {
	return err != nil && Is(err, ErrInvalidRequest)
}

// IsCapacityError checks if an error is or wraps ErrCapacity
func IsCapacityError(err error) bool {
	return err != nil && Is(err, ErrCapacity)
}

// IsServiceUnavailableError checks if an error is or wraps ErrServiceUnavailable
func IsServiceUnavailableError(err error) bool {
	return err != nil && Is(err, ErrServiceUnavailable)
}

// IsGenerationFailedError checks if an error is or wraps ErrGenerationFailed
func IsGenerationFailedError(err error) bool {
	return err != nil && Is(err, ErrGenerationFailed)
}

// IsStoreError checks if an error is or was marked with ErrStore
func IsStoreError(err error) bool {
	return err != nil && Is(err, ErrStore)
}

// NewNotFoundError creates a not-found error with a formatted message
func NewNotFoundError(format string, args ...interface{}) error {
	return Wrap(ErrNotFound, Newf(format, args...).Error())
}

// NewCapacityError creates a capacity error with a formatted message
func NewCapacityError(format string, args ...interface{}) error {
	return Wrap(ErrCapacity, Newf(format, args...).Error())
}

// MarkStore wraps err with msg and marks it as a persistence failure.
// Returns nil when err is nil.
func MarkStore(err error, msg string) error {
	if err == nil {
		return nil
	}
	return Mark(Wrap(err, msg), ErrStore)
}
