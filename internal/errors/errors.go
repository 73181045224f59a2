// Package errors consolidates error definitions for the entire project.
//
// It provides:
// - Sentinel errors for all error conditions
// - Error category checking functions
// - Error wrapping utilities
// - A ValidationErrors collector for config loading
package errors

import (
	"errors"
	"fmt"
)

// ============================================================================
// Sentinel errors for common conditions
// ============================================================================

var (
	// Transient network errors: retried on the next tick, never within a cycle.
	ErrTransientNetwork = errors.New("transient network error")
	ErrTimeout          = errors.New("timeout")
	ErrConnectionFailed = errors.New("connection failed")

	// Payload shape errors: the offending field or record degrades to a
	// sentinel value, the cycle continues.
	ErrPayloadShape = errors.New("unexpected payload shape")
	ErrMissingField = errors.New("missing required field")
	ErrWrongType    = errors.New("wrong value type")

	// Counter reset: not a failure, the sample becomes a fresh baseline.
	ErrCounterReset = errors.New("counter reset detected")

	// Cursor regression: the event log reported a lower max sequence than the
	// stored cursor; the cursor is never moved backwards.
	ErrCursorRegression = errors.New("event cursor regression")

	// Backend write failure: the batch for that backend is dropped and logged
	// as data loss for the cycle.
	ErrBackendWrite = errors.New("backend write failed")

	// Not found errors
	ErrNotFound       = errors.New("not found")
	ErrSystemNotFound = errors.New("system not found")
	ErrObjectNotFound = errors.New("object not found")

	// Already exists errors (planner rules, store tiers)
	ErrAlreadyExists = errors.New("already exists")

	// Validation errors
	ErrInvalidName     = errors.New("invalid name")
	ErrInvalidInterval = errors.New("invalid interval")
	ErrInvalidConfig   = errors.New("invalid configuration")
	ErrInvalidEndpoint = errors.New("invalid endpoint")

	// Auth errors against the management API
	ErrUnauthorized = errors.New("not authorized")

	// State errors
	ErrClosed       = errors.New("closed")
	ErrShuttingDown = errors.New("shutting down")
	ErrBufferFull   = errors.New("buffer full")

	// Internal errors
	ErrInternal = errors.New("internal error")
	ErrDatabase = errors.New("database error")
)

// ============================================================================
// Helper functions for error checking
// ============================================================================

// Is is a convenience wrapper for errors.Is
var Is = errors.Is

// As is a convenience wrapper for errors.As
var As = errors.As

// IsTransient returns true if err is a transient network error that the next
// tick may not see again.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransientNetwork) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrConnectionFailed)
}

// IsPayloadShape returns true if err describes a malformed upstream payload.
func IsPayloadShape(err error) bool {
	return errors.Is(err, ErrPayloadShape) ||
		errors.Is(err, ErrMissingField) ||
		errors.Is(err, ErrWrongType)
}

// IsNotFound returns true if err is a not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrSystemNotFound) ||
		errors.Is(err, ErrObjectNotFound)
}

// IsValidation returns true if err is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidName) ||
		errors.Is(err, ErrInvalidInterval) ||
		errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrInvalidEndpoint) ||
		errors.Is(err, ErrMissingField)
}

// IsRetriable returns true if the error is potentially retriable.
// Backend write failures are deliberately excluded: those batches are dropped,
// not queued.
func IsRetriable(err error) bool {
	return IsTransient(err) || errors.Is(err, ErrBufferFull)
}

// ============================================================================
// Error wrapping utilities
// ============================================================================

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// ============================================================================
// Error constructors with context
// ============================================================================

// NewNotFound creates a not-found error with context.
func NewNotFound(entityType, identifier string) error {
	return fmt.Errorf("%s '%s': %w", entityType, identifier, ErrNotFound)
}

// NewAlreadyExists creates an already-exists error with context.
func NewAlreadyExists(entityType, identifier string) error {
	return fmt.Errorf("%s '%s': %w", entityType, identifier, ErrAlreadyExists)
}

// NewValidation creates a validation error with context.
func NewValidation(field, reason string) error {
	return fmt.Errorf("invalid %s: %s: %w", field, reason, ErrInvalidConfig)
}

// NewMissingField creates a missing field error.
func NewMissingField(field string) error {
	return fmt.Errorf("%s: %w", field, ErrMissingField)
}

// NewInvalidValue creates an invalid value error.
func NewInvalidValue(field string, value interface{}, reason string) error {
	return fmt.Errorf("invalid %s '%v': %s: %w", field, value, reason, ErrInvalidConfig)
}

// NewWrongType creates a payload type mismatch error.
func NewWrongType(field string, value interface{}) error {
	return fmt.Errorf("field %s has value '%v': %w", field, value, ErrWrongType)
}

// ============================================================================
// Validation Errors Collection
// ============================================================================

// ValidationErrors collects multiple validation errors.
type ValidationErrors struct {
	Errors []error
}

// NewValidationErrors creates a new ValidationErrors collector.
func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{}
}

// Add adds an error to the collection.
func (v *ValidationErrors) Add(err error) {
	if err != nil {
		v.Errors = append(v.Errors, err)
	}
}

// AddField adds a field validation error.
func (v *ValidationErrors) AddField(field, reason string) {
	v.Errors = append(v.Errors, NewValidation(field, reason))
}

// AddMissing adds a missing field error.
func (v *ValidationErrors) AddMissing(field string) {
	v.Errors = append(v.Errors, NewMissingField(field))
}

// HasErrors returns true if there are any errors.
func (v *ValidationErrors) HasErrors() bool {
	return len(v.Errors) > 0
}

// Error implements the error interface.
func (v *ValidationErrors) Error() string {
	if len(v.Errors) == 0 {
		return ""
	}
	if len(v.Errors) == 1 {
		return v.Errors[0].Error()
	}

	msg := fmt.Sprintf("validation failed with %d errors:", len(v.Errors))
	for _, err := range v.Errors {
		msg += "\n  - " + err.Error()
	}
	return msg
}

// Err returns nil if no errors, otherwise returns the ValidationErrors.
func (v *ValidationErrors) Err() error {
	if len(v.Errors) == 0 {
		return nil
	}
	return v
}

// Unwrap returns the first error for errors.Is/As support.
func (v *ValidationErrors) Unwrap() error {
	if len(v.Errors) == 0 {
		return nil
	}
	return v.Errors[0]
}
