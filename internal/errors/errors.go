// Package errors provides the consolidated error definitions for pvduck.
//
// This file provides:
//   - Sentinel errors for all error conditions
//   - Error category checking functions
//   - Process exit code mapping for the CLI
//   - Error wrapping utilities
package errors

import (
	"errors"
	"fmt"
)

// ============================================================================
// Exit codes
// ============================================================================

const (
	// ExitOK is returned when a command succeeds.
	ExitOK = 0

	// ExitFailure is returned for any failure not covered by a more
	// specific code.
	ExitFailure = 1

	// ExitProjectNotFound is returned when the named project does not exist.
	ExitProjectNotFound = 2
)

// ============================================================================
// Sentinel errors for common conditions
// ============================================================================

var (
	// Not found errors
	ErrNotFound        = errors.New("not found")
	ErrProjectNotFound = errors.New("project not found")
	ErrStoreNotFound   = errors.New("database not found")
	ErrBatchNotFound   = errors.New("batch file not found")

	// Already exists errors
	ErrAlreadyExists        = errors.New("already exists")
	ErrProjectAlreadyExists = errors.New("project already exists")
	ErrStoreAlreadyExists   = errors.New("database already exists")
	ErrEntryAlreadyExists   = errors.New("ledger entry already exists")

	// Validation errors
	ErrInvalidName   = errors.New("invalid name")
	ErrInvalidRange  = errors.New("invalid date range")
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingField  = errors.New("missing required field")
	ErrInvalidOrder  = errors.New("invalid timestamp order")

	// Source errors
	ErrUnavailable       = errors.New("snapshot unavailable")
	ErrInvalidLine       = errors.New("invalid pageviews line")
	ErrInvalidDomainCode = errors.New("invalid domain code")
	ErrUnsupportedSource = errors.New("unsupported source locator")

	// Internal errors
	ErrDatabase = errors.New("database error")
)

// ============================================================================
// Helper functions for error checking
// ============================================================================

// Is is a convenience wrapper for errors.Is
var Is = errors.Is

// As is a convenience wrapper for errors.As
var As = errors.As

// New is a convenience wrapper for errors.New
var New = errors.New

// IsNotFound returns true if err is a not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrProjectNotFound) ||
		errors.Is(err, ErrStoreNotFound) ||
		errors.Is(err, ErrBatchNotFound)
}

// IsAlreadyExists returns true if err is an already-exists error.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists) ||
		errors.Is(err, ErrProjectAlreadyExists) ||
		errors.Is(err, ErrStoreAlreadyExists) ||
		errors.Is(err, ErrEntryAlreadyExists)
}

// IsValidation returns true if err is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidName) ||
		errors.Is(err, ErrInvalidRange) ||
		errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrMissingField) ||
		errors.Is(err, ErrInvalidOrder)
}

// IsSourceError returns true if err originates from reading a snapshot.
func IsSourceError(err error) bool {
	return errors.Is(err, ErrUnavailable) ||
		errors.Is(err, ErrInvalidLine) ||
		errors.Is(err, ErrInvalidDomainCode) ||
		errors.Is(err, ErrUnsupportedSource)
}

// ============================================================================
// Error to exit code mapping
// ============================================================================

// ExitCode maps an error to the process exit code used by the CLI.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrProjectNotFound):
		return ExitProjectNotFound
	default:
		return ExitFailure
	}
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
func NewNotFound(sentinel error, identifier string) error {
	return fmt.Errorf("'%s': %w", identifier, sentinel)
}

// NewAlreadyExists creates an already-exists error with context.
func NewAlreadyExists(sentinel error, identifier string) error {
	return fmt.Errorf("'%s': %w", identifier, sentinel)
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

// Unwrap returns the collected errors for errors.Is/As support.
func (v *ValidationErrors) Unwrap() []error {
	return v.Errors
}
