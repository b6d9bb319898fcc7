/*
errors.go - Centralized error types

PURPOSE:
  All error types in one place for consistency and discoverability.
  Domain packages return these so the HTTP layer can map them to a status
  without knowing which store or rule produced them.

ERROR CATEGORIES:
  1. Validation errors - Malformed or out-of-range input (4xx, never retried)
  2. Not-found errors  - Referenced child, caretaker or record is missing (4xx)
  3. Storage errors    - The record store read/write itself failed (5xx)

USAGE:
  if errors.Is(err, generic.ErrValidation) { ... }

  var nf *generic.NotFoundError
  if errors.As(err, &nf) && nf.Kind == "child" { ... }

SEE ALSO:
  - attendance/service.go: Produces these errors
  - api/handlers.go: Maps them to HTTP status codes
*/
package generic

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned for malformed or out-of-range input.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned when a referenced entity doesn't exist.
	ErrNotFound = errors.New("not found")

	// ErrStorage is returned when the record store itself fails.
	ErrStorage = errors.New("storage failure")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// FieldError points a validation failure at a single input field.
type FieldError struct {
	Field string `json:"field"`
	Error string `json:"error"`
}

// ValidationError is a rejected input.
type ValidationError struct {
	Message string
	Fields  []FieldError
}

func NewValidationError(msg string, fields ...FieldError) *ValidationError {
	return &ValidationError{Message: msg, Fields: fields}
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	names := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		names[i] = f.Field
	}
	return fmt.Sprintf("%s: %s", e.Message, strings.Join(names, ", "))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NotFoundError names the kind and id of the missing entity.
type NotFoundError struct {
	Kind string // "child", "caretaker", "attendance record"
	ID   string
}

func (e *NotFoundError) Error() string {
	return e.Kind + " not found"
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// StorageError wraps a failed store operation.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() []error { return []error{ErrStorage, e.Err} }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsStorage returns true if the record store failed.
func IsStorage(err error) bool {
	return errors.Is(err, ErrStorage)
}
