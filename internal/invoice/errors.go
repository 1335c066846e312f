package invoice

import (
	"errors"
	"fmt"
)

// Common invoice ingestion errors
var (
	// ErrMalformedRecord is returned when a raw record from a source lacks
	// required fields or carries values that cannot be used.
	ErrMalformedRecord = errors.New("malformed invoice record")

	// ErrPersistenceFailed is returned when the store rejected a write even
	// after the retry.
	ErrPersistenceFailed = errors.New("invoice persistence failed")
)

// RecordError wraps a failure to ingest one record with enough context to
// find it in its source.
type RecordError struct {
	// Op is the operation that failed (e.g., "Upsert", "ValidateRecord").
	Op string

	// Source and NativeID form the natural key of the record.
	Source   string
	NativeID string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *RecordError) Error() string {
	return fmt.Sprintf("invoice: %s %s/%s failed: %v", e.Op, e.Source, e.NativeID, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *RecordError) Unwrap() error {
	return e.Err
}

// NewRecordError creates a RecordError for the record identified by source and nativeID.
func NewRecordError(op, source, nativeID string, err error) *RecordError {
	return &RecordError{
		Op:       op,
		Source:   source,
		NativeID: nativeID,
		Err:      err,
	}
}

// ValidationError represents a field of a raw record that failed validation.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s (value: %v)", e.Field, e.Message, e.Value)
}

// Unwrap makes every validation error match ErrMalformedRecord.
func (e *ValidationError) Unwrap() error {
	return ErrMalformedRecord
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}
