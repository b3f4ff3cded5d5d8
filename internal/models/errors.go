package models

import (
	"errors"
	"fmt"
)

// Custom errors
var (
	ErrStrategyNameRequired = errors.New("strategy name is required")
	ErrNotFound             = errors.New("record not found")
	ErrDuplicateKey         = errors.New("duplicate key violation")
	ErrInvalidAssetType     = errors.New("invalid asset type")
	ErrInvalidInterval      = errors.New("invalid interval code")
	ErrInvalidDirection     = errors.New("invalid strategy direction")
)

// ValidationError reports a missing or malformed required field on a batch
// record. Record is the zero-based index within the batch, -1 when the error
// was raised before the record position was known.
type ValidationError struct {
	Record int
	Field  string
	Reason string
}

// NewValidationError creates a ValidationError not yet tied to a batch position
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Record: -1, Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	if e.Record < 0 {
		return fmt.Sprintf("validation failed on field %q: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("validation failed at record %d, field %q: %s", e.Record, e.Field, e.Reason)
}

// AtRecord returns a copy of the error carrying the batch index
func (e *ValidationError) AtRecord(i int) *ValidationError {
	out := *e
	out.Record = i
	return &out
}

// ReferenceError reports a dangling foreign key in a batch record
type ReferenceError struct {
	Record int
	Field  string
	Value  any
}

// NewReferenceError creates a ReferenceError for the given record position
func NewReferenceError(record int, field string, value any) *ReferenceError {
	return &ReferenceError{Record: record, Field: field, Value: value}
}

func (e *ReferenceError) Error() string {
	return fmt.Sprintf("record %d references missing %s %v", e.Record, e.Field, e.Value)
}

// UniqueConflictError reports a duplicate key where the write policy is not
// insert-or-skip
type UniqueConflictError struct {
	Constraint string
	Detail     string
}

func (e *UniqueConflictError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("unique constraint %q violated", e.Constraint)
	}
	return fmt.Sprintf("unique constraint %q violated: %s", e.Constraint, e.Detail)
}

// TypeCoercionError reports a field value that cannot be parsed into its
// declared numeric or timestamp type
type TypeCoercionError struct {
	Record int
	Field  string
	Value  string
}

// NewTypeCoercionError creates a TypeCoercionError for the given record position
func NewTypeCoercionError(record int, field, value string) *TypeCoercionError {
	return &TypeCoercionError{Record: record, Field: field, Value: value}
}

func (e *TypeCoercionError) Error() string {
	if e.Record < 0 {
		return fmt.Sprintf("cannot coerce field %q value %q", e.Field, e.Value)
	}
	return fmt.Sprintf("cannot coerce field %q value %q at record %d", e.Field, e.Value, e.Record)
}

// TransactionAbortError wraps the error that forced a batch transaction to
// roll back
type TransactionAbortError struct {
	Op  string
	Err error
}

// NewTransactionAbortError wraps err as the cause of an aborted batch
func NewTransactionAbortError(op string, err error) *TransactionAbortError {
	return &TransactionAbortError{Op: op, Err: err}
}

func (e *TransactionAbortError) Error() string {
	return fmt.Sprintf("batch %s aborted and rolled back: %v", e.Op, e.Err)
}

func (e *TransactionAbortError) Unwrap() error {
	return e.Err
}
