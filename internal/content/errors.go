package content

import (
	"errors"
	"fmt"
)

// ValidationError is returned before any write when an input violates a store invariant.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

func validationErrorf(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// StorageError wraps a failure of the underlying database. The transaction it
// happened in has been rolled back.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsValidationError reports whether err is or wraps a *ValidationError.
func IsValidationError(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}

// IsStorageError reports whether err is or wraps a *StorageError.
func IsStorageError(err error) bool {
	var serr *StorageError
	return errors.As(err, &serr)
}

// storageError wraps err as a StorageError unless it is a validation error.
func storageError(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsValidationError(err) || IsStorageError(err) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}
