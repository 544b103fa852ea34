package core

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

var (
	// ErrNotFound is returned when a requested identifier does not exist.
	ErrNotFound = errors.New("not found")

	// ErrReferenceMissing is returned by a backend when an insert names a
	// user or category that no longer exists.
	ErrReferenceMissing = errors.New("referenced entity does not exist")

	// ErrDuplicateID is returned when an insert reuses an existing identifier.
	ErrDuplicateID = errors.New("duplicate id")
)

// ValidationError carries every field that failed validation, keyed by field
// name. It is never empty.
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError returns nil when fields is empty.
func NewValidationError(fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: maps.Clone(fields)}
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, k := range slices.Sorted(maps.Keys(e.Fields)) {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// StorageError reports that the persistence mechanism could not complete an
// operation. Its text is for logs only.
type StorageError struct {
	Op  string
	Err error
}

// NewStorageError wraps err, leaving nil and existing storage errors as they are.
func NewStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// AsValidation extracts a ValidationError from err's chain.
func AsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

func IsStorage(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
