package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewValidationErrorEmptyIsNil(t *testing.T) {
	assert.NoError(t, NewValidationError(nil))
	assert.NoError(t, NewValidationError(map[string]string{}))
}

func TestValidationErrorCopiesFields(t *testing.T) {
	fields := map[string]string{FieldSum: ReasonSumNotPositive}
	err := NewValidationError(fields)
	fields[FieldUserID] = ReasonUserMissing

	ve, ok := AsValidation(fmt.Errorf("create record: %w", err))
	require.True(t, ok)
	assert.Equal(t, map[string]string{FieldSum: ReasonSumNotPositive}, ve.Fields)
	assert.Equal(t, "validation failed: sum: sum is not positive", ve.Error())
}

func TestStorageError(t *testing.T) {
	assert.NoError(t, NewStorageError("get user", nil))

	cause := errors.New("disk on fire")
	err := NewStorageError("get user", cause)
	assert.True(t, IsStorage(err))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "storage get user: disk on fire", err.Error())

	// Wrapping twice keeps the innermost operation.
	again := NewStorageError("create record", fmt.Errorf("lookup: %w", err))
	var se *StorageError
	require.True(t, errors.As(again, &se))
	assert.Equal(t, "get user", se.Op)
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(fmt.Errorf("user %s: %w", "x", ErrNotFound)))
	assert.False(t, IsNotFound(errors.New("other")))
	assert.False(t, IsStorage(ErrNotFound))
}
