package core

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Field names used as keys of validation failures. They match the JSON
// field names of the resources.
const (
	FieldName       = "name"
	FieldUserID     = "userId"
	FieldCategoryID = "categoryId"
	FieldSum        = "sum"
)

// Reasons reported for each failed field.
const (
	ReasonEmptyName       = "name is empty"
	ReasonUserMissing     = "user doesn't exist"
	ReasonCategoryMissing = "category doesn't exist"
	ReasonSumNotPositive  = "sum is not positive"
)

type (
	User struct {
		ID   uuid.UUID `json:"id"`
		Name string    `json:"name"`
	}

	Category struct {
		ID   uuid.UUID `json:"id"`
		Name string    `json:"name"`
	}

	// Record is a single expense entry. UserID and CategoryID are references by
	// value; a Record never holds a live pointer into another store.
	Record struct {
		ID         uuid.UUID `json:"id"`
		UserID     uuid.UUID `json:"userId"`
		CategoryID uuid.UUID `json:"categoryId"`
		CreatedAt  time.Time `json:"createdAt"`
		Sum        Money     `json:"sum"`
	}

	// NewRecord is the caller-supplied part of a Record.
	NewRecord struct {
		UserID     uuid.UUID `json:"userId"`
		CategoryID uuid.UUID `json:"categoryId"`
		Sum        Money     `json:"sum"`
	}

	// RecordFilter restricts a record listing. A nil field places no
	// restriction; set fields are combined with AND.
	RecordFilter struct {
		UserID     *uuid.UUID
		CategoryID *uuid.UUID
	}
)

var ErrEmptyName = errors.New("empty name")

// NormalizeName trims surrounding whitespace and rejects blank names.
func NormalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrEmptyName
	}
	return name, nil
}

// Matches reports whether r satisfies every set field of f.
func (f RecordFilter) Matches(r Record) bool {
	if f.UserID != nil && *f.UserID != r.UserID {
		return false
	}
	if f.CategoryID != nil && *f.CategoryID != r.CategoryID {
		return false
	}
	return true
}

// IsEmpty is true when the filter places no restriction at all.
func (f RecordFilter) IsEmpty() bool {
	return f.UserID == nil && f.CategoryID == nil
}
