package core

import (
	"time"

	"github.com/google/uuid"
)

// IDGenerator supplies identifiers for new entities.
type IDGenerator interface {
	NewID() uuid.UUID
}

// UUIDGenerator issues random 128-bit version 4 UUIDs.
type UUIDGenerator struct{}

func (UUIDGenerator) NewID() uuid.UUID {
	return uuid.New()
}

// Clock supplies creation timestamps.
type Clock interface {
	Now() time.Time
}

// SystemClock returns the current UTC time truncated to microseconds, the
// finest precision every backend stores.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// FixedClock always returns the same instant.
type FixedClock struct {
	At time.Time
}

func (c FixedClock) Now() time.Time {
	return c.At
}
