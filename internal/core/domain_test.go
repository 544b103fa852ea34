package core

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeName(t *testing.T) {
	name, err := NormalizeName("  Alice ")
	require.NoError(t, err)
	assert.Equal(t, "Alice", name)

	for _, blank := range []string{"", "   ", "\t\n"} {
		_, err := NormalizeName(blank)
		assert.ErrorIs(t, err, ErrEmptyName)
	}
}

func TestRecordFilterMatches(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	x, y := uuid.New(), uuid.New()
	rec := Record{ID: uuid.New(), UserID: a, CategoryID: x}

	cases := []struct {
		name   string
		filter RecordFilter
		want   bool
	}{
		{"empty", RecordFilter{}, true},
		{"user match", RecordFilter{UserID: &a}, true},
		{"user mismatch", RecordFilter{UserID: &b}, false},
		{"category match", RecordFilter{CategoryID: &x}, true},
		{"category mismatch", RecordFilter{CategoryID: &y}, false},
		{"both match", RecordFilter{UserID: &a, CategoryID: &x}, true},
		{"one of two mismatches", RecordFilter{UserID: &a, CategoryID: &y}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.filter.Matches(rec))
		})
	}
	assert.True(t, RecordFilter{}.IsEmpty())
	assert.False(t, RecordFilter{UserID: &a}.IsEmpty())
}

func TestUUIDGeneratorIsUnique(t *testing.T) {
	gen := UUIDGenerator{}
	seen := make(map[uuid.UUID]struct{})
	for i := 0; i < 1000; i++ {
		id := gen.NewID()
		_, dup := seen[id]
		require.False(t, dup)
		seen[id] = struct{}{}
	}
}

func TestSystemClockIsUTCMicroseconds(t *testing.T) {
	now := SystemClock{}.Now()
	assert.Equal(t, "UTC", now.Location().String())
	assert.Zero(t, now.Nanosecond()%1000)
}
