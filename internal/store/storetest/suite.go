// Package storetest holds the contract tests every store.Backend must pass.
package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tracker/internal/core"
	"tracker/internal/store"
)

// Options describes optional behavior a backend may have.
type Options struct {
	// EnforcesReferences is set when InsertRecord itself rejects records whose
	// user or category is missing.
	EnforcesReferences bool
}

// Run exercises the backend returned by open. open is called once per subtest
// and must return an empty backend.
func Run(t *testing.T, open func(t *testing.T) store.Backend, opts Options) {
	t.Run("users", func(t *testing.T) { testUsers(t, open(t)) })
	t.Run("categories", func(t *testing.T) { testCategories(t, open(t)) })
	t.Run("records", func(t *testing.T) { testRecords(t, open(t)) })
	t.Run("record filters", func(t *testing.T) { testRecordFilters(t, open(t)) })
	t.Run("cascade user delete", func(t *testing.T) { testCascadeUser(t, open(t)) })
	t.Run("cascade category delete", func(t *testing.T) { testCascadeCategory(t, open(t)) })
	t.Run("duplicate ids", func(t *testing.T) { testDuplicateIDs(t, open(t)) })
	t.Run("concurrent creates", func(t *testing.T) { testConcurrentCreates(t, open(t)) })
	t.Run("ping", func(t *testing.T) { require.NoError(t, open(t).Ping(context.Background())) })
	if opts.EnforcesReferences {
		t.Run("missing references", func(t *testing.T) { testMissingReferences(t, open(t)) })
	}
}

var createdAt = time.Date(2025, 10, 27, 1, 7, 27, 123456000, time.UTC)

func seedUserAndCategory(t *testing.T, b store.Backend) (core.User, core.Category) {
	t.Helper()
	ctx := context.Background()
	u := core.User{ID: uuid.New(), Name: "Alice"}
	c := core.Category{ID: uuid.New(), Name: "Food"}
	require.NoError(t, b.CreateUser(ctx, u))
	require.NoError(t, b.CreateCategory(ctx, c))
	return u, c
}

func newRecord(userID, categoryID uuid.UUID, sum string) core.Record {
	return core.Record{
		ID:         uuid.New(),
		UserID:     userID,
		CategoryID: categoryID,
		CreatedAt:  createdAt,
		Sum:        core.MustParseMoney(sum),
	}
}

func recordIDs(records []core.Record) []uuid.UUID {
	ids := make([]uuid.UUID, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	return ids
}

func testUsers(t *testing.T, b store.Backend) {
	ctx := context.Background()

	users, err := b.ListUsers(ctx)
	require.NoError(t, err)
	assert.Empty(t, users)

	alice := core.User{ID: uuid.New(), Name: "Alice"}
	bob := core.User{ID: uuid.New(), Name: "Bob"}
	require.NoError(t, b.CreateUser(ctx, alice))
	require.NoError(t, b.CreateUser(ctx, bob))

	got, err := b.GetUser(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, alice, got)

	again, err := b.GetUser(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, got, again)

	users, err = b.ListUsers(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []core.User{alice, bob}, users)

	require.NoError(t, b.DeleteUser(ctx, alice.ID))
	_, err = b.GetUser(ctx, alice.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.ErrorIs(t, b.DeleteUser(ctx, alice.ID), core.ErrNotFound)

	users, err = b.ListUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []core.User{bob}, users)
}

func testCategories(t *testing.T, b store.Backend) {
	ctx := context.Background()

	food := core.Category{ID: uuid.New(), Name: "Food"}
	rent := core.Category{ID: uuid.New(), Name: "Rent"}
	require.NoError(t, b.CreateCategory(ctx, food))
	require.NoError(t, b.CreateCategory(ctx, rent))

	got, err := b.GetCategory(ctx, rent.ID)
	require.NoError(t, err)
	assert.Equal(t, rent, got)

	categories, err := b.ListCategories(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []core.Category{food, rent}, categories)

	require.NoError(t, b.DeleteCategory(ctx, food.ID))
	_, err = b.GetCategory(ctx, food.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.ErrorIs(t, b.DeleteCategory(ctx, uuid.New()), core.ErrNotFound)
}

func testRecords(t *testing.T, b store.Backend) {
	ctx := context.Background()
	u, c := seedUserAndCategory(t, b)

	rec := newRecord(u.ID, c.ID, "12.50")
	require.NoError(t, b.InsertRecord(ctx, rec))

	got, err := b.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, u.ID, got.UserID)
	assert.Equal(t, c.ID, got.CategoryID)
	assert.True(t, rec.CreatedAt.Equal(got.CreatedAt), "created_at %v != %v", rec.CreatedAt, got.CreatedAt)
	assert.True(t, got.Sum.Equal(core.MustParseMoney("12.5")), "sum %s", got.Sum)

	exact := newRecord(u.ID, c.ID, "0.1")
	require.NoError(t, b.InsertRecord(ctx, exact))
	got, err = b.GetRecord(ctx, exact.ID)
	require.NoError(t, err)
	assert.Equal(t, "0.1", got.Sum.String())

	require.NoError(t, b.DeleteRecord(ctx, rec.ID))
	_, err = b.GetRecord(ctx, rec.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.ErrorIs(t, b.DeleteRecord(ctx, rec.ID), core.ErrNotFound)
}

func testRecordFilters(t *testing.T, b store.Backend) {
	ctx := context.Background()
	a := core.User{ID: uuid.New(), Name: "A"}
	bu := core.User{ID: uuid.New(), Name: "B"}
	x := core.Category{ID: uuid.New(), Name: "X"}
	y := core.Category{ID: uuid.New(), Name: "Y"}
	require.NoError(t, b.CreateUser(ctx, a))
	require.NoError(t, b.CreateUser(ctx, bu))
	require.NoError(t, b.CreateCategory(ctx, x))
	require.NoError(t, b.CreateCategory(ctx, y))

	ax := newRecord(a.ID, x.ID, "1")
	ay := newRecord(a.ID, y.ID, "2")
	bx := newRecord(bu.ID, x.ID, "3")
	for _, r := range []core.Record{ax, ay, bx} {
		require.NoError(t, b.InsertRecord(ctx, r))
	}

	cases := []struct {
		name   string
		filter core.RecordFilter
		want   []uuid.UUID
	}{
		{"no filter", core.RecordFilter{}, []uuid.UUID{ax.ID, ay.ID, bx.ID}},
		{"user", core.RecordFilter{UserID: &a.ID}, []uuid.UUID{ax.ID, ay.ID}},
		{"category", core.RecordFilter{CategoryID: &x.ID}, []uuid.UUID{ax.ID, bx.ID}},
		{"user and category", core.RecordFilter{UserID: &a.ID, CategoryID: &x.ID}, []uuid.UUID{ax.ID}},
		{"no match", core.RecordFilter{UserID: &bu.ID, CategoryID: &y.ID}, []uuid.UUID{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := b.ListRecords(ctx, tc.filter)
			require.NoError(t, err)
			assert.ElementsMatch(t, tc.want, recordIDs(got))
		})
	}
}

func testCascadeUser(t *testing.T, b store.Backend) {
	ctx := context.Background()
	u, c := seedUserAndCategory(t, b)
	other := core.User{ID: uuid.New(), Name: "Bob"}
	require.NoError(t, b.CreateUser(ctx, other))

	gone := newRecord(u.ID, c.ID, "5")
	kept := newRecord(other.ID, c.ID, "6")
	require.NoError(t, b.InsertRecord(ctx, gone))
	require.NoError(t, b.InsertRecord(ctx, kept))

	require.NoError(t, b.DeleteUser(ctx, u.ID))

	_, err := b.GetRecord(ctx, gone.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
	records, err := b.ListRecords(ctx, core.RecordFilter{})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{kept.ID}, recordIDs(records))
}

func testCascadeCategory(t *testing.T, b store.Backend) {
	ctx := context.Background()
	u, c := seedUserAndCategory(t, b)
	other := core.Category{ID: uuid.New(), Name: "Rent"}
	require.NoError(t, b.CreateCategory(ctx, other))

	gone := newRecord(u.ID, c.ID, "5")
	kept := newRecord(u.ID, other.ID, "6")
	require.NoError(t, b.InsertRecord(ctx, gone))
	require.NoError(t, b.InsertRecord(ctx, kept))

	require.NoError(t, b.DeleteCategory(ctx, c.ID))

	records, err := b.ListRecords(ctx, core.RecordFilter{})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{kept.ID}, recordIDs(records))

	_, err = b.GetUser(ctx, u.ID)
	assert.NoError(t, err, "deleting a category must not touch users")
}

func testDuplicateIDs(t *testing.T, b store.Backend) {
	ctx := context.Background()
	u, c := seedUserAndCategory(t, b)

	err := b.CreateUser(ctx, core.User{ID: u.ID, Name: "Again"})
	require.Error(t, err)
	assert.True(t, core.IsStorage(err), "got %v", err)

	rec := newRecord(u.ID, c.ID, "1")
	require.NoError(t, b.InsertRecord(ctx, rec))
	err = b.InsertRecord(ctx, rec)
	require.Error(t, err)
	assert.True(t, core.IsStorage(err), "got %v", err)

	got, err := b.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice", got.Name)
}

func testConcurrentCreates(t *testing.T, b store.Backend) {
	ctx := context.Background()
	const n = 50

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- b.CreateUser(ctx, core.User{ID: uuid.New(), Name: "user"})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	users, err := b.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, n)
}

func testMissingReferences(t *testing.T, b store.Backend) {
	ctx := context.Background()
	u, c := seedUserAndCategory(t, b)

	err := b.InsertRecord(ctx, newRecord(uuid.New(), c.ID, "1"))
	assert.ErrorIs(t, err, core.ErrReferenceMissing)
	err = b.InsertRecord(ctx, newRecord(u.ID, uuid.New(), "1"))
	assert.ErrorIs(t, err, core.ErrReferenceMissing)

	records, err := b.ListRecords(ctx, core.RecordFilter{})
	require.NoError(t, err)
	assert.Empty(t, records)
}
