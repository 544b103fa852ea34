package memory

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"

	"tracker/internal/core"
)

// table is one entity type's collection. Reads take the shared lock, writes
// the exclusive one. No method ever holds two tables' locks.
type table[T any] struct {
	mu    sync.RWMutex
	rows  map[uuid.UUID]T
	order []uuid.UUID
}

func newTable[T any]() *table[T] {
	return &table[T]{rows: make(map[uuid.UUID]T)}
}

func (t *table[T]) insert(id uuid.UUID, v T) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.rows[id]; exists {
		return false
	}
	t.rows[id] = v
	t.order = append(t.order, id)
	return true
}

func (t *table[T]) get(id uuid.UUID) (T, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.rows[id]
	return v, ok
}

func (t *table[T]) remove(id uuid.UUID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.rows[id]; !exists {
		return false
	}
	delete(t.rows, id)
	if i := slices.Index(t.order, id); i >= 0 {
		t.order = slices.Delete(t.order, i, i+1)
	}
	return true
}

// removeWhere deletes every row matching pred and returns how many went.
func (t *table[T]) removeWhere(pred func(T) bool) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	kept := t.order[:0]
	removed := 0
	for _, id := range t.order {
		if pred(t.rows[id]) {
			delete(t.rows, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	t.order = kept
	return removed
}

// snapshot returns copies of the rows matching pred in insertion order.
func (t *table[T]) snapshot(pred func(T) bool) []T {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]T, 0, len(t.order))
	for _, id := range t.order {
		v := t.rows[id]
		if pred == nil || pred(v) {
			out = append(out, v)
		}
	}
	return out
}

// Store keeps every entity in process memory. It is safe for concurrent use.
type Store struct {
	users      *table[core.User]
	categories *table[core.Category]
	records    *table[core.Record]
}

func New() *Store {
	return &Store{
		users:      newTable[core.User](),
		categories: newTable[core.Category](),
		records:    newTable[core.Record](),
	}
}

// NewFromFiles returns a store seeded with the names listed in
// base/seed_users.txt and base/seed_categories.txt (one per line, '#' starts
// a comment). Missing files seed nothing.
func NewFromFiles(base string) *Store {
	s := New()
	for _, name := range readLines(filepath.Join(base, "seed_users.txt")) {
		u := core.User{ID: uuid.New(), Name: name}
		s.users.insert(u.ID, u)
	}
	for _, name := range readLines(filepath.Join(base, "seed_categories.txt")) {
		c := core.Category{ID: uuid.New(), Name: name}
		s.categories.insert(c.ID, c)
	}
	return s
}

func (s *Store) CreateUser(_ context.Context, u core.User) error {
	if !s.users.insert(u.ID, u) {
		return core.NewStorageError("create user", core.ErrDuplicateID)
	}
	return nil
}

func (s *Store) GetUser(_ context.Context, id uuid.UUID) (core.User, error) {
	u, ok := s.users.get(id)
	if !ok {
		return core.User{}, core.ErrNotFound
	}
	return u, nil
}

// DeleteUser removes the user, then its records. The two steps lock
// different tables one after the other.
func (s *Store) DeleteUser(_ context.Context, id uuid.UUID) error {
	if !s.users.remove(id) {
		return core.ErrNotFound
	}
	s.records.removeWhere(func(r core.Record) bool { return r.UserID == id })
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]core.User, error) {
	return s.users.snapshot(nil), nil
}

func (s *Store) CreateCategory(_ context.Context, c core.Category) error {
	if !s.categories.insert(c.ID, c) {
		return core.NewStorageError("create category", core.ErrDuplicateID)
	}
	return nil
}

func (s *Store) GetCategory(_ context.Context, id uuid.UUID) (core.Category, error) {
	c, ok := s.categories.get(id)
	if !ok {
		return core.Category{}, core.ErrNotFound
	}
	return c, nil
}

func (s *Store) DeleteCategory(_ context.Context, id uuid.UUID) error {
	if !s.categories.remove(id) {
		return core.ErrNotFound
	}
	s.records.removeWhere(func(r core.Record) bool { return r.CategoryID == id })
	return nil
}

func (s *Store) ListCategories(_ context.Context) ([]core.Category, error) {
	return s.categories.snapshot(nil), nil
}

// InsertRecord stores r and then checks both parents, one table at a time.
// A parent delete that removed its row before the check is caught here; one
// that removes it after the check cascades over the new record.
func (s *Store) InsertRecord(_ context.Context, r core.Record) error {
	if !s.records.insert(r.ID, r) {
		return core.NewStorageError("insert record", core.ErrDuplicateID)
	}
	_, userOK := s.users.get(r.UserID)
	_, categoryOK := s.categories.get(r.CategoryID)
	if !userOK || !categoryOK {
		s.records.remove(r.ID)
		return core.ErrReferenceMissing
	}
	return nil
}

func (s *Store) GetRecord(_ context.Context, id uuid.UUID) (core.Record, error) {
	r, ok := s.records.get(id)
	if !ok {
		return core.Record{}, core.ErrNotFound
	}
	return r, nil
}

func (s *Store) DeleteRecord(_ context.Context, id uuid.UUID) error {
	if !s.records.remove(id) {
		return core.ErrNotFound
	}
	return nil
}

func (s *Store) ListRecords(_ context.Context, filter core.RecordFilter) ([]core.Record, error) {
	if filter.IsEmpty() {
		return s.records.snapshot(nil), nil
	}
	return s.records.snapshot(filter.Matches), nil
}

func (s *Store) Ping(_ context.Context) error {
	return nil
}

func (s *Store) Close() error {
	return nil
}

func readLines(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return dedupe(out)
}

func dedupe(in []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(in))
	for _, v := range in {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
