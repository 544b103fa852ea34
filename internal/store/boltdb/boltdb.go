// Package boltdb is an embedded single-file backend on BoltDB.
//
// Each entity type lives in its own bucket keyed by the 16 raw id bytes.
// Values are JSON and carry the bucket sequence number at insert time, which
// gives lists their insertion order. A write that touches several buckets
// (a record insert checking its parents, a cascading delete) runs in one
// Update transaction.
package boltdb

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	bolt "github.com/boltdb/bolt"
	"github.com/google/uuid"

	"tracker/internal/core"
)

var (
	usersBucket      = []byte("users")
	categoriesBucket = []byte("categories")
	recordsBucket    = []byte("records")
)

type namedRow struct {
	Seq  uint64 `json:"seq"`
	Name string `json:"name"`
}

type recordRow struct {
	Seq        uint64    `json:"seq"`
	UserID     uuid.UUID `json:"userId"`
	CategoryID uuid.UUID `json:"categoryId"`
	CreatedAt  time.Time `json:"createdAt"`
	Sum        string    `json:"sum"`
}

type Store struct {
	db *bolt.DB
}

// Open opens (or creates) the database file at path and ensures every bucket
// exists.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{usersBucket, categoriesBucket, recordsBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Ping runs an empty read transaction, which fails once the file is closed.
func (s *Store) Ping(_ context.Context) error {
	return s.db.View(func(*bolt.Tx) error { return nil })
}

func (s *Store) CreateUser(_ context.Context, u core.User) error {
	return s.putNamed("create user", usersBucket, u.ID, u.Name)
}

func (s *Store) GetUser(_ context.Context, id uuid.UUID) (core.User, error) {
	row, err := s.getNamed("get user", usersBucket, id)
	if err != nil {
		return core.User{}, err
	}
	return core.User{ID: id, Name: row.Name}, nil
}

func (s *Store) DeleteUser(_ context.Context, id uuid.UUID) error {
	return s.deleteParent("delete user", usersBucket, id, func(r recordRow) bool { return r.UserID == id })
}

func (s *Store) ListUsers(_ context.Context) ([]core.User, error) {
	ids, rows, err := s.listNamed("list users", usersBucket)
	if err != nil {
		return nil, err
	}
	out := make([]core.User, len(ids))
	for i := range ids {
		out[i] = core.User{ID: ids[i], Name: rows[i].Name}
	}
	return out, nil
}

func (s *Store) CreateCategory(_ context.Context, c core.Category) error {
	return s.putNamed("create category", categoriesBucket, c.ID, c.Name)
}

func (s *Store) GetCategory(_ context.Context, id uuid.UUID) (core.Category, error) {
	row, err := s.getNamed("get category", categoriesBucket, id)
	if err != nil {
		return core.Category{}, err
	}
	return core.Category{ID: id, Name: row.Name}, nil
}

func (s *Store) DeleteCategory(_ context.Context, id uuid.UUID) error {
	return s.deleteParent("delete category", categoriesBucket, id, func(r recordRow) bool { return r.CategoryID == id })
}

func (s *Store) ListCategories(_ context.Context) ([]core.Category, error) {
	ids, rows, err := s.listNamed("list categories", categoriesBucket)
	if err != nil {
		return nil, err
	}
	out := make([]core.Category, len(ids))
	for i := range ids {
		out[i] = core.Category{ID: ids[i], Name: rows[i].Name}
	}
	return out, nil
}

// InsertRecord checks both parents and writes the record in the same
// transaction, so a record never outlives a concurrently deleted parent.
func (s *Store) InsertRecord(_ context.Context, r core.Record) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(usersBucket).Get(r.UserID[:]) == nil ||
			tx.Bucket(categoriesBucket).Get(r.CategoryID[:]) == nil {
			return core.ErrReferenceMissing
		}
		b := tx.Bucket(recordsBucket)
		if b.Get(r.ID[:]) != nil {
			return core.ErrDuplicateID
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		data, err := json.Marshal(recordRow{
			Seq:        seq,
			UserID:     r.UserID,
			CategoryID: r.CategoryID,
			CreatedAt:  r.CreatedAt.UTC(),
			Sum:        r.Sum.String(),
		})
		if err != nil {
			return err
		}
		return b.Put(r.ID[:], data)
	})
	return mapError("insert record", err)
}

func (s *Store) GetRecord(_ context.Context, id uuid.UUID) (core.Record, error) {
	var row recordRow
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(recordsBucket).Get(id[:])
		if v == nil {
			return core.ErrNotFound
		}
		return json.Unmarshal(v, &row)
	})
	if err != nil {
		return core.Record{}, mapError("get record", err)
	}
	r, err := toRecord(id, row)
	if err != nil {
		return core.Record{}, core.NewStorageError("get record", err)
	}
	return r, nil
}

func (s *Store) DeleteRecord(_ context.Context, id uuid.UUID) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(recordsBucket)
		if b.Get(id[:]) == nil {
			return core.ErrNotFound
		}
		return b.Delete(id[:])
	})
	return mapError("delete record", err)
}

func (s *Store) ListRecords(_ context.Context, filter core.RecordFilter) ([]core.Record, error) {
	type entry struct {
		seq uint64
		rec core.Record
	}
	var entries []entry
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(recordsBucket).ForEach(func(k, v []byte) error {
			var row recordRow
			if err := json.Unmarshal(v, &row); err != nil {
				return err
			}
			id, err := uuid.FromBytes(k)
			if err != nil {
				return err
			}
			r, err := toRecord(id, row)
			if err != nil {
				return err
			}
			if filter.Matches(r) {
				entries = append(entries, entry{seq: row.Seq, rec: r})
			}
			return nil
		})
	})
	if err != nil {
		return nil, mapError("list records", err)
	}
	slices.SortFunc(entries, func(a, b entry) int { return cmp.Compare(a.seq, b.seq) })
	out := make([]core.Record, len(entries))
	for i, e := range entries {
		out[i] = e.rec
	}
	return out, nil
}

func (s *Store) putNamed(op string, bucket []byte, id uuid.UUID, name string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b.Get(id[:]) != nil {
			return core.ErrDuplicateID
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		data, err := json.Marshal(namedRow{Seq: seq, Name: name})
		if err != nil {
			return err
		}
		return b.Put(id[:], data)
	})
	return mapError(op, err)
}

func (s *Store) getNamed(op string, bucket []byte, id uuid.UUID) (namedRow, error) {
	var row namedRow
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucket).Get(id[:])
		if v == nil {
			return core.ErrNotFound
		}
		return json.Unmarshal(v, &row)
	})
	return row, mapError(op, err)
}

func (s *Store) listNamed(op string, bucket []byte) ([]uuid.UUID, []namedRow, error) {
	type entry struct {
		id  uuid.UUID
		row namedRow
	}
	var entries []entry
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).ForEach(func(k, v []byte) error {
			id, err := uuid.FromBytes(k)
			if err != nil {
				return err
			}
			var row namedRow
			if err := json.Unmarshal(v, &row); err != nil {
				return err
			}
			entries = append(entries, entry{id: id, row: row})
			return nil
		})
	})
	if err != nil {
		return nil, nil, mapError(op, err)
	}
	slices.SortFunc(entries, func(a, b entry) int { return cmp.Compare(a.row.Seq, b.row.Seq) })
	ids := make([]uuid.UUID, len(entries))
	rows := make([]namedRow, len(entries))
	for i, e := range entries {
		ids[i], rows[i] = e.id, e.row
	}
	return ids, rows, nil
}

// deleteParent removes a user or category and every record that matches
// owned. Keys are collected before deletion since bolt forbids mutating a
// bucket while iterating it.
func (s *Store) deleteParent(op string, bucket []byte, id uuid.UUID, owned func(recordRow) bool) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b.Get(id[:]) == nil {
			return core.ErrNotFound
		}
		if err := b.Delete(id[:]); err != nil {
			return err
		}

		records := tx.Bucket(recordsBucket)
		var doomed [][]byte
		err := records.ForEach(func(k, v []byte) error {
			var row recordRow
			if err := json.Unmarshal(v, &row); err != nil {
				return err
			}
			if owned(row) {
				doomed = append(doomed, slices.Clone(k))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range doomed {
			if err := records.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	return mapError(op, err)
}

func toRecord(id uuid.UUID, row recordRow) (core.Record, error) {
	sum, err := core.ParseMoney(row.Sum)
	if err != nil {
		return core.Record{}, fmt.Errorf("sum %q: %w", row.Sum, err)
	}
	return core.Record{
		ID:         id,
		UserID:     row.UserID,
		CategoryID: row.CategoryID,
		CreatedAt:  row.CreatedAt.UTC(),
		Sum:        sum,
	}, nil
}

func mapError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, core.ErrNotFound), errors.Is(err, core.ErrReferenceMissing):
		return err
	default:
		return core.NewStorageError(op, err)
	}
}
