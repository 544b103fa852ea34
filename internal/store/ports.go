// Package store declares the persistence ports every backend implements.
//
// Contract shared by all backends:
//   - Get and Delete return core.ErrNotFound when the id is absent.
//   - Deleting a user or category also deletes every record referencing it.
//   - InsertRecord returns core.ErrReferenceMissing when the referenced user
//     or category is gone at insert time, if the backend can detect it.
//   - Returned entities are copies; callers may not mutate backend state
//     through them.
//   - Any other failure is a *core.StorageError.
package store

import (
	"context"

	"github.com/google/uuid"

	"tracker/internal/core"
)

type (
	UserRepository interface {
		CreateUser(ctx context.Context, u core.User) error
		GetUser(ctx context.Context, id uuid.UUID) (core.User, error)
		DeleteUser(ctx context.Context, id uuid.UUID) error
		ListUsers(ctx context.Context) ([]core.User, error)
	}

	CategoryRepository interface {
		CreateCategory(ctx context.Context, c core.Category) error
		GetCategory(ctx context.Context, id uuid.UUID) (core.Category, error)
		DeleteCategory(ctx context.Context, id uuid.UUID) error
		ListCategories(ctx context.Context) ([]core.Category, error)
	}

	RecordRepository interface {
		InsertRecord(ctx context.Context, r core.Record) error
		GetRecord(ctx context.Context, id uuid.UUID) (core.Record, error)
		DeleteRecord(ctx context.Context, id uuid.UUID) error
		ListRecords(ctx context.Context, filter core.RecordFilter) ([]core.Record, error)
	}

	// Pinger answers a liveness probe against the underlying storage.
	Pinger interface {
		Ping(ctx context.Context) error
	}

	// Backend is a complete storage implementation.
	Backend interface {
		UserRepository
		CategoryRepository
		RecordRepository
		Pinger
		Close() error
	}
)
