// Package storage is the SQLite backend. Referential integrity and cascading
// deletes are enforced by the schema's foreign keys.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"tracker/internal/core"
)

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One writer at a time; busy_timeout covers the migration connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) CreateUser(ctx context.Context, u core.User) error {
	err := r.queries.CreateUser(ctx, User{ID: u.ID.String(), Name: u.Name})
	if err != nil {
		return mapWriteError("create user", err)
	}
	slog.DebugContext(ctx, "User saved to SQLite", "id", u.ID)
	return nil
}

func (r *SQLiteRepository) GetUser(ctx context.Context, id uuid.UUID) (core.User, error) {
	row, err := r.queries.GetUser(ctx, id.String())
	if err != nil {
		return core.User{}, mapReadError("get user", err)
	}
	return toUser(row)
}

func (r *SQLiteRepository) DeleteUser(ctx context.Context, id uuid.UUID) error {
	n, err := r.queries.DeleteUser(ctx, id.String())
	return deleted("delete user", n, err)
}

func (r *SQLiteRepository) ListUsers(ctx context.Context) ([]core.User, error) {
	rows, err := r.queries.ListUsers(ctx)
	if err != nil {
		return nil, core.NewStorageError("list users", err)
	}
	users := make([]core.User, 0, len(rows))
	for _, row := range rows {
		u, err := toUser(row)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, nil
}

func (r *SQLiteRepository) CreateCategory(ctx context.Context, c core.Category) error {
	err := r.queries.CreateCategory(ctx, Category{ID: c.ID.String(), Name: c.Name})
	if err != nil {
		return mapWriteError("create category", err)
	}
	slog.DebugContext(ctx, "Category saved to SQLite", "id", c.ID)
	return nil
}

func (r *SQLiteRepository) GetCategory(ctx context.Context, id uuid.UUID) (core.Category, error) {
	row, err := r.queries.GetCategory(ctx, id.String())
	if err != nil {
		return core.Category{}, mapReadError("get category", err)
	}
	return toCategory(row)
}

func (r *SQLiteRepository) DeleteCategory(ctx context.Context, id uuid.UUID) error {
	n, err := r.queries.DeleteCategory(ctx, id.String())
	return deleted("delete category", n, err)
}

func (r *SQLiteRepository) ListCategories(ctx context.Context) ([]core.Category, error) {
	rows, err := r.queries.ListCategories(ctx)
	if err != nil {
		return nil, core.NewStorageError("list categories", err)
	}
	categories := make([]core.Category, 0, len(rows))
	for _, row := range rows {
		c, err := toCategory(row)
		if err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, nil
}

func (r *SQLiteRepository) InsertRecord(ctx context.Context, rec core.Record) error {
	err := r.queries.CreateRecord(ctx, Record{
		ID:         rec.ID.String(),
		UserID:     rec.UserID.String(),
		CategoryID: rec.CategoryID.String(),
		CreatedAt:  rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		Sum:        rec.Sum.String(),
	})
	if err != nil {
		return mapWriteError("insert record", err)
	}

	slog.InfoContext(ctx, "Record saved to SQLite",
		"id", rec.ID,
		"user_id", rec.UserID,
		"category_id", rec.CategoryID,
		"sum", rec.Sum.String())
	return nil
}

func (r *SQLiteRepository) GetRecord(ctx context.Context, id uuid.UUID) (core.Record, error) {
	row, err := r.queries.GetRecord(ctx, id.String())
	if err != nil {
		return core.Record{}, mapReadError("get record", err)
	}
	return toRecord(row)
}

func (r *SQLiteRepository) DeleteRecord(ctx context.Context, id uuid.UUID) error {
	n, err := r.queries.DeleteRecord(ctx, id.String())
	return deleted("delete record", n, err)
}

func (r *SQLiteRepository) ListRecords(ctx context.Context, filter core.RecordFilter) ([]core.Record, error) {
	rows, err := r.queries.ListRecords(ctx, ListRecordsParams{
		UserID:     nullID(filter.UserID),
		CategoryID: nullID(filter.CategoryID),
	})
	if err != nil {
		return nil, core.NewStorageError("list records", err)
	}
	records := make([]core.Record, 0, len(rows))
	for _, row := range rows {
		rec, err := toRecord(row)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func nullID(id *uuid.UUID) sql.NullString {
	if id == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: id.String(), Valid: true}
}

func toUser(row User) (core.User, error) {
	id, err := uuid.Parse(row.ID)
	if err != nil {
		return core.User{}, core.NewStorageError("decode user", err)
	}
	return core.User{ID: id, Name: row.Name}, nil
}

func toCategory(row Category) (core.Category, error) {
	id, err := uuid.Parse(row.ID)
	if err != nil {
		return core.Category{}, core.NewStorageError("decode category", err)
	}
	return core.Category{ID: id, Name: row.Name}, nil
}

func toRecord(row Record) (core.Record, error) {
	id, err := uuid.Parse(row.ID)
	if err != nil {
		return core.Record{}, core.NewStorageError("decode record", err)
	}
	userID, err := uuid.Parse(row.UserID)
	if err != nil {
		return core.Record{}, core.NewStorageError("decode record", err)
	}
	categoryID, err := uuid.Parse(row.CategoryID)
	if err != nil {
		return core.Record{}, core.NewStorageError("decode record", err)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, row.CreatedAt)
	if err != nil {
		return core.Record{}, core.NewStorageError("decode record", err)
	}
	sum, err := core.ParseMoney(row.Sum)
	if err != nil {
		return core.Record{}, core.NewStorageError("decode record", fmt.Errorf("sum %q: %w", row.Sum, err))
	}
	return core.Record{
		ID:         id,
		UserID:     userID,
		CategoryID: categoryID,
		CreatedAt:  createdAt,
		Sum:        sum,
	}, nil
}

func mapReadError(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return core.ErrNotFound
	}
	return core.NewStorageError(op, err)
}

func mapWriteError(op string, err error) error {
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
			return core.ErrReferenceMissing
		case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
			return core.NewStorageError(op, core.ErrDuplicateID)
		}
	}
	// Fallback when extended result codes are unavailable.
	if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
		return core.ErrReferenceMissing
	}
	return core.NewStorageError(op, err)
}

func deleted(op string, n int64, err error) error {
	if err != nil {
		return core.NewStorageError(op, err)
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}
