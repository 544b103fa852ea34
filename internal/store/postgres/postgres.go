// Package postgres is the PostgreSQL backend, built on a pgx connection pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"tracker/internal/core"
)

const (
	codeForeignKeyViolation = "23503"
	codeUniqueViolation     = "23505"
)

type Store struct {
	pool *pgxpool.Pool
}

// Connect opens a pool, checks it and applies pending migrations.
func Connect(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := RunMigrations(databaseURL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) CreateUser(ctx context.Context, u core.User) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO users(id, name) VALUES($1::uuid, $2)`, u.ID.String(), u.Name)
	return mapWriteError("create user", err)
}

func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (core.User, error) {
	var raw string
	u := core.User{}
	err := s.pool.QueryRow(ctx, `SELECT id::text, name FROM users WHERE id = $1::uuid`, id.String()).Scan(&raw, &u.Name)
	if err != nil {
		return core.User{}, mapReadError("get user", err)
	}
	u.ID, err = parseID("get user", raw)
	return u, err
}

func (s *Store) DeleteUser(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM users WHERE id = $1::uuid`, id.String())
	return deleted("delete user", tag, err)
}

func (s *Store) ListUsers(ctx context.Context) ([]core.User, error) {
	rows, err := s.pool.Query(ctx, `SELECT id::text, name FROM users ORDER BY position`)
	if err != nil {
		return nil, core.NewStorageError("list users", err)
	}
	defer rows.Close()

	out := []core.User{}
	for rows.Next() {
		var raw, name string
		if err := rows.Scan(&raw, &name); err != nil {
			return nil, core.NewStorageError("list users", err)
		}
		id, err := parseID("list users", raw)
		if err != nil {
			return nil, err
		}
		out = append(out, core.User{ID: id, Name: name})
	}
	if err := rows.Err(); err != nil {
		return nil, core.NewStorageError("list users", err)
	}
	return out, nil
}

func (s *Store) CreateCategory(ctx context.Context, c core.Category) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO categories(id, name) VALUES($1::uuid, $2)`, c.ID.String(), c.Name)
	return mapWriteError("create category", err)
}

func (s *Store) GetCategory(ctx context.Context, id uuid.UUID) (core.Category, error) {
	var raw string
	c := core.Category{}
	err := s.pool.QueryRow(ctx, `SELECT id::text, name FROM categories WHERE id = $1::uuid`, id.String()).Scan(&raw, &c.Name)
	if err != nil {
		return core.Category{}, mapReadError("get category", err)
	}
	c.ID, err = parseID("get category", raw)
	return c, err
}

func (s *Store) DeleteCategory(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM categories WHERE id = $1::uuid`, id.String())
	return deleted("delete category", tag, err)
}

func (s *Store) ListCategories(ctx context.Context) ([]core.Category, error) {
	rows, err := s.pool.Query(ctx, `SELECT id::text, name FROM categories ORDER BY position`)
	if err != nil {
		return nil, core.NewStorageError("list categories", err)
	}
	defer rows.Close()

	out := []core.Category{}
	for rows.Next() {
		var raw, name string
		if err := rows.Scan(&raw, &name); err != nil {
			return nil, core.NewStorageError("list categories", err)
		}
		id, err := parseID("list categories", raw)
		if err != nil {
			return nil, err
		}
		out = append(out, core.Category{ID: id, Name: name})
	}
	if err := rows.Err(); err != nil {
		return nil, core.NewStorageError("list categories", err)
	}
	return out, nil
}

func (s *Store) InsertRecord(ctx context.Context, r core.Record) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO records(id, user_id, category_id, created_at, sum)
		VALUES($1::uuid, $2::uuid, $3::uuid, $4, $5::numeric)
	`, r.ID.String(), r.UserID.String(), r.CategoryID.String(), r.CreatedAt.UTC(), r.Sum.String())
	return mapWriteError("insert record", err)
}

const recordColumns = `id::text, user_id::text, category_id::text, created_at, sum::text`

func (s *Store) GetRecord(ctx context.Context, id uuid.UUID) (core.Record, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+recordColumns+` FROM records WHERE id = $1::uuid`, id.String())
	r, err := scanRecord(row)
	if err != nil {
		return core.Record{}, mapReadError("get record", err)
	}
	return r, nil
}

func (s *Store) DeleteRecord(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM records WHERE id = $1::uuid`, id.String())
	return deleted("delete record", tag, err)
}

func (s *Store) ListRecords(ctx context.Context, filter core.RecordFilter) ([]core.Record, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+recordColumns+`
		FROM records
		WHERE ($1::uuid IS NULL OR user_id = $1::uuid)
		  AND ($2::uuid IS NULL OR category_id = $2::uuid)
		ORDER BY position
	`, optionalID(filter.UserID), optionalID(filter.CategoryID))
	if err != nil {
		return nil, core.NewStorageError("list records", err)
	}
	defer rows.Close()

	out := []core.Record{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, core.NewStorageError("list records", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, core.NewStorageError("list records", err)
	}
	return out, nil
}

func scanRecord(row pgx.Row) (core.Record, error) {
	var (
		id, userID, categoryID, sum string
		createdAt                   time.Time
	)
	if err := row.Scan(&id, &userID, &categoryID, &createdAt, &sum); err != nil {
		return core.Record{}, err
	}
	r := core.Record{CreatedAt: createdAt.UTC()}
	var err error
	if r.ID, err = uuid.Parse(id); err != nil {
		return core.Record{}, err
	}
	if r.UserID, err = uuid.Parse(userID); err != nil {
		return core.Record{}, err
	}
	if r.CategoryID, err = uuid.Parse(categoryID); err != nil {
		return core.Record{}, err
	}
	if r.Sum, err = core.ParseMoney(sum); err != nil {
		return core.Record{}, fmt.Errorf("sum %q: %w", sum, err)
	}
	return r, nil
}

func optionalID(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}

func parseID(op, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, core.NewStorageError(op, err)
	}
	return id, nil
}

func mapReadError(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return core.ErrNotFound
	}
	return core.NewStorageError(op, err)
}

func mapWriteError(op string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeForeignKeyViolation:
			return core.ErrReferenceMissing
		case codeUniqueViolation:
			return core.NewStorageError(op, core.ErrDuplicateID)
		}
	}
	return core.NewStorageError(op, err)
}

func deleted(op string, tag pgconn.CommandTag, err error) error {
	if err != nil {
		return core.NewStorageError(op, err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}
