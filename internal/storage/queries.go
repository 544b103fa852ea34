package storage

import (
	"context"
	"database/sql"
)

type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

type User struct {
	ID   string
	Name string
}

type Category struct {
	ID   string
	Name string
}

type Record struct {
	ID         string
	UserID     string
	CategoryID string
	CreatedAt  string
	Sum        string
}

const createUser = `INSERT INTO users (id, name) VALUES (?, ?)`

func (q *Queries) CreateUser(ctx context.Context, arg User) error {
	_, err := q.db.ExecContext(ctx, createUser, arg.ID, arg.Name)
	return err
}

const getUser = `SELECT id, name FROM users WHERE id = ?`

func (q *Queries) GetUser(ctx context.Context, id string) (User, error) {
	row := q.db.QueryRowContext(ctx, getUser, id)
	var i User
	err := row.Scan(&i.ID, &i.Name)
	return i, err
}

const deleteUser = `DELETE FROM users WHERE id = ?`

func (q *Queries) DeleteUser(ctx context.Context, id string) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteUser, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const listUsers = `SELECT id, name FROM users ORDER BY rowid`

func (q *Queries) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := q.db.QueryContext(ctx, listUsers)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []User{}
	for rows.Next() {
		var i User
		if err := rows.Scan(&i.ID, &i.Name); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const createCategory = `INSERT INTO categories (id, name) VALUES (?, ?)`

func (q *Queries) CreateCategory(ctx context.Context, arg Category) error {
	_, err := q.db.ExecContext(ctx, createCategory, arg.ID, arg.Name)
	return err
}

const getCategory = `SELECT id, name FROM categories WHERE id = ?`

func (q *Queries) GetCategory(ctx context.Context, id string) (Category, error) {
	row := q.db.QueryRowContext(ctx, getCategory, id)
	var i Category
	err := row.Scan(&i.ID, &i.Name)
	return i, err
}

const deleteCategory = `DELETE FROM categories WHERE id = ?`

func (q *Queries) DeleteCategory(ctx context.Context, id string) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteCategory, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const listCategories = `SELECT id, name FROM categories ORDER BY rowid`

func (q *Queries) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := q.db.QueryContext(ctx, listCategories)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Category{}
	for rows.Next() {
		var i Category
		if err := rows.Scan(&i.ID, &i.Name); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const createRecord = `INSERT INTO records (id, user_id, category_id, created_at, sum) VALUES (?, ?, ?, ?, ?)`

func (q *Queries) CreateRecord(ctx context.Context, arg Record) error {
	_, err := q.db.ExecContext(ctx, createRecord, arg.ID, arg.UserID, arg.CategoryID, arg.CreatedAt, arg.Sum)
	return err
}

const getRecord = `SELECT id, user_id, category_id, created_at, sum FROM records WHERE id = ?`

func (q *Queries) GetRecord(ctx context.Context, id string) (Record, error) {
	row := q.db.QueryRowContext(ctx, getRecord, id)
	var i Record
	err := row.Scan(&i.ID, &i.UserID, &i.CategoryID, &i.CreatedAt, &i.Sum)
	return i, err
}

const deleteRecord = `DELETE FROM records WHERE id = ?`

func (q *Queries) DeleteRecord(ctx context.Context, id string) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteRecord, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const listRecords = `SELECT id, user_id, category_id, created_at, sum FROM records
WHERE (?1 IS NULL OR user_id = ?1)
  AND (?2 IS NULL OR category_id = ?2)
ORDER BY rowid`

type ListRecordsParams struct {
	UserID     sql.NullString
	CategoryID sql.NullString
}

func (q *Queries) ListRecords(ctx context.Context, arg ListRecordsParams) ([]Record, error) {
	rows, err := q.db.QueryContext(ctx, listRecords, arg.UserID, arg.CategoryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Record{}
	for rows.Next() {
		var i Record
		if err := rows.Scan(&i.ID, &i.UserID, &i.CategoryID, &i.CreatedAt, &i.Sum); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
