package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"annogate/pkg/platform/sentinel"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// Schema creates the account tables.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
	id            UUID PRIMARY KEY,
	username      TEXT NOT NULL UNIQUE,
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL DEFAULT '',
	active        BOOLEAN NOT NULL DEFAULT FALSE,
	created_at    TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS activations (
	code       TEXT PRIMARY KEY,
	user_id    UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	created_at TIMESTAMPTZ NOT NULL
);`

// DropSchema removes the account tables.
const DropSchema = `DROP TABLE IF EXISTS activations; DROP TABLE IF EXISTS users;`

// SQLStore persists accounts in PostgreSQL through database/sql and lib/pq.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore constructs the store.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// CreateAll creates the schema if missing.
func (s *SQLStore) CreateAll(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("create account schema: %w", err)
	}
	return nil
}

// DropAll removes the schema.
func (s *SQLStore) DropAll(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, DropSchema); err != nil {
		return fmt.Errorf("drop account schema: %w", err)
	}
	return nil
}

func (s *SQLStore) CreateUser(ctx context.Context, u *User, a *Activation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create user: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO users (id, username, email, password_hash, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		u.ID, u.Username, u.Email, u.PasswordHash, u.Active, u.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert user: %w", err)
	}
	if a != nil {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO activations (code, user_id, created_at) VALUES ($1, $2, $3)`,
			a.Code, a.UserID, a.CreatedAt); err != nil {
			return fmt.Errorf("insert activation: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create user: %w", err)
	}
	return nil
}

func (s *SQLStore) FindByUsername(ctx context.Context, username string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, username, email, password_hash, active, created_at
		FROM users WHERE lower(username) = lower($1)`, username)
	return scanUser(row)
}

func (s *SQLStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, username, email, password_hash, active, created_at
		FROM users WHERE lower(email) = lower($1)`, email)
	return scanUser(row)
}

func (s *SQLStore) CreateActivation(ctx context.Context, a *Activation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO activations (code, user_id, created_at) VALUES ($1, $2, $3)`,
		a.Code, a.UserID, a.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == foreignKeyViolation {
			return sentinel.ErrNotFound
		}
		return fmt.Errorf("insert activation: %w", err)
	}
	return nil
}

func (s *SQLStore) FindActivation(ctx context.Context, code string) (*Activation, error) {
	var a Activation
	err := s.db.QueryRowContext(ctx, `
		SELECT code, user_id, created_at FROM activations WHERE code = $1`, code).
		Scan(&a.Code, &a.UserID, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find activation: %w", err)
	}
	return &a, nil
}

func (s *SQLStore) Activate(ctx context.Context, userID uuid.UUID, passwordHash, code string) (*User, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin activate: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM activations WHERE code = $1 AND user_id = $2`, code, userID)
	if err != nil {
		return nil, fmt.Errorf("consume activation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, sentinel.ErrNotFound
	}

	row := tx.QueryRowContext(ctx, `
		UPDATE users SET password_hash = $2, active = TRUE WHERE id = $1
		RETURNING id, username, email, password_hash, active, created_at`, userID, passwordHash)
	u, err := scanUser(row)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit activate: %w", err)
	}
	return u, nil
}

func scanUser(row *sql.Row) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Active, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}
