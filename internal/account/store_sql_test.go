package account

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"annogate/pkg/platform/sentinel"
)

func newMockStore(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewSQLStore(db), mock
}

func TestSQLStoreCreateUser(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	u := &User{ID: uuid.New(), Username: "alice", Email: "alice@example.com", PasswordHash: "h", CreatedAt: now}
	a := &Activation{Code: "code-1", UserID: u.ID, CreatedAt: now}

	t.Run("inserts user and activation in one transaction", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO users").
			WithArgs(sqlmock.AnyArg(), "alice", "alice@example.com", "h", false, now).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO activations").
			WithArgs("code-1", sqlmock.AnyArg(), now).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		require.NoError(t, store.CreateUser(context.Background(), u, a))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unique violation is a conflict", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO users").WillReturnError(&pq.Error{Code: "23505"})
		mock.ExpectRollback()

		err := store.CreateUser(context.Background(), u, a)
		assert.ErrorIs(t, err, sentinel.ErrConflict)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSQLStoreFindByUsername(t *testing.T) {
	id := uuid.New()
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	cols := []string{"id", "username", "email", "password_hash", "active", "created_at"}

	t.Run("found", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery("SELECT id, username").
			WithArgs("Alice").
			WillReturnRows(sqlmock.NewRows(cols).AddRow(id.String(), "alice", "alice@example.com", "h", true, now))

		u, err := store.FindByUsername(context.Background(), "Alice")
		require.NoError(t, err)
		assert.Equal(t, id, u.ID)
		assert.True(t, u.Active)
	})

	t.Run("missing", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery("SELECT id, username").WillReturnError(sql.ErrNoRows)

		_, err := store.FindByUsername(context.Background(), "bob")
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})
}

func TestSQLStoreActivate(t *testing.T) {
	id := uuid.New()
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	cols := []string{"id", "username", "email", "password_hash", "active", "created_at"}

	t.Run("consumes code and activates", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectExec("DELETE FROM activations").
			WithArgs("code-1", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery("UPDATE users").
			WithArgs(sqlmock.AnyArg(), "newhash").
			WillReturnRows(sqlmock.NewRows(cols).AddRow(id.String(), "alice", "alice@example.com", "newhash", true, now))
		mock.ExpectCommit()

		u, err := store.Activate(context.Background(), id, "newhash", "code-1")
		require.NoError(t, err)
		assert.True(t, u.Active)
		assert.Equal(t, "newhash", u.PasswordHash)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown code", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectExec("DELETE FROM activations").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		_, err := store.Activate(context.Background(), id, "newhash", "nope")
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSQLStoreFindByEmail(t *testing.T) {
	id := uuid.New()
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	cols := []string{"id", "username", "email", "password_hash", "active", "created_at"}

	store, mock := newMockStore(t)
	mock.ExpectQuery("WHERE lower\\(email\\) = lower\\(\\$1\\)").
		WithArgs("Alice@Example.com").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(id.String(), "alice", "alice@example.com", "h", false, now))

	u, err := store.FindByEmail(context.Background(), "Alice@Example.com")
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreCreateActivation(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	a := &Activation{Code: "reset-1", UserID: uuid.New(), CreatedAt: now}

	t.Run("inserts code", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec("INSERT INTO activations").
			WithArgs("reset-1", sqlmock.AnyArg(), now).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, store.CreateActivation(context.Background(), a))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown user", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec("INSERT INTO activations").WillReturnError(&pq.Error{Code: "23503"})

		err := store.CreateActivation(context.Background(), a)
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})
}
