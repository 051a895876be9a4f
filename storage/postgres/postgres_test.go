package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	errs "github.com/jrsteele09/go-login-broker/internal/errors"
	"github.com/jrsteele09/go-login-broker/token/refresh"
	"github.com/jrsteele09/go-login-broker/users"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return db, mock
}

func userRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "email", "display_name", "roles", "blocked", "source", "created_at", "last_login"})
}

func TestMigrate(t *testing.T) {
	db, mock := setupMockDB(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS users").WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, Migrate(context.Background(), db))
}

func TestMigrate_Error(t *testing.T) {
	db, mock := setupMockDB(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS users").WillReturnError(errors.New("permission denied"))
	require.ErrorContains(t, Migrate(context.Background(), db), "permission denied")
}

func TestUserRepo_FindOrCreate(t *testing.T) {
	t.Run("new user gets guest name", func(t *testing.T) {
		db, mock := setupMockDB(t)
		repo := NewUserRepo(db)
		repo.nowFunc = func() time.Time { return baseTime }

		mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM users")).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))
		mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO users")).
			WithArgs(sqlmock.AnyArg(), "a@example.com", "Guest5", sqlmock.AnyArg(), "github", baseTime).
			WillReturnRows(userRows().AddRow("id-1", "a@example.com", "Guest5", "{student}", false, "github", baseTime, baseTime))

		user, err := repo.FindOrCreate(context.Background(), "A@example.com", "", users.SourceGitHub)
		require.NoError(t, err)
		require.Equal(t, "id-1", user.ID)
		require.Equal(t, "Guest5", user.DisplayName)
		require.Equal(t, []string{"student"}, user.Roles)
		require.Equal(t, users.SourceGitHub, user.Source)
	})

	t.Run("display name skips the count", func(t *testing.T) {
		db, mock := setupMockDB(t)
		repo := NewUserRepo(db)

		mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO users")).
			WithArgs(sqlmock.AnyArg(), "a@example.com", "Alice", sqlmock.AnyArg(), "yandex", sqlmock.AnyArg()).
			WillReturnRows(userRows().AddRow("id-1", "a@example.com", "Alice", "{student,admin}", true, "yandex", baseTime, baseTime))

		user, err := repo.FindOrCreate(context.Background(), "a@example.com", "Alice", users.SourceYandex)
		require.NoError(t, err)
		require.True(t, user.Blocked)
		require.Equal(t, []string{"student", "admin"}, user.Roles)
	})

	t.Run("invalid email never reaches the database", func(t *testing.T) {
		db, _ := setupMockDB(t)
		_, err := NewUserRepo(db).FindOrCreate(context.Background(), "nope", "", users.SourceCode)
		require.ErrorIs(t, err, errs.ErrValidation)
	})
}

func TestUserRepo_Lookups(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewUserRepo(db)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE id = $1")).
		WithArgs("id-1").
		WillReturnRows(userRows().AddRow("id-1", "a@example.com", "A", "{teacher}", false, "oidc", baseTime, baseTime))
	user, err := repo.GetByID(ctx, "id-1")
	require.NoError(t, err)
	require.Equal(t, []string{"teacher"}, user.Roles)

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE email = $1")).
		WithArgs("b@example.com").
		WillReturnRows(userRows())
	_, err = repo.GetByEmail(ctx, "b@example.com")
	require.ErrorIs(t, err, errs.ErrNotFound)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM users")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))
	n, err := repo.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 7, n)
}

func TestUserRepo_Updates(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewUserRepo(db)
	ctx := context.Background()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET blocked = $2 WHERE id = $1")).
		WithArgs("id-1", true).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.SetBlocked(ctx, "id-1", true))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET blocked = $2 WHERE id = $1")).
		WithArgs("missing", false).
		WillReturnResult(sqlmock.NewResult(0, 0))
	require.ErrorIs(t, repo.SetBlocked(ctx, "missing", false), errs.ErrNotFound)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET roles = $2 WHERE id = $1")).
		WithArgs("id-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.SetRoles(ctx, "id-1", []string{"admin"}))
}

func testRecord(token string) *refresh.Record {
	return &refresh.Record{Token: token, UserID: "id-1", CreatedAt: baseTime, ExpiresAt: baseTime.Add(time.Hour)}
}

func TestRefreshTokenRepo_Insert(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewRefreshTokenRepo(db)
	ctx := context.Background()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO refresh_tokens")).
		WithArgs(refresh.Fingerprint("rt-1"), "id-1", baseTime, baseTime.Add(time.Hour)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Insert(ctx, testRecord("rt-1")))

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO refresh_tokens")).
		WillReturnError(&pq.Error{Code: uniqueViolation})
	require.ErrorIs(t, repo.Insert(ctx, testRecord("rt-1")), errs.ErrDuplicateToken)
}

func TestRefreshTokenRepo_Get(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewRefreshTokenRepo(db)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT user_id, created_at, expires_at FROM refresh_tokens")).
		WithArgs(refresh.Fingerprint("rt-1")).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "created_at", "expires_at"}).AddRow("id-1", baseTime, baseTime.Add(time.Hour)))
	record, err := repo.Get(ctx, "rt-1")
	require.NoError(t, err)
	require.Equal(t, "rt-1", record.Token)
	require.Equal(t, "id-1", record.UserID)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT user_id, created_at, expires_at FROM refresh_tokens")).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "created_at", "expires_at"}))
	_, err = repo.Get(ctx, "rt-2")
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestRefreshTokenRepo_Rotate(t *testing.T) {
	ctx := context.Background()
	deleteOld := regexp.QuoteMeta("DELETE FROM refresh_tokens WHERE token_hash = $1 AND user_id = $2 AND expires_at > $3")

	t.Run("commits", func(t *testing.T) {
		db, mock := setupMockDB(t)
		mock.ExpectBegin()
		mock.ExpectExec(deleteOld).
			WithArgs(refresh.Fingerprint("rt-1"), "id-1", baseTime).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO refresh_tokens")).
			WithArgs(refresh.Fingerprint("rt-2"), "id-1", baseTime, baseTime.Add(time.Hour)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		require.NoError(t, NewRefreshTokenRepo(db).Rotate(ctx, "rt-1", testRecord("rt-2"), baseTime))
	})

	t.Run("stale token rolls back", func(t *testing.T) {
		db, mock := setupMockDB(t)
		mock.ExpectBegin()
		mock.ExpectExec(deleteOld).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		require.ErrorIs(t, NewRefreshTokenRepo(db).Rotate(ctx, "rt-1", testRecord("rt-2"), baseTime), errs.ErrStaleToken)
	})

	t.Run("duplicate next token rolls back", func(t *testing.T) {
		db, mock := setupMockDB(t)
		mock.ExpectBegin()
		mock.ExpectExec(deleteOld).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO refresh_tokens")).WillReturnError(&pq.Error{Code: uniqueViolation})
		mock.ExpectRollback()

		require.ErrorIs(t, NewRefreshTokenRepo(db).Rotate(ctx, "rt-1", testRecord("rt-2"), baseTime), errs.ErrDuplicateToken)
	})
}

func TestRefreshTokenRepo_Deletes(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewRefreshTokenRepo(db)
	ctx := context.Background()

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM refresh_tokens WHERE token_hash = $1")).
		WithArgs(refresh.Fingerprint("rt-1")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, repo.Delete(ctx, "rt-1"))

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM refresh_tokens WHERE expires_at <= $1")).
		WithArgs(baseTime).
		WillReturnResult(sqlmock.NewResult(0, 3))
	n, err := repo.DeleteExpired(ctx, baseTime)
	require.NoError(t, err)
	require.Equal(t, 3, n)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM refresh_tokens WHERE user_id = $1")).
		WithArgs("id-1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	n, err = repo.DeleteByUser(ctx, "id-1")
	require.NoError(t, err)
	require.Equal(t, 2, n)
}
