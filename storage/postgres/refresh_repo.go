package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	errs "github.com/jrsteele09/go-login-broker/internal/errors"
	"github.com/jrsteele09/go-login-broker/token/refresh"
)

const insertRefreshToken = `INSERT INTO refresh_tokens (token_hash, user_id, created_at, expires_at) VALUES ($1, $2, $3, $4)`

var _ refresh.Repo = (*RefreshTokenRepo)(nil)

// RefreshTokenRepo keeps only the fingerprint of each token.
type RefreshTokenRepo struct {
	db *sql.DB
}

func NewRefreshTokenRepo(db *sql.DB) *RefreshTokenRepo {
	return &RefreshTokenRepo{db: db}
}

func (r *RefreshTokenRepo) Insert(ctx context.Context, record *refresh.Record) error {
	_, err := r.db.ExecContext(ctx, insertRefreshToken,
		refresh.Fingerprint(record.Token), record.UserID, record.CreatedAt.UTC(), record.ExpiresAt.UTC())
	if isUniqueViolation(err) {
		return errs.ErrDuplicateToken
	}
	if err != nil {
		return fmt.Errorf("postgres.Insert: %w", err)
	}
	return nil
}

func (r *RefreshTokenRepo) Get(ctx context.Context, token string) (*refresh.Record, error) {
	record := &refresh.Record{Token: token}
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, created_at, expires_at FROM refresh_tokens WHERE token_hash = $1`,
		refresh.Fingerprint(token),
	).Scan(&record.UserID, &record.CreatedAt, &record.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres.Get: %w", err)
	}
	return record, nil
}

func (r *RefreshTokenRepo) Delete(ctx context.Context, token string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE token_hash = $1`, refresh.Fingerprint(token)); err != nil {
		return fmt.Errorf("postgres.Delete: %w", err)
	}
	return nil
}

// Rotate deletes the old row and inserts the new one in a single
// transaction. Concurrent rotations of one token serialize on the row lock;
// only the first sees a row to delete.
func (r *RefreshTokenRepo) Rotate(ctx context.Context, old string, next *refresh.Record, now time.Time) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres.Rotate begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx,
		`DELETE FROM refresh_tokens WHERE token_hash = $1 AND user_id = $2 AND expires_at > $3`,
		refresh.Fingerprint(old), next.UserID, now.UTC())
	if err != nil {
		return fmt.Errorf("postgres.Rotate delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres.Rotate delete: %w", err)
	}
	if n != 1 {
		return errs.ErrStaleToken
	}

	_, err = tx.ExecContext(ctx, insertRefreshToken,
		refresh.Fingerprint(next.Token), next.UserID, next.CreatedAt.UTC(), next.ExpiresAt.UTC())
	if isUniqueViolation(err) {
		return errs.ErrDuplicateToken
	}
	if err != nil {
		return fmt.Errorf("postgres.Rotate insert: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("postgres.Rotate commit: %w", err)
	}
	return nil
}

func (r *RefreshTokenRepo) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	return r.deleteWhere(ctx, "postgres.DeleteExpired", `DELETE FROM refresh_tokens WHERE expires_at <= $1`, now.UTC())
}

func (r *RefreshTokenRepo) DeleteByUser(ctx context.Context, userID string) (int, error) {
	return r.deleteWhere(ctx, "postgres.DeleteByUser", `DELETE FROM refresh_tokens WHERE user_id = $1`, userID)
}

func (r *RefreshTokenRepo) deleteWhere(ctx context.Context, op, query string, arg any) (int, error) {
	res, err := r.db.ExecContext(ctx, query, arg)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(n), nil
}
