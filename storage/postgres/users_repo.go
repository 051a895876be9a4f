package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	errs "github.com/jrsteele09/go-login-broker/internal/errors"
	"github.com/jrsteele09/go-login-broker/permissions"
	"github.com/jrsteele09/go-login-broker/users"
	"github.com/lib/pq"
)

const userColumns = `id, email, display_name, roles, blocked, source, created_at, last_login`

var _ users.Repo = (*UserRepo)(nil)

type UserRepo struct {
	db      *sql.DB
	nowFunc func() time.Time
}

func NewUserRepo(db *sql.DB) *UserRepo {
	return &UserRepo{db: db, nowFunc: time.Now}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (*users.User, error) {
	var (
		u      users.User
		roles  []string
		source string
	)
	err := row.Scan(&u.ID, &u.Email, &u.DisplayName, pq.Array(&roles), &u.Blocked, &source, &u.CreatedAt, &u.LastLogin)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.Roles = roles
	u.Source = users.Source(source)
	return &u, nil
}

func (r *UserRepo) FindOrCreate(ctx context.Context, email, displayName string, source users.Source) (*users.User, error) {
	email, err := users.NormalizeEmail(email)
	if err != nil {
		return nil, err
	}

	if displayName == "" {
		var count int
		if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
			return nil, fmt.Errorf("postgres.FindOrCreate count: %w", err)
		}
		displayName = users.GuestName(count + 1)
	}

	now := r.nowFunc().UTC()
	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, FALSE, $5, $6, $6)
		ON CONFLICT (email) DO UPDATE SET last_login = EXCLUDED.last_login
		RETURNING ` + userColumns

	user, err := scanUser(r.db.QueryRowContext(ctx, query,
		uuid.New().String(), email, displayName, pq.Array([]string{permissions.DefaultRole}), string(source), now,
	))
	if err != nil {
		return nil, fmt.Errorf("postgres.FindOrCreate: %w", err)
	}
	return user, nil
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*users.User, error) {
	email, err := users.NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	user, err := scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
	if err != nil {
		return nil, errs.Wrapf(err, "postgres.GetByEmail")
	}
	return user, nil
}

func (r *UserRepo) GetByID(ctx context.Context, id string) (*users.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, errs.Wrapf(err, "postgres.GetByID")
	}
	return user, nil
}

func (r *UserRepo) SetBlocked(ctx context.Context, id string, blocked bool) error {
	return r.update(ctx, "postgres.SetBlocked", `UPDATE users SET blocked = $2 WHERE id = $1`, id, blocked)
}

func (r *UserRepo) SetRoles(ctx context.Context, id string, roles []string) error {
	return r.update(ctx, "postgres.SetRoles", `UPDATE users SET roles = $2 WHERE id = $1`, id, pq.Array(roles))
}

func (r *UserRepo) update(ctx context.Context, op, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, errs.ErrNotFound)
	}
	return nil
}

func (r *UserRepo) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return 0, fmt.Errorf("postgres.Count: %w", err)
	}
	return count, nil
}

// Ping reports whether the database is reachable.
func (r *UserRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
