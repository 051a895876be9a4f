package refresh

import (
	"context"
	"errors"
	"fmt"
	"time"

	errs "github.com/jrsteele09/go-login-broker/internal/errors"
	"github.com/rs/zerolog/log"
)

const defaultRefreshTokenExpiry = 7 * 24 * time.Hour

// Ledger is the authority on which refresh tokens are currently valid.
// A refresh token whose signature verifies but which is absent from the
// ledger must be treated as revoked.
type Ledger struct {
	repo    Repo
	ttl     time.Duration
	nowFunc func() time.Time
}

type Option func(*Ledger)

func WithTTL(ttl time.Duration) Option {
	return func(l *Ledger) {
		l.ttl = ttl
	}
}

func WithNowFunc(now func() time.Time) Option {
	return func(l *Ledger) {
		l.nowFunc = now
	}
}

func NewLedger(repo Repo, options ...Option) (*Ledger, error) {
	if repo == nil {
		return nil, errors.New("[NewLedger] refresh token repo is required")
	}
	l := &Ledger{
		repo:    repo,
		ttl:     defaultRefreshTokenExpiry,
		nowFunc: time.Now,
	}
	for _, opt := range options {
		opt(l)
	}
	return l, nil
}

func (l *Ledger) newRecord(userID, token string) *Record {
	now := l.nowFunc()
	return &Record{
		Token:     token,
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(l.ttl),
	}
}

// Put records a freshly minted refresh token.
func (l *Ledger) Put(ctx context.Context, userID, token string) error {
	if userID == "" || token == "" {
		return fmt.Errorf("refresh.Put: %w", errs.ErrValidation)
	}
	if err := l.repo.Insert(ctx, l.newRecord(userID, token)); err != nil {
		if errors.Is(err, errs.ErrDuplicateToken) {
			return errs.Classify(errs.ErrIntegrity, err)
		}
		return errs.Classify(errs.ErrTransient, fmt.Errorf("refresh.Put: %w", err))
	}
	return nil
}

// Rotate atomically swaps old for next. A concurrent rotation of the same
// old token leaves exactly one winner; the loser gets ErrStaleToken and next
// is not recorded.
func (l *Ledger) Rotate(ctx context.Context, old, userID, next string) error {
	if old == "" || userID == "" || next == "" {
		return fmt.Errorf("refresh.Rotate: %w", errs.ErrValidation)
	}
	err := l.repo.Rotate(ctx, old, l.newRecord(userID, next), l.nowFunc())
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errs.ErrStaleToken):
		return err
	case errors.Is(err, errs.ErrDuplicateToken):
		return errs.Classify(errs.ErrIntegrity, err)
	default:
		return errs.Classify(errs.ErrTransient, fmt.Errorf("refresh.Rotate: %w", err))
	}
}

// IsValid reports whether token is recorded and unexpired. A record found
// expired is deleted on the way out.
func (l *Ledger) IsValid(ctx context.Context, token string) (bool, error) {
	record, err := l.repo.Get(ctx, token)
	if errors.Is(err, errs.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, errs.Classify(errs.ErrTransient, fmt.Errorf("refresh.IsValid: %w", err))
	}
	if record.Expired(l.nowFunc()) {
		if err := l.repo.Delete(ctx, token); err != nil {
			log.Warn().Err(err).Msg("failed to delete expired refresh token")
		}
		return false, nil
	}
	return true, nil
}

// Revoke removes a single token. Revoking an unknown token succeeds.
func (l *Ledger) Revoke(ctx context.Context, token string) error {
	if err := l.repo.Delete(ctx, token); err != nil {
		return errs.Classify(errs.ErrTransient, fmt.Errorf("refresh.Revoke: %w", err))
	}
	return nil
}

// RevokeAllForUser removes every token of userID and returns how many there were.
func (l *Ledger) RevokeAllForUser(ctx context.Context, userID string) (int, error) {
	n, err := l.repo.DeleteByUser(ctx, userID)
	if err != nil {
		return 0, errs.Classify(errs.ErrTransient, fmt.Errorf("refresh.RevokeAllForUser: %w", err))
	}
	return n, nil
}

func (l *Ledger) Name() string { return "refresh_tokens" }

// SweepExpired drops every record expired at now.
func (l *Ledger) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	n, err := l.repo.DeleteExpired(ctx, now)
	if err != nil {
		return 0, errs.Classify(errs.ErrTransient, fmt.Errorf("refresh.SweepExpired: %w", err))
	}
	return n, nil
}
