package refresh

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Record is the server-side entry for one issued refresh token.
type Record struct {
	Token     string // The refresh token string (durable stores keep only its Fingerprint)
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the record is no longer usable at now.
func (r *Record) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// Repo is the durable store behind the Ledger. Implementations must make
// Rotate a single atomic step: either the old record is gone and the new one
// present, or nothing changed.
type Repo interface {
	// Insert stores a new record; ErrDuplicateToken if the token is already present.
	Insert(ctx context.Context, record *Record) error
	// Get returns the record or ErrNotFound.
	Get(ctx context.Context, token string) (*Record, error)
	// Delete removes the record; deleting an absent token is not an error.
	Delete(ctx context.Context, token string) error
	// Rotate replaces old with next. ErrStaleToken when old is absent, expired
	// at now, or not owned by next.UserID.
	Rotate(ctx context.Context, old string, next *Record, now time.Time) error
	// DeleteExpired removes every record with ExpiresAt <= now.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
	// DeleteByUser removes every record owned by userID.
	DeleteByUser(ctx context.Context, userID string) (int, error)
}

// Fingerprint is the SHA-256 hex digest under which durable stores index a token.
func Fingerprint(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
