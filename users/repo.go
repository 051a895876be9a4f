package users

import "context"

// Repo stores users. Lookups of a missing user return errors.ErrNotFound.
type Repo interface {
	// FindOrCreate returns the user with email, creating it with the default
	// role when absent. LastLogin is updated either way.
	FindOrCreate(ctx context.Context, email, displayName string, source Source) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
	SetBlocked(ctx context.Context, id string, blocked bool) error
	SetRoles(ctx context.Context, id string, roles []string) error
	Count(ctx context.Context) (int, error)
}
