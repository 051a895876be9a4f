package errors

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by the login broker. Callers classify failures with
// Is against these sentinels; transport code maps them to responses.
var (
	// ErrValidation covers malformed input: missing handle, token or code, bad email.
	ErrValidation = errors.New("validation failed")
	// ErrNotFoundOrExpired is reported identically for unknown and expired
	// handles, codes and refresh tokens.
	ErrNotFoundOrExpired = errors.New("not found or expired")
	// ErrDenied means the user is blocked or the identity flow was rejected.
	ErrDenied = errors.New("access denied")
	// ErrIntegrity is a server fault such as a duplicate token being generated.
	ErrIntegrity = errors.New("integrity error")
	// ErrTransient wraps collaborator failures (identity provider, durable store).
	ErrTransient = errors.New("temporarily unavailable")

	// Token errors
	ErrInvalidToken   = errors.New("invalid token")
	ErrStaleToken     = errors.New("stale refresh token")
	ErrDuplicateToken = errors.New("duplicate refresh token")

	// Storage errors
	ErrNotFound = errors.New("not found")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Classify wraps err so that it also matches the taxonomy sentinel kind.
// The original error stays reachable through errors.Is and errors.As.
func Classify(kind, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, kind) {
		return err
	}
	return fmt.Errorf("%w: %w", kind, err)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// New is errors.New, re-exported so callers need a single errors import.
func New(text string) error {
	return errors.New(text)
}
