package auth

import (
	"fmt"

	errs "github.com/jrsteele09/go-login-broker/internal/errors"
)

// Denial reasons reported to pollers.
const (
	ReasonUserBlocked     = "user blocked"
	ReasonInvalidIdentity = "invalid identity"
	ReasonProviderError   = "identity provider error"
	ReasonCodeFailure     = "short code unavailable"
)

func validation(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), errs.ErrValidation)
}

func notFoundOrExpired(err error) error {
	return errs.Classify(errs.ErrNotFoundOrExpired, err)
}

func denied(reason string) error {
	return fmt.Errorf("%w: %s", errs.ErrDenied, reason)
}

func transient(err error) error {
	return errs.Classify(errs.ErrTransient, err)
}

// userError maps a users.Repo failure onto the taxonomy.
func userError(err error) error {
	switch {
	case errs.Is(err, errs.ErrNotFound):
		return notFoundOrExpired(err)
	case errs.Is(err, errs.ErrValidation):
		return err
	default:
		return transient(err)
	}
}
