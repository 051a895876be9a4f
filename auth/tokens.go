package auth

import (
	"context"
	"slices"
	"time"

	"github.com/rs/zerolog/log"

	errs "github.com/jrsteele09/go-login-broker/internal/errors"
	"github.com/jrsteele09/go-login-broker/permissions"
	"github.com/jrsteele09/go-login-broker/token"
	"github.com/jrsteele09/go-login-broker/users"
)

// AccessInfo is what a valid access token says about its bearer.
type AccessInfo struct {
	Subject     string    `json:"sub"`
	Email       string    `json:"email"`
	Permissions []string  `json:"permissions"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// PermissionSet lists a user's roles and the permissions they grant.
type PermissionSet struct {
	Email       string   `json:"email"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

// refreshTokenOwner returns the user a presented refresh token belongs to.
// The token must verify and still be recorded in the ledger. A verified token
// of a blocked user is reported as denied even once the ledger dropped it.
func (s *Service) refreshTokenOwner(ctx context.Context, refreshToken string) (*users.User, error) {
	claims, err := s.codec.Verify(refreshToken, token.KindRefresh)
	if err != nil {
		return nil, notFoundOrExpired(err)
	}
	valid, err := s.ledger.IsValid(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	if !valid {
		if user, err := s.users.GetByID(ctx, claims.Subject); err == nil && user.Blocked {
			return nil, denied(ReasonUserBlocked)
		}
		return nil, notFoundOrExpired(errs.ErrStaleToken)
	}
	user, err := s.users.GetByID(ctx, claims.Subject)
	if err != nil {
		return nil, userError(err)
	}
	return user, nil
}

// Refresh exchanges a refresh token for a new pair and invalidates it. Any
// failure leaves the presented token as it was, except for a blocked user
// whose tokens are all revoked.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (token.Pair, error) {
	if refreshToken == "" {
		return token.Pair{}, validation("refresh token is required")
	}

	ctx, cancel := s.storeContext(ctx)
	defer cancel()

	user, err := s.refreshTokenOwner(ctx, refreshToken)
	if err != nil {
		if errs.Is(err, errs.ErrDenied) {
			s.metrics.Refreshed("denied")
		} else {
			s.metrics.Refreshed("rejected")
		}
		return token.Pair{}, err
	}
	if user.Blocked {
		n, err := s.ledger.RevokeAllForUser(ctx, user.ID)
		if err != nil {
			log.Error().Err(err).Str("user_id", user.ID).Msg("failed to revoke refresh tokens of blocked user")
		}
		s.metrics.Revoked("blocked", n)
		s.metrics.Refreshed("denied")
		return token.Pair{}, denied(ReasonUserBlocked)
	}

	pair, err := s.codec.IssuePair(user.ID, user.Email, permissions.Resolve(user.Roles))
	if err != nil {
		return token.Pair{}, errs.Classify(errs.ErrIntegrity, err)
	}
	if err := s.ledger.Rotate(ctx, refreshToken, user.ID, pair.RefreshToken); err != nil {
		if errs.Is(err, errs.ErrStaleToken) {
			s.metrics.Refreshed("stale")
			return token.Pair{}, notFoundOrExpired(err)
		}
		log.Error().Err(err).Str("user_id", user.ID).Msg("refresh token rotation failed")
		return token.Pair{}, err
	}

	s.metrics.Refreshed("rotated")
	s.metrics.PairIssued("refresh")
	return pair, nil
}

// Logout revokes the single refresh token presented. Unknown tokens are
// accepted silently.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return validation("refresh token is required")
	}

	ctx, cancel := s.storeContext(ctx)
	defer cancel()

	if err := s.ledger.Revoke(ctx, refreshToken); err != nil {
		return err
	}
	s.metrics.Revoked("logout", 1)
	return nil
}

// ValidateAccessToken verifies an access token and checks that its user
// still exists and is not blocked.
func (s *Service) ValidateAccessToken(ctx context.Context, accessToken string) (AccessInfo, error) {
	if accessToken == "" {
		return AccessInfo{}, validation("access token is required")
	}
	claims, err := s.codec.Verify(accessToken, token.KindAccess)
	if err != nil {
		return AccessInfo{}, notFoundOrExpired(err)
	}

	ctx, cancel := s.storeContext(ctx)
	defer cancel()

	user, err := s.users.GetByID(ctx, claims.Subject)
	if err != nil {
		return AccessInfo{}, userError(err)
	}
	if user.Blocked {
		return AccessInfo{}, denied(ReasonUserBlocked)
	}

	info := AccessInfo{
		Subject:     claims.Subject,
		Email:       claims.Email,
		Permissions: claims.Permissions,
	}
	if claims.ExpiresAt != nil {
		info.ExpiresAt = claims.ExpiresAt.Time
	}
	return info, nil
}

// Authorize validates accessToken and requires it to carry permission.
func (s *Service) Authorize(ctx context.Context, accessToken, permission string) (AccessInfo, error) {
	info, err := s.ValidateAccessToken(ctx, accessToken)
	if err != nil {
		return AccessInfo{}, err
	}
	if !permissions.Has(info.Permissions, permission) {
		return AccessInfo{}, denied("missing permission " + permission)
	}
	return info, nil
}

func (s *Service) LookupPermissions(ctx context.Context, email string) (PermissionSet, error) {
	normalized, err := users.NormalizeEmail(email)
	if err != nil {
		return PermissionSet{}, err
	}

	ctx, cancel := s.storeContext(ctx)
	defer cancel()

	user, err := s.users.GetByEmail(ctx, normalized)
	if err != nil {
		return PermissionSet{}, userError(err)
	}
	return PermissionSet{
		Email:       user.Email,
		Roles:       slices.Clone(user.Roles),
		Permissions: permissions.Resolve(user.Roles),
	}, nil
}

// SetBlocked sets the user's block flag. Blocking also revokes every refresh
// token of the user; the number revoked is returned.
func (s *Service) SetBlocked(ctx context.Context, userID string, blocked bool) (int, error) {
	if userID == "" {
		return 0, validation("user id is required")
	}

	ctx, cancel := s.storeContext(ctx)
	defer cancel()

	if err := s.users.SetBlocked(ctx, userID, blocked); err != nil {
		return 0, userError(err)
	}
	if !blocked {
		log.Info().Str("user_id", userID).Msg("user unblocked")
		return 0, nil
	}

	n, err := s.ledger.RevokeAllForUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	s.metrics.Revoked("blocked", n)
	log.Info().Str("user_id", userID).Int("revoked", n).Msg("user blocked")
	return n, nil
}

// GrantRole adds role to the user with email, creating the user when absent.
func (s *Service) GrantRole(ctx context.Context, email, role string) error {
	if !permissions.Known(role) {
		return validation("unknown role %q", role)
	}
	normalized, err := users.NormalizeEmail(email)
	if err != nil {
		return err
	}

	ctx, cancel := s.storeContext(ctx)
	defer cancel()

	user, err := s.users.GetByEmail(ctx, normalized)
	if errs.Is(err, errs.ErrNotFound) {
		user, err = s.users.FindOrCreate(ctx, normalized, "", users.SourceBootstrap)
	}
	if err != nil {
		return userError(err)
	}
	if user.HasRole(role) {
		return nil
	}

	if err := s.users.SetRoles(ctx, user.ID, append(slices.Clone(user.Roles), role)); err != nil {
		return userError(err)
	}
	log.Info().Str("user_id", user.ID).Str("role", role).Msg("role granted")
	return nil
}
