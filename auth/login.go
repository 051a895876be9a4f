package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-login-broker/identity"
	errs "github.com/jrsteele09/go-login-broker/internal/errors"
	"github.com/jrsteele09/go-login-broker/permissions"
	"github.com/jrsteele09/go-login-broker/server/loginsession"
	"github.com/jrsteele09/go-login-broker/server/shortcode"
	"github.com/jrsteele09/go-login-broker/users"
)

// Login is returned by Begin. AuthURL is set for provider logins and Code for
// short-code logins.
type Login struct {
	Handle    string          `json:"login_handle"`
	Kind      string          `json:"kind"`
	ExpiresAt time.Time       `json:"expires_at"`
	AuthURL   string          `json:"auth_url,omitempty"`
	Code      *shortcode.Code `json:"code,omitempty"`
}

// Begin starts a login of the given kind: a configured provider name or
// loginsession.KindCode.
func (s *Service) Begin(_ context.Context, kind string) (Login, error) {
	if kind == "" {
		return Login{}, validation("auth kind is required")
	}

	var provider identity.Provider
	if kind != loginsession.KindCode {
		p, ok := s.providers.Get(kind)
		if !ok {
			return Login{}, validation("unsupported auth kind %q", kind)
		}
		provider = p
	}

	session, err := s.sessions.Create(kind)
	if err != nil {
		return Login{}, errs.Classify(errs.ErrIntegrity, err)
	}
	s.metrics.LoginStarted(kind)

	login := Login{Handle: session.Handle, Kind: kind, ExpiresAt: session.ExpiresAt}
	if provider != nil {
		login.AuthURL = provider.AuthCodeURL(session.Handle)
		return login, nil
	}

	code, err := s.codes.Create(session.Handle, session.ExpiresAt)
	if err != nil {
		s.markTerminal(session.Handle, kind, loginsession.Denied(ReasonCodeFailure))
		return Login{}, errs.Classify(errs.ErrIntegrity, err)
	}
	login.Code = &code

	log.Debug().Str("kind", kind).Time("expires_at", session.ExpiresAt).Msg("login started")
	return login, nil
}

// IssueShortCode draws a fresh code for a live Pending code session.
func (s *Service) IssueShortCode(handle string) (shortcode.Code, error) {
	if handle == "" {
		return shortcode.Code{}, validation("login handle is required")
	}
	session, ok := s.sessions.Lookup(handle)
	if !ok || session.Status != loginsession.StatusPending {
		return shortcode.Code{}, notFoundOrExpired(fmt.Errorf("login session %w", errs.ErrNotFound))
	}
	if session.Kind != loginsession.KindCode {
		return shortcode.Code{}, validation("login session kind %q does not use short codes", session.Kind)
	}

	code, err := s.codes.Create(handle, session.ExpiresAt)
	if err != nil {
		return shortcode.Code{}, errs.Classify(errs.ErrIntegrity, err)
	}
	return code, nil
}

// Poll reports the state of a login. Terminal and expired sessions are
// delivered once and then forgotten.
func (s *Service) Poll(handle string) (loginsession.PollResult, error) {
	if handle == "" {
		return loginsession.PollResult{}, validation("login handle is required")
	}
	return s.sessions.Poll(handle), nil
}

// CompleteViaIdentity finishes a provider login for the identity the
// provider vouched for.
func (s *Service) CompleteViaIdentity(ctx context.Context, handle string, id identity.Identity) error {
	if handle == "" {
		return validation("login handle is required")
	}
	session, ok := s.sessions.Lookup(handle)
	if !ok || session.Status != loginsession.StatusPending {
		return notFoundOrExpired(fmt.Errorf("login session %w", errs.ErrNotFound))
	}
	if session.Kind != id.Provider {
		return validation("login session expects provider %q, got %q", session.Kind, id.Provider)
	}

	email, err := users.NormalizeEmail(id.Email)
	if err != nil {
		return err
	}

	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()

	user, err := s.users.FindOrCreate(storeCtx, email, id.DisplayName, users.Source(id.Provider))
	if err != nil {
		return userError(err)
	}
	if user.Blocked {
		s.markTerminal(handle, session.Kind, loginsession.Denied(ReasonUserBlocked))
		return denied(ReasonUserBlocked)
	}

	return s.completeSession(storeCtx, handle, session.Kind, user)
}

// Deny rejects a pending login, e.g. when the provider refused consent.
func (s *Service) Deny(handle, reason string) error {
	if handle == "" {
		return validation("login handle is required")
	}
	session, ok := s.sessions.Lookup(handle)
	if !ok || !s.markTerminal(handle, session.Kind, loginsession.Denied(reason)) {
		return notFoundOrExpired(fmt.Errorf("login session %w", errs.ErrNotFound))
	}
	return nil
}

// CompleteViaCode grants the code's login session to the user holding
// refreshToken. Every check runs before the code is consumed, so a failed
// attempt leaves both the code and its session untouched.
func (s *Service) CompleteViaCode(ctx context.Context, code, refreshToken string) error {
	if !shortcode.Valid(code) {
		return validation("malformed short code")
	}
	if refreshToken == "" {
		return validation("refresh token is required")
	}

	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()

	user, err := s.refreshTokenOwner(storeCtx, refreshToken)
	if err != nil {
		s.metrics.CodeRedeemed("rejected")
		return err
	}
	if user.Blocked {
		s.metrics.CodeRedeemed("denied")
		return denied(ReasonUserBlocked)
	}

	handle, err := s.codes.Redeem(code)
	switch {
	case errs.Is(err, shortcode.ErrNotFound), errs.Is(err, shortcode.ErrExpired):
		s.metrics.CodeRedeemed("not_found")
		return notFoundOrExpired(err)
	case err != nil:
		return err
	}

	session, ok := s.sessions.Lookup(handle)
	if !ok || session.Status != loginsession.StatusPending {
		s.metrics.CodeRedeemed("not_found")
		return notFoundOrExpired(fmt.Errorf("login session %w", errs.ErrNotFound))
	}

	if err := s.completeSession(storeCtx, handle, session.Kind, user); err != nil {
		return err
	}
	s.metrics.CodeRedeemed("granted")
	return nil
}

// completeSession issues and records a pair for user and grants it to the
// session. A session that vanished meanwhile gets nothing and the fresh
// refresh token is revoked again.
func (s *Service) completeSession(ctx context.Context, handle, kind string, user *users.User) error {
	pair, err := s.codec.IssuePair(user.ID, user.Email, permissions.Resolve(user.Roles))
	if err != nil {
		return errs.Classify(errs.ErrIntegrity, err)
	}
	if err := s.ledger.Put(ctx, user.ID, pair.RefreshToken); err != nil {
		log.Error().Err(err).Str("user_id", user.ID).Msg("failed to record refresh token")
		return err
	}

	if !s.markTerminal(handle, kind, loginsession.Granted(pair)) {
		if err := s.ledger.Revoke(ctx, pair.RefreshToken); err != nil {
			log.Warn().Err(err).Str("user_id", user.ID).Msg("failed to revoke orphaned refresh token")
		}
		return notFoundOrExpired(fmt.Errorf("login session %w", errs.ErrNotFound))
	}

	s.metrics.PairIssued(kind)
	log.Info().Str("user_id", user.ID).Str("kind", kind).Msg("login granted")
	return nil
}

func (s *Service) markTerminal(handle, kind string, outcome loginsession.Outcome) bool {
	if !s.sessions.MarkTerminal(handle, outcome) {
		return false
	}
	s.metrics.LoginCompleted(kind, string(outcome.Status))
	if outcome.Status == loginsession.StatusDenied {
		log.Info().Str("kind", kind).Str("reason", outcome.Reason).Msg("login denied")
	}
	return true
}
