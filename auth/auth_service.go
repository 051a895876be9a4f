// Package auth is the session orchestrator. It correlates login handles with
// identity provider callbacks and short-code confirmations, and issues,
// rotates and revokes token pairs.
package auth

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-login-broker/identity"
	"github.com/jrsteele09/go-login-broker/metrics"
	"github.com/jrsteele09/go-login-broker/server/loginsession"
	"github.com/jrsteele09/go-login-broker/server/shortcode"
	"github.com/jrsteele09/go-login-broker/sweeper"
	"github.com/jrsteele09/go-login-broker/token"
	"github.com/jrsteele09/go-login-broker/token/refresh"
	"github.com/jrsteele09/go-login-broker/users"
)

const defaultStoreTimeout = 5 * time.Second

// Repos holds the durable stores the service depends on
type Repos struct {
	Users         users.Repo   // Users, roles and block flags
	RefreshTokens refresh.Repo // Backing store of the refresh token ledger
}

// Service is the login broker's façade. It is safe for concurrent use.
type Service struct {
	users     users.Repo
	ledger    *refresh.Ledger
	codec     *token.Codec
	sessions  *loginsession.Registry
	codes     *shortcode.Registry
	providers *identity.Registry
	metrics   *metrics.Metrics

	nowTime      func() time.Time
	sessionTTL   time.Duration
	codeTTL      time.Duration
	storeTimeout time.Duration
}

// ServiceOption defines a function type to modify the Service instance.
type ServiceOption func(*Service)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ServiceOption {
	return func(s *Service) {
		s.nowTime = nowFunc
	}
}

func WithMetrics(m *metrics.Metrics) ServiceOption {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithProviders sets the identity providers that begin_login accepts.
func WithProviders(providers *identity.Registry) ServiceOption {
	return func(s *Service) {
		s.providers = providers
	}
}

func WithSessionTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		s.sessionTTL = ttl
	}
}

func WithCodeTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		s.codeTTL = ttl
	}
}

// WithStoreTimeout bounds each call into the durable stores.
func WithStoreTimeout(timeout time.Duration) ServiceOption {
	return func(s *Service) {
		s.storeTimeout = timeout
	}
}

// NewService initializes a Service with required dependencies.
func NewService(repos Repos, codec *token.Codec, options ...ServiceOption) (*Service, error) {
	if repos.Users == nil {
		return nil, errors.New("[NewService] Users repo is required")
	}
	if repos.RefreshTokens == nil {
		return nil, errors.New("[NewService] RefreshTokens repo is required")
	}
	if codec == nil {
		return nil, errors.New("[NewService] codec is required")
	}

	s := &Service{
		users:        repos.Users,
		codec:        codec,
		providers:    identity.NewRegistry(),
		nowTime:      time.Now,
		storeTimeout: defaultStoreTimeout,
	}
	for _, opt := range options {
		opt(s)
	}

	ledger, err := refresh.NewLedger(repos.RefreshTokens,
		refresh.WithTTL(codec.TTL(token.KindRefresh)),
		refresh.WithNowFunc(s.nowTime),
	)
	if err != nil {
		return nil, err
	}
	s.ledger = ledger

	sessionOptions := []loginsession.Option{
		loginsession.WithNowFunc(s.nowTime),
		loginsession.WithUndelivered(s.revokeUndelivered),
	}
	if s.sessionTTL > 0 {
		sessionOptions = append(sessionOptions, loginsession.WithTTL(s.sessionTTL))
	}
	s.sessions = loginsession.NewRegistry(sessionOptions...)

	codeOptions := []shortcode.Option{
		shortcode.WithNowFunc(s.nowTime),
		shortcode.WithSessionCheck(s.sessions.Exists),
	}
	if s.codeTTL > 0 {
		codeOptions = append(codeOptions, shortcode.WithTTL(s.codeTTL))
	}
	s.codes = shortcode.NewRegistry(codeOptions...)

	s.metrics.Gauge("login_sessions_active", "Login sessions held in memory", func() float64 {
		return float64(s.sessions.Len())
	})
	s.metrics.Gauge("short_codes_active", "Short codes held in memory", func() float64 {
		return float64(s.codes.Len())
	})

	return s, nil
}

// SweepTargets lists the stores the expiry sweeper must visit.
func (s *Service) SweepTargets() []sweeper.Target {
	return []sweeper.Target{s.sessions, s.codes, s.ledger}
}

// Providers returns the configured identity providers.
func (s *Service) Providers() *identity.Registry {
	return s.providers
}

// revokeUndelivered drops the refresh token of a granted session that expired
// before the client collected it.
func (s *Service) revokeUndelivered(ctx context.Context, session loginsession.Session) {
	ctx, cancel := s.storeContext(ctx)
	defer cancel()

	if err := s.ledger.Revoke(ctx, session.Tokens.RefreshToken); err != nil {
		log.Warn().Err(err).Str("kind", session.Kind).Msg("failed to revoke undelivered refresh token")
		return
	}
	s.metrics.Revoked("undelivered", 1)
}

func (s *Service) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.storeTimeout)
}

// Stats is a snapshot of the service's live state.
type Stats struct {
	ActiveSessions int `json:"active_sessions"`
	ActiveCodes    int `json:"active_codes"`
	Users          int `json:"users"`
}

func (s *Service) Stats(ctx context.Context) (Stats, error) {
	ctx, cancel := s.storeContext(ctx)
	defer cancel()

	count, err := s.users.Count(ctx)
	if err != nil {
		return Stats{}, transient(err)
	}
	return Stats{
		ActiveSessions: s.sessions.Len(),
		ActiveCodes:    s.codes.Len(),
		Users:          count,
	}, nil
}
