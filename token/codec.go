package token

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	errs "github.com/jrsteele09/go-login-broker/internal/errors"
	"github.com/rs/zerolog/log"
)

// Kind distinguishes access tokens from refresh tokens. It travels in the
// "type" claim so one kind can never be presented as the other.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

const (
	defaultAccessTokenExpiry  = time.Minute
	defaultRefreshTokenExpiry = 7 * 24 * time.Hour
)

// Claims is the claim set of both token kinds. Permissions are only present
// on access tokens.
type Claims struct {
	Email       string   `json:"email"`
	Permissions []string `json:"permissions,omitempty"`
	Kind        Kind     `json:"type"`
	jwt.RegisteredClaims
}

// Pair is an access token with its companion refresh token.
type Pair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// Codec encodes and decodes signed tokens. It holds no mutable state and is
// safe for concurrent use.
type Codec struct {
	signer             Signer
	issuer             string
	accessTokenExpiry  time.Duration
	refreshTokenExpiry time.Duration
	nowFunc            func() time.Time
}

type CodecOption func(*Codec)

func WithTokenExpiry(accessTokenExpiry, refreshTokenExpiry time.Duration) CodecOption {
	return func(c *Codec) {
		c.accessTokenExpiry = accessTokenExpiry
		c.refreshTokenExpiry = refreshTokenExpiry
	}
}

func WithNowFunc(now func() time.Time) CodecOption {
	return func(c *Codec) {
		c.nowFunc = now
	}
}

func WithIssuer(issuer string) CodecOption {
	return func(c *Codec) {
		c.issuer = issuer
	}
}

func NewCodec(signer Signer, options ...CodecOption) *Codec {
	c := &Codec{signer: signer}
	for _, opt := range options {
		opt(c)
	}

	if c.accessTokenExpiry <= 0 {
		c.accessTokenExpiry = defaultAccessTokenExpiry
	}
	if c.refreshTokenExpiry <= 0 {
		c.refreshTokenExpiry = defaultRefreshTokenExpiry
	}
	if c.nowFunc == nil {
		c.nowFunc = time.Now
	}
	return c
}

// TTL returns the lifetime of tokens of the given kind.
func (c *Codec) TTL(kind Kind) time.Duration {
	if kind == KindRefresh {
		return c.refreshTokenExpiry
	}
	return c.accessTokenExpiry
}

// Issue signs a new token of the given kind for subject.
func (c *Codec) Issue(kind Kind, subject, email string, permissions []string) (string, *Claims, error) {
	if kind != KindAccess && kind != KindRefresh {
		return "", nil, fmt.Errorf("token.Issue: unknown kind %q", kind)
	}

	now := c.nowFunc()
	claims := &Claims{
		Email: email,
		Kind:  kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.TTL(kind))),
			ID:        uuid.New().String(), // Unique token ID, keeps same-second tokens distinct
		},
	}
	if kind == KindAccess {
		claims.Permissions = append([]string{}, permissions...)
	}

	signed, err := c.signer.Sign(claims)
	if err != nil {
		return "", nil, fmt.Errorf("token.Issue %s: %w", kind, err)
	}
	return signed, claims, nil
}

// IssuePair mints an access token and a refresh token for the same subject.
func (c *Codec) IssuePair(subject, email string, permissions []string) (Pair, error) {
	access, accessClaims, err := c.Issue(KindAccess, subject, email, permissions)
	if err != nil {
		return Pair{}, err
	}
	refresh, refreshClaims, err := c.Issue(KindRefresh, subject, email, nil)
	if err != nil {
		return Pair{}, err
	}
	return Pair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessClaims.ExpiresAt.Time,
		RefreshExpiresAt: refreshClaims.ExpiresAt.Time,
	}, nil
}

// Verify checks signature, algorithm, expiry and kind. Every failure yields
// ErrInvalidToken; the cause is only logged.
func (c *Codec) Verify(rawToken string, expected Kind) (*Claims, error) {
	if strings.TrimSpace(rawToken) == "" {
		return nil, errs.ErrInvalidToken
	}

	parserOptions := []jwt.ParserOption{
		jwt.WithValidMethods([]string{c.signer.GetSigningMethod().Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.nowFunc),
	}
	if c.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(c.issuer))
	}

	claims := &Claims{}
	parsed, err := jwt.NewParser(parserOptions...).ParseWithClaims(rawToken, claims, c.signer.GetVerificationKey)
	if err != nil || !parsed.Valid {
		log.Debug().Err(err).Str("expected", string(expected)).Msg("token rejected")
		return nil, errs.ErrInvalidToken
	}
	if claims.Kind != expected {
		log.Debug().Str("expected", string(expected)).Str("got", string(claims.Kind)).Msg("token kind mismatch")
		return nil, errs.ErrInvalidToken
	}
	if claims.Subject == "" {
		log.Debug().Msg("token without subject")
		return nil, errs.ErrInvalidToken
	}
	return claims, nil
}
