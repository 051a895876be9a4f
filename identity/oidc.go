package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/jrsteele09/go-login-broker/internal/config"
	"golang.org/x/oauth2"
)

const ProviderOIDC = "oidc"

// OIDC is a generic OpenID Connect provider configured by discovery.
type OIDC struct {
	*oauthProvider
	verifier *oidc.IDTokenVerifier
}

var _ Provider = (*OIDC)(nil)

// NewOIDC discovers the issuer's endpoints and signing keys.
func NewOIDC(ctx context.Context, client config.OAuthClient, options ...Option) (*OIDC, error) {
	if client.Issuer == "" {
		return nil, errors.New("[NewOIDC] issuer is required")
	}

	p := newOAuthProvider(ProviderOIDC, client, oauth2.Endpoint{}, "",
		[]string{oidc.ScopeOpenID, "profile", "email"}, options...)

	provider, err := oidc.NewProvider(oidc.ClientContext(ctx, p.httpClient), client.Issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}
	p.config.Endpoint = provider.Endpoint()

	return &OIDC{
		oauthProvider: p,
		verifier:      provider.Verifier(&oidc.Config{ClientID: client.ClientID}),
	}, nil
}

type oidcClaims struct {
	Email             string `json:"email"`
	EmailVerified     *bool  `json:"email_verified"`
	Name              string `json:"name"`
	PreferredUsername string `json:"preferred_username"`
}

func (o *OIDC) Exchange(ctx context.Context, code string) (Identity, error) {
	tok, err := o.exchange(ctx, code)
	if err != nil {
		return Identity{}, err
	}

	rawIDToken, ok := tok.Extra("id_token").(string)
	if !ok {
		return Identity{}, errors.New("no id_token in token response")
	}
	idToken, err := o.verifier.Verify(oidc.ClientContext(ctx, o.httpClient), rawIDToken)
	if err != nil {
		return Identity{}, fmt.Errorf("ID token verification failed: %w", err)
	}

	var claims oidcClaims
	if err := idToken.Claims(&claims); err != nil {
		return Identity{}, fmt.Errorf("failed to extract claims: %w", err)
	}
	if claims.Email == "" || (claims.EmailVerified != nil && !*claims.EmailVerified) {
		return Identity{}, ErrNoEmail
	}

	return Identity{
		Email:       claims.Email,
		DisplayName: firstNonEmpty(claims.Name, claims.PreferredUsername),
		Provider:    ProviderOIDC,
	}, nil
}
