package identity

import (
	"context"

	"github.com/jrsteele09/go-login-broker/internal/config"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

const (
	ProviderGitHub = "github"
	gitHubAPIURL   = "https://api.github.com"
)

type GitHub struct {
	*oauthProvider
}

var _ Provider = (*GitHub)(nil)

func NewGitHub(client config.OAuthClient, options ...Option) *GitHub {
	return &GitHub{newOAuthProvider(ProviderGitHub, client, github.Endpoint, gitHubAPIURL,
		[]string{"read:user", "user:email"}, options...)}
}

type gitHubUser struct {
	Login string `json:"login"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type gitHubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// Exchange reads the profile and, when it shows no public email, falls back
// to the primary verified address.
func (g *GitHub) Exchange(ctx context.Context, code string) (Identity, error) {
	tok, err := g.exchange(ctx, code)
	if err != nil {
		return Identity{}, err
	}

	var user gitHubUser
	if err := g.getJSON(ctx, g.apiURL+"/user", "Bearer", tok, &user); err != nil {
		return Identity{}, err
	}

	email := user.Email
	if email == "" {
		if email, err = g.primaryEmail(ctx, tok); err != nil {
			return Identity{}, err
		}
	}

	return Identity{
		Email:       email,
		DisplayName: firstNonEmpty(user.Name, user.Login),
		Provider:    ProviderGitHub,
	}, nil
}

func (g *GitHub) primaryEmail(ctx context.Context, tok *oauth2.Token) (string, error) {
	var emails []gitHubEmail
	if err := g.getJSON(ctx, g.apiURL+"/user/emails", "Bearer", tok, &emails); err != nil {
		return "", err
	}
	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email, nil
		}
	}
	return "", ErrNoEmail
}
