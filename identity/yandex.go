package identity

import (
	"context"

	"github.com/jrsteele09/go-login-broker/internal/config"
	"golang.org/x/oauth2/yandex"
)

const (
	ProviderYandex = "yandex"
	yandexAPIURL   = "https://login.yandex.ru"
)

type Yandex struct {
	*oauthProvider
}

var _ Provider = (*Yandex)(nil)

func NewYandex(client config.OAuthClient, options ...Option) *Yandex {
	return &Yandex{newOAuthProvider(ProviderYandex, client, yandex.Endpoint, yandexAPIURL,
		[]string{"login:info", "login:email"}, options...)}
}

type yandexUser struct {
	Login        string `json:"login"`
	DisplayName  string `json:"display_name"`
	RealName     string `json:"real_name"`
	DefaultEmail string `json:"default_email"`
}

func (y *Yandex) Exchange(ctx context.Context, code string) (Identity, error) {
	tok, err := y.exchange(ctx, code)
	if err != nil {
		return Identity{}, err
	}

	var user yandexUser
	// Yandex ID expects the "OAuth" scheme rather than "Bearer"
	if err := y.getJSON(ctx, y.apiURL+"/info?format=json", "OAuth", tok, &user); err != nil {
		return Identity{}, err
	}
	if user.DefaultEmail == "" {
		return Identity{}, ErrNoEmail
	}

	return Identity{
		Email:       user.DefaultEmail,
		DisplayName: firstNonEmpty(user.RealName, user.DisplayName, user.Login),
		Provider:    ProviderYandex,
	}, nil
}
