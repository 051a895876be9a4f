package config

import "time"

// OAuthClient holds the credentials of one upstream identity provider.
type OAuthClient struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Issuer       string // OIDC only
}

// Configured reports whether the provider has credentials.
func (c OAuthClient) Configured() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

type ProviderConfig interface {
	GetGitHub() OAuthClient
	GetYandex() OAuthClient
	GetOIDC() OAuthClient
	GetProviderTimeout() time.Duration
}

type Providers struct {
	src *source
}

var _ ProviderConfig = Providers{}

func (p Providers) GetGitHub() OAuthClient {
	return p.client("GITHUB", "github")
}

func (p Providers) GetYandex() OAuthClient {
	return p.client("YANDEX", "yandex")
}

func (p Providers) GetOIDC() OAuthClient {
	c := p.client("OIDC", "oidc")
	c.Issuer = p.src.get("OIDC_ISSUER", "")
	return c
}

func (p Providers) GetProviderTimeout() time.Duration {
	return p.src.duration("PROVIDER_TIMEOUT", 10*time.Second)
}

func (p Providers) client(prefix, name string) OAuthClient {
	base := EnvVars{p.src}.GetBaseURL()
	return OAuthClient{
		ClientID:     p.src.get(prefix+"_CLIENT_ID", ""),
		ClientSecret: p.src.get(prefix+"_CLIENT_SECRET", ""),
		RedirectURL:  p.src.get(prefix+"_REDIRECT_URL", base+"/auth/callback/"+name),
	}
}
