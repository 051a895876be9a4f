// Package identity talks to the upstream identity providers. Each provider
// turns an authorization code into a verified Identity.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"time"

	"github.com/jrsteele09/go-login-broker/internal/config"
	"golang.org/x/oauth2"
)

const defaultTimeout = 10 * time.Second

// ErrNoEmail means the provider did not disclose a usable email address.
var ErrNoEmail = errors.New("identity provider returned no email")

// Identity is the verified result of an external login.
type Identity struct {
	Email       string
	DisplayName string
	Provider    string
}

type Provider interface {
	Name() string
	// AuthCodeURL is where the user is sent to sign in; state comes back on the callback.
	AuthCodeURL(state string) string
	// Exchange redeems the callback code for the user's identity.
	Exchange(ctx context.Context, code string) (Identity, error)
}

// Registry maps provider names to providers.
type Registry struct {
	providers map[string]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

func (r *Registry) Get(name string) (Provider, bool) {
	if r == nil {
		return nil, false
	}
	p, ok := r.providers[name]
	return p, ok
}

// Names lists the registered providers, sorted.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// oauthProvider holds what the OAuth2 based providers share.
type oauthProvider struct {
	name       string
	config     oauth2.Config
	apiURL     string
	httpClient *http.Client
}

type Option func(*oauthProvider)

// WithHTTPClient replaces the client used for token exchange and API calls.
func WithHTTPClient(client *http.Client) Option {
	return func(p *oauthProvider) {
		p.httpClient = client
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(p *oauthProvider) {
		p.httpClient = &http.Client{Timeout: timeout}
	}
}

// WithEndpoint overrides the provider's authorization and token URLs.
func WithEndpoint(endpoint oauth2.Endpoint) Option {
	return func(p *oauthProvider) {
		p.config.Endpoint = endpoint
	}
}

// WithAPIURL overrides the base URL of the provider's profile API.
func WithAPIURL(apiURL string) Option {
	return func(p *oauthProvider) {
		p.apiURL = apiURL
	}
}

func newOAuthProvider(name string, client config.OAuthClient, endpoint oauth2.Endpoint, apiURL string, scopes []string, options ...Option) *oauthProvider {
	p := &oauthProvider{
		name: name,
		config: oauth2.Config{
			ClientID:     client.ClientID,
			ClientSecret: client.ClientSecret,
			RedirectURL:  client.RedirectURL,
			Endpoint:     endpoint,
			Scopes:       scopes,
		},
		apiURL:     apiURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

func (p *oauthProvider) Name() string { return p.name }

func (p *oauthProvider) AuthCodeURL(state string) string {
	return p.config.AuthCodeURL(state)
}

func (p *oauthProvider) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
}

func (p *oauthProvider) exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	if code == "" {
		return nil, errors.New("authorization code is required")
	}
	tok, err := p.config.Exchange(p.clientContext(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("%s token exchange: %w", p.name, err)
	}
	return tok, nil
}

// getJSON fetches url with the access token under the given authorization scheme.
func (p *oauthProvider) getJSON(ctx context.Context, url, scheme string, tok *oauth2.Token, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", scheme+" "+tok.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s profile request: %w", p.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s profile request failed with status %d: %s", p.name, resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s profile decode: %w", p.name, err)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
