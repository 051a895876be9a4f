package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-login-broker/auth"
	"github.com/jrsteele09/go-login-broker/identity"
	"github.com/jrsteele09/go-login-broker/internal/config"
	"github.com/jrsteele09/go-login-broker/metrics"
	"github.com/jrsteele09/go-login-broker/permissions"
	"github.com/jrsteele09/go-login-broker/server"
	"github.com/jrsteele09/go-login-broker/token"
	refreshrepofake "github.com/jrsteele09/go-login-broker/token/refresh/repofake"
	fakeuserrepo "github.com/jrsteele09/go-login-broker/users/repofake"
)

type testCors struct{}

func (testCors) GetAllowedOrigins() config.AllowedOrigins {
	return config.AllowedOrigins{"https://app.example": {}}
}
func (testCors) GetAllowedMethods() string { return "GET, POST, OPTIONS" }
func (testCors) GetAllowedHeaders() string { return "Content-Type, Authorization" }

// fakeProvider treats the authorization code as the user's email.
type fakeProvider struct{}

func (fakeProvider) Name() string { return "github" }

func (fakeProvider) AuthCodeURL(state string) string {
	return "https://github.example/login?state=" + url.QueryEscape(state)
}

func (fakeProvider) Exchange(_ context.Context, code string) (identity.Identity, error) {
	if code == "broken" {
		return identity.Identity{}, errors.New("provider unreachable")
	}
	return identity.Identity{Email: code, DisplayName: "Ann", Provider: "github"}, nil
}

type testFixture struct {
	server  *server.Server
	service *auth.Service
	users   *fakeuserrepo.FakeUserRepo
}

func setupTestFixture(t *testing.T, healthErr error) *testFixture {
	t.Helper()

	signer, err := token.NewHMACSigner("server-test-secret")
	require.NoError(t, err)
	f := &testFixture{users: fakeuserrepo.NewFakeUserRepo()}
	m := metrics.New()

	f.service, err = auth.NewService(
		auth.Repos{Users: f.users, RefreshTokens: refreshrepofake.NewFakeRefreshTokenRepo()},
		token.NewCodec(signer),
		auth.WithProviders(identity.NewRegistry(fakeProvider{})),
		auth.WithMetrics(m),
	)
	require.NoError(t, err)

	f.server, err = server.New(testCors{}, f.service,
		server.WithMetrics(m),
		server.WithHealthCheck("store", func(context.Context) error { return healthErr }),
	)
	require.NoError(t, err)
	return f
}

func (f *testFixture) do(t *testing.T, method, target string, body any, header ...string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}

	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)

	out := map[string]any{}
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

// login drives a github login through the HTTP API and returns the pair.
func (f *testFixture) login(t *testing.T, email string) (access, refresh string) {
	t.Helper()

	rec, body := f.do(t, http.MethodPost, server.RouteAuthLogin, map[string]string{"kind": "github"})
	require.Equal(t, http.StatusCreated, rec.Code)
	handle := body["login_handle"].(string)
	require.Contains(t, body["auth_url"], url.QueryEscape(handle))

	rec, _ = f.do(t, http.MethodGet, "/auth/callback/github?state="+url.QueryEscape(handle)+"&code="+url.QueryEscape(email), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body = f.do(t, http.MethodGet, server.RouteAuthCheck+"?handle="+url.QueryEscape(handle), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "granted", body["status"])

	rec, body2 := f.do(t, http.MethodGet, server.RouteAuthCheck+"?handle="+url.QueryEscape(handle), nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "not_found", body2["status"])

	return body["access_token"].(string), body["refresh_token"].(string)
}

func TestProviderLoginFlow(t *testing.T) {
	f := setupTestFixture(t, nil)
	access, refresh := f.login(t, "a@b.com")

	rec, body := f.do(t, http.MethodPost, server.RouteAuthValidate, map[string]string{"token": access})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, body["valid"])
	require.Equal(t, "a@b.com", body["email"])

	rec, body = f.do(t, http.MethodPost, server.RouteAuthRefresh, map[string]string{"refresh_token": refresh})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEqual(t, refresh, body["refresh_token"])

	rec, body = f.do(t, http.MethodPost, server.RouteAuthRefresh, map[string]string{"refresh_token": refresh})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "invalid_token", body["error"])

	rec, _ = f.do(t, http.MethodPost, server.RouteAuthLogout, map[string]string{"refresh_token": refresh})
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestCallbackDenials(t *testing.T) {
	f := setupTestFixture(t, nil)

	begin := func() string {
		_, body := f.do(t, http.MethodPost, server.RouteAuthLogin, map[string]string{"kind": "github"})
		return url.QueryEscape(body["login_handle"].(string))
	}

	cases := []struct {
		name   string
		query  string
		status int
		reason string
	}{
		{name: "provider error", query: "&error=access_denied", status: http.StatusOK, reason: "access_denied"},
		{name: "exchange failure", query: "&code=broken", status: http.StatusServiceUnavailable, reason: auth.ReasonProviderError},
		{name: "invalid email", query: "&code=not-an-email", status: http.StatusBadRequest, reason: auth.ReasonInvalidIdentity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handle := begin()
			rec, _ := f.do(t, http.MethodGet, "/auth/callback/github?state="+handle+tc.query, nil)
			require.Equal(t, tc.status, rec.Code)

			rec, body := f.do(t, http.MethodGet, server.RouteAuthCheck+"?handle="+handle, nil)
			require.Equal(t, http.StatusForbidden, rec.Code)
			require.Equal(t, "denied", body["status"])
			require.Equal(t, tc.reason, body["reason"])
		})
	}

	rec, _ := f.do(t, http.MethodGet, "/auth/callback/myspace?state=x&code=y", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestShortCodeFlow(t *testing.T) {
	f := setupTestFixture(t, nil)
	_, refresh := f.login(t, "a@b.com")

	rec, body := f.do(t, http.MethodPost, server.RouteAuthLogin, map[string]string{"kind": "code"})
	require.Equal(t, http.StatusCreated, rec.Code)
	handle := body["login_handle"].(string)
	code := body["code"].(map[string]any)["code"].(string)

	rec, _ = f.do(t, http.MethodGet, server.RouteAuthCheck+"?handle="+url.QueryEscape(handle), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = f.do(t, http.MethodPost, server.RouteAuthCodeVerify, map[string]string{"code": code, "refresh_token": "nope"})
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = f.do(t, http.MethodPost, server.RouteAuthCodeVerify, map[string]string{"code": code, "refresh_token": refresh})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = f.do(t, http.MethodPost, server.RouteAuthCodeVerify, map[string]string{"code": code, "refresh_token": refresh})
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec, body = f.do(t, http.MethodGet, server.RouteAuthCheck+"?handle="+url.QueryEscape(handle), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "granted", body["status"])
	require.NotEmpty(t, body["access_token"])

	rec, _ = f.do(t, http.MethodPost, server.RouteAuthCode, map[string]string{"login_handle": handle})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBlockUser(t *testing.T) {
	f := setupTestFixture(t, nil)
	ctx := context.Background()

	studentAccess, studentRefresh := f.login(t, "student@b.com")
	student, err := f.users.GetByEmail(ctx, "student@b.com")
	require.NoError(t, err)

	require.NoError(t, f.service.GrantRole(ctx, "admin@b.com", permissions.RoleAdmin))
	adminAccess, _ := f.login(t, "admin@b.com")

	target := strings.Replace(server.RouteUserBlock, "{id}", student.ID, 1)

	rec, _ := f.do(t, http.MethodPost, target, map[string]string{"action": "block"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = f.do(t, http.MethodPost, target, map[string]string{"action": "block"}, "Authorization", "Bearer "+studentAccess)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec, body := f.do(t, http.MethodPost, target, map[string]string{"action": "block"}, "Authorization", "Bearer "+adminAccess)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, float64(1), body["revoked"])

	rec, _ = f.do(t, http.MethodPost, server.RouteAuthRefresh, map[string]string{"refresh_token": studentRefresh})
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = f.do(t, http.MethodPost, server.RouteAuthValidate, map[string]string{"token": studentAccess})
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = f.do(t, http.MethodPost, target, map[string]string{"action": "explode"}, "Authorization", "Bearer "+adminAccess)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = f.do(t, http.MethodPost, strings.Replace(server.RouteUserBlock, "{id}", "missing", 1), nil, "Authorization", "Bearer "+adminAccess)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPermissions(t *testing.T) {
	f := setupTestFixture(t, nil)
	f.login(t, "a@b.com")

	rec, body := f.do(t, http.MethodGet, server.RouteAuthPermissions+"?email=a@b.com", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []any{permissions.RoleStudent}, body["roles"])

	rec, _ = f.do(t, http.MethodGet, server.RouteAuthPermissions+"?email=nobody@b.com", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = f.do(t, http.MethodGet, server.RouteAuthPermissions, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBadRequests(t *testing.T) {
	f := setupTestFixture(t, nil)

	req := httptest.NewRequest(http.MethodPost, server.RouteAuthLogin, strings.NewReader("{"))
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = f.do(t, http.MethodPost, server.RouteAuthLogin, map[string]string{"kind": "myspace"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = f.do(t, http.MethodGet, server.RouteAuthCheck, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth(t *testing.T) {
	f := setupTestFixture(t, nil)

	rec, body := f.do(t, http.MethodGet, server.RouteHealth, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "running", body["status"])
	require.Equal(t, "healthy", body["services"].(map[string]any)["store"])

	down := setupTestFixture(t, errors.New("connection refused"))
	rec, body = down.do(t, http.MethodGet, server.RouteHealth, nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, "degraded", body["status"])
	require.Equal(t, "unhealthy", body["services"].(map[string]any)["store"])
	require.NotContains(t, rec.Body.String(), "connection refused")
}

func TestMetricsAndCors(t *testing.T) {
	f := setupTestFixture(t, nil)
	f.login(t, "a@b.com")

	rec, _ := f.do(t, http.MethodGet, server.RouteMetrics, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "login_broker_logins_started_total")

	rec, _ = f.do(t, http.MethodOptions, server.RouteAuthRefresh, nil, "Origin", "https://app.example")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))

	rec, _ = f.do(t, http.MethodOptions, server.RouteAuthRefresh, nil, "Origin", "https://evil.example")
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	rec, _ = f.do(t, http.MethodGet, server.RouteWellKnownJWKS, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
