package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	t.Setenv(configFileVar, "")
	c, err := New()
	require.NoError(t, err)

	require.Equal(t, ":5000", c.GetPort())
	require.Equal(t, time.Minute, c.GetAccessTokenExpiry())
	require.Equal(t, 7*24*time.Hour, c.GetRefreshTokenExpiry())
	require.Equal(t, 5*time.Minute, c.GetLoginSessionExpiry())
	require.Equal(t, time.Minute, c.GetShortCodeExpiry())
	require.Equal(t, time.Minute, c.GetSweepInterval())
	require.Equal(t, AlgorithmHS256, c.GetJWTAlgorithm())
	require.False(t, c.GetGitHub().Configured())
	require.Equal(t, "http://localhost:5000/auth/callback/github", c.GetGitHub().RedirectURL)
}

func TestNew_FileOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broker.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: 8081
access_token_ttl: 2m
github_client_id: file-id
github_client_secret: file-secret
cors_allowed_origins: "https://a.example, https://b.example"
`), 0o600))

	t.Setenv(configFileVar, path)
	t.Setenv("GITHUB_CLIENT_ID", "env-id")

	c, err := New()
	require.NoError(t, err)

	require.Equal(t, ":8081", c.GetPort())
	require.Equal(t, 2*time.Minute, c.GetAccessTokenExpiry())
	require.Equal(t, "env-id", c.GetGitHub().ClientID, "environment wins over the file")
	require.Equal(t, "file-secret", c.GetGitHub().ClientSecret)
	require.True(t, c.GetAllowedOrigins().IsAllowedOrigin("https://b.example"))
}

func TestNew_BadFile(t *testing.T) {
	t.Setenv(configFileVar, filepath.Join(t.TempDir(), "missing.yaml"))
	_, err := New()
	require.Error(t, err)
}

func TestSource_InvalidDurationFallsBack(t *testing.T) {
	t.Setenv(configFileVar, "")
	t.Setenv("SWEEP_INTERVAL", "soon")
	c, err := New()
	require.NoError(t, err)
	require.Equal(t, time.Minute, c.GetSweepInterval())
}
