package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetrics_NilIsSafe(t *testing.T) {
	var m *Metrics
	m.LoginStarted("github")
	m.Swept("sessions", 3, time.Millisecond, nil)
	m.Gauge("x", "y", func() float64 { return 1 })
	require.Nil(t, m.Registry())
	require.NotNil(t, m.Handler())
}

func TestMetrics_Counters(t *testing.T) {
	m := New()
	m.LoginStarted("github")
	m.LoginStarted("github")
	m.Revoked("block", 3)
	m.Revoked("block", 0)
	m.Swept("short_codes", 2, time.Millisecond, nil)
	m.Swept("refresh_tokens", 0, time.Millisecond, errors.New("down"))

	require.Equal(t, 2.0, testutil.ToFloat64(m.LoginsStartedTotal.WithLabelValues("github")))
	require.Equal(t, 3.0, testutil.ToFloat64(m.TokensRevokedTotal.WithLabelValues("block")))
	require.Equal(t, 2.0, testutil.ToFloat64(m.SweepRemovedTotal.WithLabelValues("short_codes")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.SweepErrorsTotal.WithLabelValues("refresh_tokens")))
}

func TestMetrics_HandlerExposesGauges(t *testing.T) {
	m := New()
	m.Gauge("login_sessions_active", "Live login sessions", func() float64 { return 7 })
	m.ObserveHTTP("GET", "GET /health", 200, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "login_broker_login_sessions_active 7")
	require.Contains(t, string(body), `login_broker_http_requests_total{method="GET",route="GET /health",status="200"} 1`)
}
