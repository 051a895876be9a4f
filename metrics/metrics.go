// Package metrics holds the Prometheus instruments of the login broker.
// Every method is safe to call on a nil *Metrics, which records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "login_broker"

// Metrics holds all Prometheus metrics
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Login flow metrics
	LoginsStartedTotal   *prometheus.CounterVec
	LoginsCompletedTotal *prometheus.CounterVec
	CodesRedeemedTotal   *prometheus.CounterVec

	// Token metrics
	TokensIssuedTotal  *prometheus.CounterVec
	RefreshesTotal     *prometheus.CounterVec
	TokensRevokedTotal *prometheus.CounterVec

	// Sweeper metrics
	SweepRemovedTotal *prometheus.CounterVec
	SweepErrorsTotal  *prometheus.CounterVec
	SweepDuration     *prometheus.HistogramVec
}

// New creates and registers all metrics on a fresh registry, together with
// the Go runtime and process collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		LoginsStartedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "logins_started_total",
				Help:      "Login sessions created, by auth kind",
			},
			[]string{"kind"},
		),
		LoginsCompletedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "logins_completed_total",
				Help:      "Login sessions moved to a terminal status",
			},
			[]string{"kind", "status"},
		),
		CodesRedeemedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "short_codes_redeemed_total",
				Help:      "Short code redemption attempts by result",
			},
			[]string{"result"},
		),
		TokensIssuedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "token_pairs_issued_total",
				Help:      "Access/refresh pairs minted, by flow",
			},
			[]string{"flow"},
		),
		RefreshesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "refreshes_total",
				Help:      "Refresh attempts by result",
			},
			[]string{"result"},
		),
		TokensRevokedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "refresh_tokens_revoked_total",
				Help:      "Refresh tokens revoked, by reason",
			},
			[]string{"reason"},
		),
		SweepRemovedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sweep_removed_total",
				Help:      "Expired entries removed by the sweeper",
			},
			[]string{"target"},
		),
		SweepErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sweep_errors_total",
				Help:      "Failed sweeps, by target",
			},
			[]string{"target"},
		),
		SweepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "sweep_duration_seconds",
				Help:      "Sweep duration in seconds",
				Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5},
			},
			[]string{"target"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.LoginsStartedTotal,
		m.LoginsCompletedTotal,
		m.CodesRedeemedTotal,
		m.TokensIssuedTotal,
		m.RefreshesTotal,
		m.TokensRevokedTotal,
		m.SweepRemovedTotal,
		m.SweepErrorsTotal,
		m.SweepDuration,
	)
	return m
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Gauge registers a gauge sampled from value at scrape time.
func (m *Metrics) Gauge(name, help string, value func() float64) {
	if m == nil {
		return
	}
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help},
		value,
	))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (m *Metrics) LoginStarted(kind string) {
	if m == nil {
		return
	}
	m.LoginsStartedTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) LoginCompleted(kind, status string) {
	if m == nil {
		return
	}
	m.LoginsCompletedTotal.WithLabelValues(kind, status).Inc()
}

func (m *Metrics) CodeRedeemed(result string) {
	if m == nil {
		return
	}
	m.CodesRedeemedTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) PairIssued(flow string) {
	if m == nil {
		return
	}
	m.TokensIssuedTotal.WithLabelValues(flow).Inc()
}

func (m *Metrics) Refreshed(result string) {
	if m == nil {
		return
	}
	m.RefreshesTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) Revoked(reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.TokensRevokedTotal.WithLabelValues(reason).Add(float64(n))
}

func (m *Metrics) Swept(target string, removed int, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.SweepDuration.WithLabelValues(target).Observe(elapsed.Seconds())
	if err != nil {
		m.SweepErrorsTotal.WithLabelValues(target).Inc()
		return
	}
	m.SweepRemovedTotal.WithLabelValues(target).Add(float64(removed))
}
