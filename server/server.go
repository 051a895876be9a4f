// Package server exposes the login broker over a JSON HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-login-broker/auth"
	"github.com/jrsteele09/go-login-broker/internal/config"
	"github.com/jrsteele09/go-login-broker/metrics"
	"github.com/jrsteele09/go-login-broker/token/keys"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

type Server struct {
	env     string // Environment (e.g., "DEV", "PROD")
	mux     *http.ServeMux
	routes  []string
	cors    config.CorsConfig
	auth    *auth.Service
	metrics *metrics.Metrics

	jwks   func() (*keys.JWKS, error)
	health map[string]HealthCheck
}

// ServerOption defines a function type to modify the Server instance.
type ServerOption func(*Server)

func WithEnv(env string) ServerOption {
	return func(s *Server) {
		s.env = env
	}
}

func WithMetrics(m *metrics.Metrics) ServerOption {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithJWKS publishes the verification keys. Only asymmetric signers have any.
func WithJWKS(jwks func() (*keys.JWKS, error)) ServerOption {
	return func(s *Server) {
		s.jwks = jwks
	}
}

// WithHealthCheck adds a named dependency to the health report.
func WithHealthCheck(name string, check HealthCheck) ServerOption {
	return func(s *Server) {
		s.health[name] = check
	}
}

func New(cors config.CorsConfig, authService *auth.Service, options ...ServerOption) (*Server, error) {
	if cors == nil {
		return nil, errors.New("[Server New] cors config is required")
	}
	if authService == nil {
		return nil, errors.New("[Server New] auth service is required")
	}

	s := &Server{
		mux:    http.NewServeMux(),
		cors:   cors,
		auth:   authService,
		health: make(map[string]HealthCheck),
	}
	for _, opt := range options {
		opt(s)
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// CORS preflights are answered for every route
	if r.Method == http.MethodOptions && r.Header.Get("Origin") != "" {
		s.CorsMiddleware(s.mux.ServeHTTP)(w, r)
		return
	}
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			log.Debug().Msg(routeLine(parts[0], parts[1]))
		} else {
			log.Debug().Msg(routeLine("", parts[0]))
		}
	}
}

func routeLine(method, path string) string {
	paddedMethod := fmt.Sprintf(" %-7s", method)
	color, ok := methodColors[method]
	if !ok {
		color = Gray
	}
	return fmt.Sprintf("[%s] %s", color+paddedMethod+ResetColor, path)
}
