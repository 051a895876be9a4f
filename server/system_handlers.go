package server

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-login-broker/auth"
)

const healthTimeout = 2 * time.Second

type healthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Services  map[string]string `json:"services"`
	Stats     *auth.Stats       `json:"stats,omitempty"`
}

// HealthHandler pings every registered dependency and reports live counters.
func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		resp := healthResponse{
			Status:    "running",
			Timestamp: time.Now().UTC(),
			Services:  make(map[string]string, len(s.health)),
		}
		status := http.StatusOK
		for name, check := range s.health {
			if err := check(ctx); err != nil {
				log.Warn().Err(err).Str("service", name).Msg("health check failed")
				resp.Services[name] = "unhealthy"
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Services[name] = "healthy"
		}

		if stats, err := s.auth.Stats(ctx); err == nil {
			resp.Stats = &stats
		} else {
			log.Warn().Err(err).Msg("health stats unavailable")
		}
		writeJSON(w, status, resp)
	}
}

func (s *Server) JWKSHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jwks, err := s.jwks()
		if err != nil {
			writeError(w, r, err, http.StatusNotFound)
			return
		}
		w.Header().Set("Cache-Control", "public, max-age=300")
		writeJSON(w, http.StatusOK, jwks)
	}
}
