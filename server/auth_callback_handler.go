package server

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-login-broker/auth"
	errs "github.com/jrsteele09/go-login-broker/internal/errors"
)

// ProviderCallbackHandler is the OAuth redirect target. The state parameter
// carries the login handle; the outcome is left on the session for the
// client's poll.
func (s *Server) ProviderCallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		provider, ok := s.auth.Providers().Get(r.PathValue("provider"))
		if !ok {
			writeJSONError(w, "not_found", "unknown provider", http.StatusNotFound)
			return
		}

		handle := r.FormValue("state")
		code := r.FormValue("code")
		errorParam := r.FormValue("error")

		if handle == "" {
			writeJSONError(w, "invalid_request", "missing state parameter", http.StatusBadRequest)
			return
		}

		// Check for authorization errors
		if errorParam != "" {
			if err := s.auth.Deny(handle, errorParam); err != nil {
				writeError(w, r, err, http.StatusNotFound)
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"status": "denied", "reason": errorParam})
			return
		}

		if code == "" {
			writeJSONError(w, "invalid_request", "missing code parameter", http.StatusBadRequest)
			return
		}

		id, err := provider.Exchange(r.Context(), code)
		if err != nil {
			log.Warn().Err(err).Str("provider", provider.Name()).Msg("identity exchange failed")
			_ = s.auth.Deny(handle, auth.ReasonProviderError)
			writeError(w, r, errs.Classify(errs.ErrTransient, err), http.StatusNotFound)
			return
		}

		err = s.auth.CompleteViaIdentity(r.Context(), handle, id)
		if errs.Is(err, errs.ErrValidation) {
			_ = s.auth.Deny(handle, auth.ReasonInvalidIdentity)
		}
		if err != nil {
			writeError(w, r, err, http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "granted"})
	}
}
