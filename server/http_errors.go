package server

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	errs "github.com/jrsteele09/go-login-broker/internal/errors"
)

func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	if w.Header().Get("Cache-Control") == "" {
		w.Header().Set("Cache-Control", "no-store")
	}
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(body)
}

func writeJSONError(w http.ResponseWriter, errorCode, description string, statusCode int) {
	writeJSON(w, statusCode, map[string]string{
		"error":             errorCode,
		"error_description": description,
	})
}

// writeError maps err onto a status code. notFound is the status used for
// unknown or expired resources: 404 for handles and codes, 401 for tokens.
func writeError(w http.ResponseWriter, r *http.Request, err error, notFound int) {
	switch {
	case errs.Is(err, errs.ErrValidation):
		writeJSONError(w, "invalid_request", err.Error(), http.StatusBadRequest)
	case errs.Is(err, errs.ErrNotFoundOrExpired):
		code := "not_found"
		if notFound == http.StatusUnauthorized {
			code = "invalid_token"
		}
		writeJSONError(w, code, "not found or expired", notFound)
	case errs.Is(err, errs.ErrDenied):
		writeJSONError(w, "access_denied", err.Error(), http.StatusForbidden)
	case errs.Is(err, errs.ErrTransient):
		log.Warn().Err(err).Str("path", r.URL.Path).Msg("dependency unavailable")
		writeJSONError(w, "temporarily_unavailable", "try again later", http.StatusServiceUnavailable)
	default:
		log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeJSONError(w, "server_error", "internal error", http.StatusInternalServerError)
	}
}

// decodeJSON reads a JSON request body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<16)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSONError(w, "invalid_request", "malformed JSON body", http.StatusBadRequest)
		return false
	}
	return true
}
