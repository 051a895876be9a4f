package server

import (
	"net/http"

	"github.com/jrsteele09/go-login-broker/auth"
)

type refreshTokenRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (s *Server) RefreshHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req refreshTokenRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		pair, err := s.auth.Refresh(r.Context(), req.RefreshToken)
		if err != nil {
			writeError(w, r, err, http.StatusUnauthorized)
			return
		}
		writeJSON(w, http.StatusOK, pair)
	}
}

// LogoutHandler revokes one refresh token. It succeeds for unknown tokens.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req refreshTokenRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if err := s.auth.Logout(r.Context(), req.RefreshToken); err != nil {
			writeError(w, r, err, http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type validateRequest struct {
	Token string `json:"token"`
}

type validateResponse struct {
	Valid bool `json:"valid"`
	auth.AccessInfo
}

func (s *Server) ValidateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req validateRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		info, err := s.auth.ValidateAccessToken(r.Context(), req.Token)
		if err != nil {
			writeError(w, r, err, http.StatusUnauthorized)
			return
		}
		writeJSON(w, http.StatusOK, validateResponse{Valid: true, AccessInfo: info})
	}
}

func (s *Server) PermissionsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		set, err := s.auth.LookupPermissions(r.Context(), r.URL.Query().Get("email"))
		if err != nil {
			writeError(w, r, err, http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, set)
	}
}
