package server

import (
	"net/http"

	"github.com/jrsteele09/go-login-broker/server/loginsession"
	"github.com/jrsteele09/go-login-broker/token"
)

type beginLoginRequest struct {
	Kind string `json:"kind"`
}

// BeginLoginHandler starts a provider or short-code login.
func (s *Server) BeginLoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req beginLoginRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		login, err := s.auth.Begin(r.Context(), req.Kind)
		if err != nil {
			writeError(w, r, err, http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusCreated, login)
	}
}

type pollResponse struct {
	Status loginsession.PollStatus `json:"status"`
	Reason string                  `json:"reason,omitempty"`
	*token.Pair
}

// PollLoginHandler reports a login's state. Granted tokens are delivered once.
func (s *Server) PollLoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := s.auth.Poll(r.URL.Query().Get("handle"))
		if err != nil {
			writeError(w, r, err, http.StatusNotFound)
			return
		}

		status := http.StatusOK
		switch res.Status {
		case loginsession.PollNotFound:
			status = http.StatusNotFound
		case loginsession.PollExpired:
			status = http.StatusGone
		case loginsession.PollDenied:
			status = http.StatusForbidden
		}
		writeJSON(w, status, pollResponse{Status: res.Status, Reason: res.Reason, Pair: res.Tokens})
	}
}

type issueCodeRequest struct {
	Handle string `json:"login_handle"`
}

// IssueShortCodeHandler draws a fresh code for a pending code login.
func (s *Server) IssueShortCodeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req issueCodeRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		code, err := s.auth.IssueShortCode(req.Handle)
		if err != nil {
			writeError(w, r, err, http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusCreated, code)
	}
}

type redeemCodeRequest struct {
	Code         string `json:"code"`
	RefreshToken string `json:"refresh_token"`
}

// RedeemShortCodeHandler lets a signed-in device approve a code login.
func (s *Server) RedeemShortCodeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req redeemCodeRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if err := s.auth.CompleteViaCode(r.Context(), req.Code, req.RefreshToken); err != nil {
			writeError(w, r, err, http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}
