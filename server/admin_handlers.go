package server

import (
	"net/http"

	"github.com/rs/zerolog/log"
)

type blockRequest struct {
	Action string `json:"action"` // "block" (default) or "unblock"
}

// BlockUserHandler blocks or unblocks a user. Blocking revokes every refresh
// token the user holds.
func (s *Server) BlockUserHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := blockRequest{Action: "block"}
		if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
			return
		}

		var blocked bool
		switch req.Action {
		case "block", "":
			blocked = true
		case "unblock":
		default:
			writeJSONError(w, "invalid_request", "action must be block or unblock", http.StatusBadRequest)
			return
		}

		userID := r.PathValue("id")
		revoked, err := s.auth.SetBlocked(r.Context(), userID, blocked)
		if err != nil {
			writeError(w, r, err, http.StatusNotFound)
			return
		}

		if caller, ok := accessFromContext(r.Context()); ok {
			log.Info().Str("by", caller.Subject).Str("user_id", userID).Bool("blocked", blocked).Msg("block flag changed")
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"blocked": blocked,
			"revoked": revoked,
		})
	}
}
