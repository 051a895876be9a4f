package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-login-broker/auth"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

// ContextKeyAccess stores the auth.AccessInfo of the authenticated caller
const ContextKeyAccess ContextKey = "access"

func bearerToken(r *http.Request) (string, bool) {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// RequirePermission is middleware that validates a Bearer access token and
// requires it to carry permission.
func (s *Server) RequirePermission(permission string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				w.Header().Set("WWW-Authenticate", `Bearer realm="login-broker"`)
				writeJSONError(w, "unauthorized", "missing or malformed Authorization header", http.StatusUnauthorized)
				return
			}

			info, err := s.auth.Authorize(r.Context(), token, permission)
			if err != nil {
				writeError(w, r, err, http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyAccess, info)
			next(w, r.WithContext(ctx))
		}
	}
}

// accessFromContext returns the caller injected by RequirePermission.
func accessFromContext(ctx context.Context) (auth.AccessInfo, bool) {
	info, ok := ctx.Value(ContextKeyAccess).(auth.AccessInfo)
	return info, ok
}
