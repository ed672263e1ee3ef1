package www

import (
	"context"
	"net/http"
	"strings"

	"teletable/auth"
)

type contextKey string

const identityKey contextKey = "identity"

// identityFrom returns the authenticated caller, set by requireAuth.
func identityFrom(r *http.Request) *auth.Identity {
	id, _ := r.Context().Value(identityKey).(*auth.Identity)
	return id
}

// requireAuth validates the Authorization bearer token and stores the
// resulting identity on the request context.
func (h *Handlers) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			jsonError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		id, err := auth.VerifyToken(token, h.jwtSecret)
		if err != nil {
			jsonError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		ctx := context.WithValue(r.Context(), identityKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireAdmin gates admin-only routes. Must sit inside requireAuth.
func (h *Handlers) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := identityFrom(r)
		if id == nil || !id.Role.IsAdmin() {
			jsonError(w, http.StatusForbidden, "admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireRobotKey validates the X-Api-Key header on robot ingest routes.
func (h *Handlers) requireRobotKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Api-Key") != h.robotAPIKey {
			writeJSON(w, http.StatusUnauthorized, controlResult{Status: "error", Message: "Invalid API Key"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
