package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// AdminTokenHeader carries the shared admin token.
const AdminTokenHeader = "X-Admin-Token"

// AdminToken rejects requests that do not present token, either in
// X-Admin-Token or as "Authorization: Bearer <token>". An empty token
// disables the endpoint entirely.
func AdminToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				writeError(w, http.StatusForbidden, "admin endpoints disabled")
				return
			}
			presented := r.Header.Get(AdminTokenHeader)
			if auth := r.Header.Get("Authorization"); presented == "" && strings.HasPrefix(auth, "Bearer ") {
				presented = strings.TrimPrefix(auth, "Bearer ")
			}
			if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				writeError(w, http.StatusUnauthorized, "invalid admin token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(`{"error":"` + message + `"}`))
}
