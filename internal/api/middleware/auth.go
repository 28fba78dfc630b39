package middleware

import (
	"crypto/subtle"
	"net/http"
)

// AdminSecretHeader is the header carrying the shared admin credential.
const AdminSecretHeader = "X-Admin-Secret"

// AdminAuth guards admin endpoints with a shared secret. The comparison is
// constant time and happens before any store access; a mismatch never
// reveals whether the configured secret is set.
func AdminAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := r.Header.Get(AdminSecretHeader)
			if provided == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"success":false,"message":"Unauthorized"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
