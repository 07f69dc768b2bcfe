package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// AuthConfig carries the configured API credential. Either Password or
// PasswordHash (bcrypt) must be set; the hash wins when both are.
type AuthConfig struct {
	Password     string
	PasswordHash string
}

// APIAuth validates the API credential from the X-API-Key header, a Bearer
// token, or a ?key= query parameter (the last keeps download links usable
// from a browser).
func APIAuth(cfg AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.Password == "" && cfg.PasswordHash == "" {
				http.Error(w, "Server configuration error: API password not set", http.StatusInternalServerError)
				return
			}

			if candidate, ok := credential(r); ok && cfg.match(candidate) {
				next.ServeHTTP(w, r)
				return
			}
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
		})
	}
}

// credential extracts the first credential carrier present on the request.
func credential(r *http.Request) (string, bool) {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key, true
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return auth[len("bearer "):], true
	}
	if key := r.URL.Query().Get("key"); key != "" {
		return key, true
	}
	return "", false
}

func (c AuthConfig) match(candidate string) bool {
	if c.PasswordHash != "" {
		return bcrypt.CompareHashAndPassword([]byte(c.PasswordHash), []byte(candidate)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(c.Password), []byte(candidate)) == 1
}
