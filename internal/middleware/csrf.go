package middleware

import (
	"log"
	"net/http"
	"strings"

	"botforge-backend/internal/cache"
)

const (
	csrfHeader     = "x-csrf-token"
	authCookieName = "auth_token"
)

// CSRF verifies the x-csrf-token header on state-changing requests that
// authenticate via the auth cookie. Bearer-header clients are exempt: a
// browser cannot be tricked into attaching an Authorization header.
func CSRF(cacheClient cache.Client) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}

			if strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
				next.ServeHTTP(w, r)
				return
			}
			if _, err := r.Cookie(authCookieName); err != nil {
				// No session cookie, nothing for a cross-site request to ride.
				next.ServeHTTP(w, r)
				return
			}

			token := r.Header.Get(csrfHeader)
			if token == "" {
				http.Error(w, "Missing CSRF token", http.StatusForbidden)
				return
			}

			ok, err := cacheClient.ValidateCSRFToken(token)
			if err != nil {
				log.Printf("WARN CSRF validation error: %v", err)
				http.Error(w, "Invalid CSRF token", http.StatusForbidden)
				return
			}
			if !ok {
				http.Error(w, "Invalid CSRF token", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
