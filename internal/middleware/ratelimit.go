package middleware

import (
	"net/http"
	"time"

	"botforge-backend/internal/cache"
)

const (
	ipLimit  = 60
	ipWindow = time.Minute
)

// RateLimitByIP is a coarse per-IP pre-filter in front of the auth routes.
// The fine-grained per-(ip, email) limiter lives behind it in the login
// handler. Redis errors fail open.
func RateLimitByIP(cacheClient cache.Client) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := "rl:ip:" + ClientIP(r)
			count, err := cacheClient.IncrWithTTL(key, ipWindow)
			if err == nil && count > ipLimit {
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
