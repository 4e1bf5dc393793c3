package middleware

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP resolves the originating client address. Trusting X-Forwarded-For
// assumes a proxy in front that sets it; that trust boundary is a deployment
// concern.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
