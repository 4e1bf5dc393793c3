package middleware

import (
	"log"
	"net"
	"net/http"
	"os"
	"strings"
)

// AdminIPWhitelist restricts admin routes to the addresses in
// ADMIN_IP_WHITELIST (comma-separated IPs or CIDRs). An empty whitelist
// denies in production and allows in development.
func AdminIPWhitelist() func(http.Handler) http.Handler {
	var nets []*net.IPNet
	var ips []net.IP
	for _, entry := range strings.Split(os.Getenv("ADMIN_IP_WHITELIST"), ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if _, network, err := net.ParseCIDR(entry); err == nil {
			nets = append(nets, network)
			continue
		}
		if ip := net.ParseIP(entry); ip != nil {
			ips = append(ips, ip)
			continue
		}
		log.Printf("WARN Ignoring malformed ADMIN_IP_WHITELIST entry %q", entry)
	}

	allowEmpty := os.Getenv("APP_ENV") != "production"

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(nets) == 0 && len(ips) == 0 {
				if allowEmpty {
					next.ServeHTTP(w, r)
					return
				}
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}

			ip := net.ParseIP(ClientIP(r))
			if ip == nil {
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
			for _, allowed := range ips {
				if allowed.Equal(ip) {
					next.ServeHTTP(w, r)
					return
				}
			}
			for _, network := range nets {
				if network.Contains(ip) {
					next.ServeHTTP(w, r)
					return
				}
			}
			http.Error(w, "Forbidden", http.StatusForbidden)
		})
	}
}
