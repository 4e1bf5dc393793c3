package middleware

import (
	"bytes"
	"log"
	"net/http"
	"time"

	"botforge-backend/internal/cache"
)

// CacheResponse serves successful GET responses from redis for a short TTL.
// Only 200s with JSON bodies are cached; everything else passes through.
func CacheResponse(cacheClient cache.Client, ttl time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}

			key := r.URL.RequestURI()
			if body, err := cacheClient.GetCachedResponse(key); err == nil && body != nil {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("X-Cache", "HIT")
				w.Write(body)
				return
			}

			rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			if rec.status == http.StatusOK && rec.body.Len() > 0 {
				if err := cacheClient.SetCachedResponse(key, rec.body.Bytes(), ttl); err != nil {
					log.Printf("WARN Response cache store: %v", err)
				}
			}
		})
	}
}

type responseRecorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (r *responseRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	if r.status == http.StatusOK {
		r.body.Write(b)
	}
	return r.ResponseWriter.Write(b)
}
