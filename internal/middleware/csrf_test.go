package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type fakeCache struct {
	tokens   map[string]bool
	incrErr  error
	validErr error
	counts   map[string]int64
}

func newFakeCache() *fakeCache {
	return &fakeCache{tokens: map[string]bool{}, counts: map[string]int64{}}
}

func (f *fakeCache) IncrWithTTL(key string, window time.Duration) (int64, error) {
	if f.incrErr != nil {
		return 0, f.incrErr
	}
	f.counts[key]++
	return f.counts[key], nil
}

func (f *fakeCache) SetCSRFToken(token string, ttl time.Duration) error {
	f.tokens[token] = true
	return nil
}

func (f *fakeCache) ValidateCSRFToken(token string) (bool, error) {
	if f.validErr != nil {
		return false, f.validErr
	}
	return f.tokens[token], nil
}

func (f *fakeCache) GetCachedResponse(key string) ([]byte, error) { return nil, nil }

func (f *fakeCache) SetCachedResponse(key string, body []byte, ttl time.Duration) error {
	return nil
}

func (f *fakeCache) Close() error { return nil }

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestCSRFAllowsSafeMethods(t *testing.T) {
	h := CSRF(newFakeCache())(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/orgs", nil)
	req.AddCookie(&http.Cookie{Name: authCookieName, Value: "x"})
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected GET to pass, got %d", resp.Code)
	}
}

func TestCSRFExemptsBearerClients(t *testing.T) {
	h := CSRF(newFakeCache())(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout-all", nil)
	req.Header.Set("Authorization", "Bearer some-token")
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected bearer request to pass, got %d", resp.Code)
	}
}

func TestCSRFAllowsAnonymousPost(t *testing.T) {
	h := CSRF(newFakeCache())(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected anonymous POST to pass, got %d", resp.Code)
	}
}

func TestCSRFRejectsCookieRequestWithoutToken(t *testing.T) {
	h := CSRF(newFakeCache())(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: authCookieName, Value: "session"})
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)

	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without CSRF token, got %d", resp.Code)
	}
}

func TestCSRFAcceptsValidToken(t *testing.T) {
	cache := newFakeCache()
	cache.SetCSRFToken("tok-1", time.Hour)
	h := CSRF(cache)(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: authCookieName, Value: "session"})
	req.Header.Set(csrfHeader, "tok-1")
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected valid token to pass, got %d", resp.Code)
	}
}

func TestCSRFFailsClosedOnCacheError(t *testing.T) {
	cache := newFakeCache()
	cache.validErr = errors.New("redis down")
	h := CSRF(cache)(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: authCookieName, Value: "session"})
	req.Header.Set(csrfHeader, "tok-1")
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)

	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected fail-closed on cache error, got %d", resp.Code)
	}
}

func TestRateLimitByIP(t *testing.T) {
	cache := newFakeCache()
	h := RateLimitByIP(cache)(okHandler())

	for i := 0; i < ipLimit; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		req.RemoteAddr = "9.9.9.9:1234"
		resp := httptest.NewRecorder()
		h.ServeHTTP(resp, req)
		if resp.Code != http.StatusOK {
			t.Fatalf("request %d: expected pass, got %d", i+1, resp.Code)
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	req.RemoteAddr = "9.9.9.9:1234"
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	if resp.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 past the limit, got %d", resp.Code)
	}
}

func TestRateLimitByIPFailsOpen(t *testing.T) {
	cache := newFakeCache()
	cache.incrErr = errors.New("redis down")
	h := RateLimitByIP(cache)(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected fail-open on redis error, got %d", resp.Code)
	}
}

func TestClientIP(t *testing.T) {
	cases := []struct {
		name   string
		setup  func(r *http.Request)
		expect string
	}{
		{
			name:   "x-forwarded-for first hop",
			setup:  func(r *http.Request) { r.Header.Set("X-Forwarded-For", "10.0.0.1, 172.16.0.1") },
			expect: "10.0.0.1",
		},
		{
			name:   "x-real-ip",
			setup:  func(r *http.Request) { r.Header.Set("X-Real-IP", "10.0.0.2") },
			expect: "10.0.0.2",
		},
		{
			name:   "remote addr",
			setup:  func(r *http.Request) { r.RemoteAddr = "10.0.0.3:5555" },
			expect: "10.0.0.3",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			tc.setup(req)
			if got := ClientIP(req); got != tc.expect {
				t.Fatalf("expected %s, got %s", tc.expect, got)
			}
		})
	}
}
