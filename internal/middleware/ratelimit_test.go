package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

func newTestRateLimiter(t *testing.T, cfg RateLimiterConfig) *RateLimiter {
	t.Helper()
	if cfg.CleanupInterval == 0 {
		cfg.CleanupInterval = time.Minute
	}
	rl := NewRateLimiter(cfg)
	t.Cleanup(rl.Stop)
	return rl
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func requestFrom(method, path, remoteAddr string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = remoteAddr
	return req
}

func TestRateLimitMiddleware_AllowsRequestsWithinLimit(t *testing.T) {
	rl := newTestRateLimiter(t, RateLimiterConfig{GeneralRate: 2, GeneralBurst: 5, LoginRate: 1, LoginBurst: 1})
	handler := rl.GeneralMiddleware()(okHandler())

	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, requestFrom(http.MethodGet, "/", "10.0.0.1:1234"))
		if w.Code != http.StatusOK {
			t.Errorf("request %d: status = %d, want %d", i, w.Code, http.StatusOK)
		}
	}
}

func TestRateLimitMiddleware_Returns429WithRetryAfter(t *testing.T) {
	rl := newTestRateLimiter(t, RateLimiterConfig{GeneralRate: 0.5, GeneralBurst: 1, LoginRate: 1, LoginBurst: 1})
	handler := rl.GeneralMiddleware()(okHandler())

	handler.ServeHTTP(httptest.NewRecorder(), requestFrom(http.MethodGet, "/", "10.0.0.1:1"))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestFrom(http.MethodGet, "/", "10.0.0.1:2"))

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	if got := w.Header().Get("Retry-After"); got != strconv.Itoa(2) {
		t.Errorf("Retry-After = %q, want 2", got)
	}
	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.Code != "RATE_LIMITED" || body.Message == "" {
		t.Errorf("body = %+v", body)
	}
}

func TestRateLimitMiddleware_IsolatesClients(t *testing.T) {
	rl := newTestRateLimiter(t, RateLimiterConfig{GeneralRate: 0.1, GeneralBurst: 1, LoginRate: 1, LoginBurst: 1})
	handler := rl.GeneralMiddleware()(okHandler())

	handler.ServeHTTP(httptest.NewRecorder(), requestFrom(http.MethodGet, "/", "10.0.0.1:1"))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestFrom(http.MethodGet, "/", "10.0.0.2:1"))
	if w.Code != http.StatusOK {
		t.Errorf("other client status = %d, want 200", w.Code)
	}
	if rl.GeneralLimiterCount() != 2 {
		t.Errorf("GeneralLimiterCount = %d, want 2", rl.GeneralLimiterCount())
	}
}

func TestLoginRateLimit_IndependentFromGeneralLimit(t *testing.T) {
	rl := newTestRateLimiter(t, RateLimiterConfig{GeneralRate: 100, GeneralBurst: 100, LoginRate: 0.1, LoginBurst: 2})
	handler := rl.GeneralMiddleware()(rl.LoginMiddleware()(okHandler()))

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, requestFrom(http.MethodPost, "/auth/login", "10.0.0.9:1"))
		if w.Code != http.StatusOK {
			t.Fatalf("attempt %d: status = %d, want 200", i, w.Code)
		}
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestFrom(http.MethodPost, "/auth/login", "10.0.0.9:1"))
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("third login attempt status = %d, want 429", w.Code)
	}

	w = httptest.NewRecorder()
	rl.GeneralMiddleware()(okHandler()).ServeHTTP(w, requestFrom(http.MethodGet, "/", "10.0.0.9:1"))
	if w.Code != http.StatusOK {
		t.Errorf("general request status = %d, want 200", w.Code)
	}
	if rl.LoginLimiterCount() != 1 {
		t.Errorf("LoginLimiterCount = %d, want 1", rl.LoginLimiterCount())
	}
}

func TestRateLimiter_CleanupRemovesExpiredEntries(t *testing.T) {
	rl := newTestRateLimiter(t, RateLimiterConfig{GeneralRate: 1, GeneralBurst: 1, LoginRate: 1, LoginBurst: 1, CleanupInterval: time.Hour})

	rl.general.get("10.0.0.1", time.Now().Add(-3*time.Hour))
	rl.general.get("10.0.0.2", time.Now())
	rl.login.get("10.0.0.1", time.Now().Add(-3*time.Hour))

	rl.cleanup()

	if rl.GeneralLimiterCount() != 1 {
		t.Errorf("GeneralLimiterCount = %d, want 1", rl.GeneralLimiterCount())
	}
	if rl.LoginLimiterCount() != 0 {
		t.Errorf("LoginLimiterCount = %d, want 0", rl.LoginLimiterCount())
	}
}

func TestClientKey_StripsPort(t *testing.T) {
	if got := clientKey(requestFrom(http.MethodGet, "/", "192.0.2.7:5555")); got != "192.0.2.7" {
		t.Errorf("clientKey = %q, want 192.0.2.7", got)
	}
	if got := clientKey(requestFrom(http.MethodGet, "/", "192.0.2.7")); got != "192.0.2.7" {
		t.Errorf("clientKey without port = %q, want 192.0.2.7", got)
	}
}

func TestDefaultRateLimiterConfig(t *testing.T) {
	cfg := DefaultRateLimiterConfig()
	if cfg.LoginBurst != 10 || cfg.GeneralBurst != 120 {
		t.Errorf("bursts = %d/%d, want 10/120", cfg.LoginBurst, cfg.GeneralBurst)
	}
	if cfg.LoginRate >= cfg.GeneralRate {
		t.Error("login rate should be stricter than the general rate")
	}
}
