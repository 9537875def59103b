package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hitoshi/tourbook/internal/session"
)

// newChainRouter は本番と同じ順序でミドルウェアを積んだchiルーターを返す。
func newChainRouter(t *testing.T, logs *bytes.Buffer) chi.Router {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(logs, nil))
	guard := newTestGuard(WithGuardLogger(logger))

	r := chi.NewRouter()
	r.Use(NewRecoveryMiddleware(logger))
	r.Use(NewSecurityHeadersMiddleware(true))
	r.Use(NewClientIDMiddleware(CookieOptions{}))
	r.Use(NewLoggingMiddleware(logger, nil))
	r.Use(guard.Middleware())
	r.Get("/reservations", func(w http.ResponseWriter, r *http.Request) {
		u, _ := UserFromContext(r.Context())
		w.Write([]byte(u.Username))
	})
	r.Get("/panic", func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})
	return r
}

func TestMiddlewareChain_ProtectedRoute_AuthenticatedRequest(t *testing.T) {
	var logs bytes.Buffer
	router := newChainRouter(t, &logs)

	req := httptest.NewRequest(http.MethodGet, "/reservations", nil)
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: signGuardToken(t, guardNow.Add(time.Hour))})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK || w.Body.String() != "ana" {
		t.Fatalf("status = %d body = %q, want 200 ana", w.Code, w.Body.String())
	}
	if w.Header().Get("Strict-Transport-Security") == "" {
		t.Error("expected HSTS header")
	}

	var entry map[string]any
	if err := json.Unmarshal(logs.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log: %v", err)
	}
	if entry["username"] != "ana" {
		t.Errorf("logged username = %v, want ana", entry["username"])
	}
	if _, err := uuid.Parse(entry["client_id"].(string)); err != nil {
		t.Errorf("client_id = %v, want a uuid", entry["client_id"])
	}
}

func TestMiddlewareChain_ProtectedRoute_Anonymous_Redirects(t *testing.T) {
	var logs bytes.Buffer
	router := newChainRouter(t, &logs)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/reservations", nil))

	assertRedirect(t, w, "/login")
}

func TestMiddlewareChain_Panic_Returns500JSON(t *testing.T) {
	var logs bytes.Buffer
	router := newChainRouter(t, &logs)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("expected JSON body: %v", err)
	}
	if body.Code != "INTERNAL_ERROR" {
		t.Errorf("code = %q, want INTERNAL_ERROR", body.Code)
	}
}

func TestClientIDMiddleware_KeepsValidCookie(t *testing.T) {
	existing := uuid.NewString()
	var seen string
	handler := NewClientIDMiddleware(CookieOptions{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = ClientIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: ClientIDCookieName, Value: existing})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if seen != existing {
		t.Errorf("client id = %q, want %q", seen, existing)
	}
	if len(w.Result().Cookies()) != 0 {
		t.Error("valid client_id cookie should not be re-issued")
	}
}

func TestClientIDMiddleware_ReplacesInvalidCookie(t *testing.T) {
	var seen string
	handler := NewClientIDMiddleware(CookieOptions{Secure: true})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = ClientIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: ClientIDCookieName, Value: "not-a-uuid"})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	cookies := w.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Value != seen {
		t.Fatalf("cookies = %v, seen = %q", cookies, seen)
	}
	if !cookies[0].HttpOnly || !cookies[0].Secure {
		t.Error("client_id cookie should be HttpOnly and Secure when configured")
	}
}
