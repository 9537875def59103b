package session

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func findCookie(t *testing.T, rec *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("cookie %q not set", name)
	return nil
}

func TestRequestJar_SetToken_Attributes(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	rec := httptest.NewRecorder()
	jar := NewRequestJar(rec, req, CookieConfig{Secure: true})

	jar.SetToken("a.b.c")

	c := findCookie(t, rec, CookieName)
	if c.Value != "a.b.c" {
		t.Errorf("Value = %q, want a.b.c", c.Value)
	}
	if c.Path != "/" {
		t.Errorf("Path = %q, want /", c.Path)
	}
	if c.MaxAge != 7*24*60*60 {
		t.Errorf("MaxAge = %d, want 604800", c.MaxAge)
	}
	if c.HttpOnly {
		t.Error("token cookie must be readable by in-page scripts")
	}
	if !c.Secure {
		t.Error("Secure should follow config")
	}
	if c.SameSite != http.SameSiteLaxMode {
		t.Errorf("SameSite = %v, want Lax", c.SameSite)
	}
}

func TestRequestJar_Token_ReadsRequestThenOwnWrites(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: "old.token.value"})
	rec := httptest.NewRecorder()
	jar := NewRequestJar(rec, req, DefaultCookieConfig())

	if got, ok := jar.Token(); !ok || got != "old.token.value" {
		t.Fatalf("Token() = %q, %v", got, ok)
	}

	jar.SetToken("new.token.value")
	if got, _ := jar.Token(); got != "new.token.value" {
		t.Errorf("Token() after SetToken = %q", got)
	}

	jar.ClearToken()
	if _, ok := jar.Token(); ok {
		t.Error("Token() after ClearToken should report absent")
	}
}

func TestRequestJar_ClearToken_ExpiresCookie(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	rec := httptest.NewRecorder()
	jar := NewRequestJar(rec, req, DefaultCookieConfig())

	jar.ClearToken()

	c := findCookie(t, rec, CookieName)
	if c.MaxAge >= 0 {
		t.Errorf("MaxAge = %d, want negative", c.MaxAge)
	}
	if c.Value != "" {
		t.Errorf("Value = %q, want empty", c.Value)
	}
}

func TestMemoryJar_ExpiresAfterMaxAge(t *testing.T) {
	clock := newFakeClock()
	jar := NewMemoryJar(time.Hour, clock.Now)

	jar.SetToken("a.b.c")
	if _, ok := jar.Token(); !ok {
		t.Fatal("expected token to be present")
	}

	clock.Advance(time.Hour + time.Second)
	if _, ok := jar.Token(); ok {
		t.Error("token should be gone after max age")
	}
}
