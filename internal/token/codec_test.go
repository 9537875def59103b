package token

import (
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/tourbook/internal/model"
)

const testSecret = "clave-compartida"

// signTestToken はテスト用に標準形式のJWTを生成する。
func signTestToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := tok.SignedString([]byte("test-signing-key"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return s
}

func validClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"name":     "Ana",
		"username": "ana",
		"email":    "a@b.com",
		"roles":    []string{"USER"},
		"exp":      time.Now().Add(time.Hour).Unix(),
	}
}

func assertInvalidToken(t *testing.T, err error) {
	t.Helper()
	var invalid *model.InvalidTokenError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected *model.InvalidTokenError, got %T (%v)", err, err)
	}
}

func TestIsStandardForm(t *testing.T) {
	cases := map[string]bool{
		"aaa.bbb.ccc":          true,
		"a-_+/=.b.c":           true,
		"a.b":                  false,
		"a.b.c.d":              false,
		"a..c":                 false,
		".b.c":                 false,
		"":                     false,
		"a.b.c d":              false,
		"a.b.c@":               false,
		"eyJhbGciOi.eyJzdWIi.": false,
	}
	for in, want := range cases {
		if got := IsStandardForm(in); got != want {
			t.Errorf("IsStandardForm(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNormalize_StandardToken_ReturnedUnchanged(t *testing.T) {
	tok := signTestToken(t, validClaims())
	c := NewCodec(testSecret)

	got, err := c.Normalize(tok)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got != tok {
		t.Errorf("Normalize changed a standard token: got %q, want %q", got, tok)
	}
}

func TestNormalize_IsIdempotent(t *testing.T) {
	tok := signTestToken(t, validClaims())
	c := NewCodec(testSecret)

	once, err := c.Normalize(c.Wrap(tok))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	twice, err := c.Normalize(once)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if once != twice {
		t.Errorf("Normalize is not idempotent: %q != %q", once, twice)
	}
}

func TestNormalize_Base64WrappedToken_Unwraps(t *testing.T) {
	tok := signTestToken(t, validClaims())
	c := NewCodec(testSecret)

	for name, wrapped := range map[string]string{
		"raw url":    base64.RawURLEncoding.EncodeToString([]byte(tok)),
		"padded url": base64.URLEncoding.EncodeToString([]byte(tok)),
		"std":        base64.StdEncoding.EncodeToString([]byte(tok)),
	} {
		got, err := c.Normalize(wrapped)
		if err != nil {
			t.Fatalf("%s: expected no error, got %v", name, err)
		}
		if got != tok {
			t.Errorf("%s: got %q, want %q", name, got, tok)
		}
	}
}

func TestNormalize_XORWrappedToken_RoundTrips(t *testing.T) {
	tok := signTestToken(t, validClaims())
	c := NewCodec(testSecret)

	wrapped := c.Wrap(tok)
	if wrapped == tok {
		t.Fatal("Wrap returned the input unchanged")
	}

	got, err := c.Normalize(wrapped)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got != tok {
		t.Errorf("got %q, want %q", got, tok)
	}
}

func TestNormalize_XORWrappedToken_WrongSecretFails(t *testing.T) {
	tok := signTestToken(t, validClaims())
	wrapped := NewCodec(testSecret).Wrap(tok)

	_, err := NewCodec("otra-clave").Normalize(wrapped)
	assertInvalidToken(t, err)
}

func TestNormalize_XORWrappedToken_NoSecretFails(t *testing.T) {
	tok := signTestToken(t, validClaims())
	wrapped := NewCodec(testSecret).Wrap(tok)

	_, err := NewCodec("").Normalize(wrapped)
	assertInvalidToken(t, err)
}

func TestNormalize_MalformedInputs_Fail(t *testing.T) {
	c := NewCodec(testSecret)
	for _, in := range []string{"", "not-base64-@@@", "a.b", "a", "a.b.c.d"} {
		got, err := c.Normalize(in)
		if got != "" {
			t.Errorf("Normalize(%q) returned %q, want empty string", in, got)
		}
		assertInvalidToken(t, err)
	}
}

func TestNormalize_DoesNotFallBackToOriginal(t *testing.T) {
	c := NewCodec(testSecret)
	// base64として有効だが、デコード結果がトークンにならない入力
	in := base64.RawURLEncoding.EncodeToString([]byte("hola mundo"))

	got, err := c.Normalize(in)
	assertInvalidToken(t, err)
	if got == in {
		t.Error("Normalize must not return the undecoded input on failure")
	}
}
