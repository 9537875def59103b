package config

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

func setRequiredEnvVars(t *testing.T) {
	t.Helper()
	t.Setenv("GATEWAY_URL", "http://gateway:3000")
	t.Setenv("BASE_URL", "http://localhost:8080")
}

func TestLoad_AllRequiredVarsSet_ReturnsConfig(t *testing.T) {
	setRequiredEnvVars(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.GatewayURL != "http://gateway:3000" {
		t.Errorf("GatewayURL = %q, want %q", cfg.GatewayURL, "http://gateway:3000")
	}
	if cfg.BaseURL != "http://localhost:8080" {
		t.Errorf("BaseURL = %q, want %q", cfg.BaseURL, "http://localhost:8080")
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	setRequiredEnvVars(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.GatewayMode != "rest" {
		t.Errorf("GatewayMode = %q, want rest", cfg.GatewayMode)
	}
	if cfg.GatewayTimeout != 10*time.Second {
		t.Errorf("GatewayTimeout = %v, want 10s", cfg.GatewayTimeout)
	}
	if cfg.CookieMaxAge != 7*24*time.Hour {
		t.Errorf("CookieMaxAge = %v, want 168h", cfg.CookieMaxAge)
	}
	wantProtected := []string{"/tours/new", "/tours/edit", "/events/admin", "/reservations"}
	if !reflect.DeepEqual(cfg.ProtectedRoutes, wantProtected) {
		t.Errorf("ProtectedRoutes = %v, want %v", cfg.ProtectedRoutes, wantProtected)
	}
	if !reflect.DeepEqual(cfg.AuthRoutes, []string{"/login", "/register"}) {
		t.Errorf("AuthRoutes = %v", cfg.AuthRoutes)
	}
	if cfg.LoginRoute != "/login" || cfg.LandingRoute != "/" {
		t.Errorf("routes = %q/%q, want /login and /", cfg.LoginRoute, cfg.LandingRoute)
	}
	if cfg.RateLimitGeneral != 120 || cfg.RateLimitLogin != 10 {
		t.Errorf("rate limits = %d/%d, want 120/10", cfg.RateLimitGeneral, cfg.RateLimitLogin)
	}
	if cfg.AuditRetentionDays != 90 {
		t.Errorf("AuditRetentionDays = %d, want 90", cfg.AuditRetentionDays)
	}
	if cfg.ServerPort != "8080" {
		t.Errorf("ServerPort = %q, want 8080", cfg.ServerPort)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
	if cfg.CookieSecure {
		t.Error("CookieSecure should be false for an http BASE_URL")
	}
	if cfg.AuditEnabled() {
		t.Error("audit should be disabled without DATABASE_URL")
	}
	if cfg.CORSAllowedOrigin != "" {
		t.Errorf("CORSAllowedOrigin = %q, want empty", cfg.CORSAllowedOrigin)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("BASE_URL", "https://tourbook.example")
	t.Setenv("GATEWAY_MODE", "GraphQL")
	t.Setenv("TOKEN_SHARED_SECRET", "clave")
	t.Setenv("PROTECTED_ROUTES", "/admin, /mis-reservas ,")
	t.Setenv("COOKIE_MAX_AGE", "24h")
	t.Setenv("DATABASE_URL", "postgres://localhost/tourbook")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.GatewayMode != "graphql" {
		t.Errorf("GatewayMode = %q, want graphql", cfg.GatewayMode)
	}
	if cfg.TokenSharedSecret != "clave" {
		t.Errorf("TokenSharedSecret = %q", cfg.TokenSharedSecret)
	}
	if !reflect.DeepEqual(cfg.ProtectedRoutes, []string{"/admin", "/mis-reservas"}) {
		t.Errorf("ProtectedRoutes = %v", cfg.ProtectedRoutes)
	}
	if cfg.CookieMaxAge != 24*time.Hour {
		t.Errorf("CookieMaxAge = %v, want 24h", cfg.CookieMaxAge)
	}
	if !cfg.CookieSecure {
		t.Error("CookieSecure should be true for an https BASE_URL")
	}
	if !cfg.AuditEnabled() {
		t.Error("audit should be enabled with DATABASE_URL")
	}
}

func TestLoad_MissingRequiredVars_ReturnsError(t *testing.T) {
	t.Setenv("GATEWAY_URL", "")
	t.Setenv("BASE_URL", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for missing required variables")
	}
	for _, name := range []string{"GATEWAY_URL", "BASE_URL"} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("error %q should mention %s", err, name)
		}
	}
}

func TestLoad_InvalidValues_ReturnError(t *testing.T) {
	tests := map[string]string{
		"GATEWAY_MODE":   "soap",
		"GATEWAY_URL":    "gateway:3000",
		"COOKIE_MAX_AGE": "-1h",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			setRequiredEnvVars(t)
			t.Setenv(key, value)
			if _, err := Load(); err == nil {
				t.Errorf("expected error for %s=%q", key, value)
			}
		})
	}
}
