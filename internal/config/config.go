// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Gateway
	GatewayURL         string        `env:"GATEWAY_URL,required,notEmpty"`
	GatewayMode        string        `env:"GATEWAY_MODE" envDefault:"rest"`
	GatewayTimeout     time.Duration `env:"GATEWAY_TIMEOUT" envDefault:"10s"`
	GatewayLoginPath   string        `env:"GATEWAY_LOGIN_PATH" envDefault:"/auth/login"`
	GatewayGraphQLPath string        `env:"GATEWAY_GRAPHQL_PATH" envDefault:"/graphql"`

	// Token
	TokenSharedSecret string `env:"TOKEN_SHARED_SECRET"`
	TokenVerifyKey    string `env:"TOKEN_VERIFY_KEY"`

	// Cookie
	CookieMaxAge time.Duration `env:"COOKIE_MAX_AGE" envDefault:"168h"`
	CookieDomain string        `env:"COOKIE_DOMAIN"`
	CookieSecure bool          `env:"-"`

	// Routes
	ProtectedRoutes []string `env:"PROTECTED_ROUTES" envSeparator:"," envDefault:"/tours/new,/tours/edit,/events/admin,/reservations"`
	AuthRoutes      []string `env:"AUTH_ROUTES" envSeparator:"," envDefault:"/login,/register"`
	LoginRoute      string   `env:"LOGIN_ROUTE" envDefault:"/login"`
	LandingRoute    string   `env:"LANDING_ROUTE" envDefault:"/"`

	// Rate Limit（req/min/IP）
	RateLimitGeneral int `env:"RATE_LIMIT_GENERAL" envDefault:"120"`
	RateLimitLogin   int `env:"RATE_LIMIT_LOGIN" envDefault:"10"`

	// Audit
	DatabaseURL        string `env:"DATABASE_URL"`
	AuditRetentionDays int    `env:"AUDIT_RETENTION_DAYS" envDefault:"90"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Server
	ServerPort string `env:"SERVER_PORT" envDefault:"8080"`
	BaseURL    string `env:"BASE_URL,required,notEmpty"`
	StaticDir  string `env:"STATIC_DIR" envDefault:"./web"`

	// CORS（空の場合は同一オリジンのみ）
	CORSAllowedOrigin string `env:"CORS_ALLOWED_ORIGIN"`
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに.envがあれば先に読み込む（既存の環境変数は上書きしない）。
// 必須環境変数が未設定の場合や値が不正な場合はエラーを返す。
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return nil, fmt.Errorf("load .env file: %w", err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.sanitize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// AuditEnabled は監査ログの保存先が設定されているかを返す。
func (c *Config) AuditEnabled() bool {
	return c.DatabaseURL != ""
}

// sanitize は値を検証し、派生値を設定する。
func (c *Config) sanitize() error {
	u, err := url.Parse(c.GatewayURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("GATEWAY_URL must be an absolute URL: %q", c.GatewayURL)
	}

	c.GatewayMode = strings.ToLower(strings.TrimSpace(c.GatewayMode))
	switch c.GatewayMode {
	case "rest", "graphql":
	default:
		return fmt.Errorf("GATEWAY_MODE must be rest or graphql: %q", c.GatewayMode)
	}

	if c.CookieMaxAge <= 0 {
		return fmt.Errorf("COOKIE_MAX_AGE must be positive: %s", c.CookieMaxAge)
	}

	c.ProtectedRoutes = cleanRoutes(c.ProtectedRoutes)
	c.AuthRoutes = cleanRoutes(c.AuthRoutes)
	c.CookieSecure = strings.HasPrefix(c.BaseURL, "https://")
	return nil
}

func cleanRoutes(routes []string) []string {
	out := make([]string, 0, len(routes))
	for _, r := range routes {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}
