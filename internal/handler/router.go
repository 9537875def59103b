package handler

import (
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/tourbook/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger *slog.Logger

	// ミドルウェア依存
	Guard             *middleware.RouteGuard
	RateLimiter       *middleware.RateLimiter
	StatusRecorder    middleware.StatusRecorder
	CORSAllowedOrigin string
	CookieSecure      bool
	CookieDomain      string

	// ハンドラー
	Auth           *AuthHandler
	APIProxy       http.Handler // nilの場合は /api を公開しない
	MetricsHandler http.Handler
	Health         http.Handler
	Static         fs.FS
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RealIP → Recovery → SecurityHeaders → CORS → ClientID → Logging → RateLimit(General) → CSRF
//
// ルートガードは静的ページにのみ適用する。/auth と /api はガードの外に置く。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.CookieSecure))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewClientIDMiddleware(middleware.CookieOptions{
		Secure: deps.CookieSecure,
		Domain: deps.CookieDomain,
	}))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger, deps.StatusRecorder))

	// 監視系はレート制限とCSRFの外に置く
	if deps.Health != nil {
		r.Method(http.MethodGet, "/health", deps.Health)
	}
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	csrfConfig := middleware.CSRFConfig{
		CookieSecure: deps.CookieSecure,
		CookieDomain: deps.CookieDomain,
	}

	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.GeneralMiddleware())
		r.Use(middleware.NewCSRFMiddleware(csrfConfig))

		r.Route("/auth", func(r chi.Router) {
			r.With(deps.RateLimiter.LoginMiddleware()).Post("/login", deps.Auth.Login)
			r.Post("/logout", deps.Auth.Logout)
			r.Get("/me", deps.Auth.Me)
			r.Method(http.MethodGet, "/csrf-token", middleware.NewCSRFTokenHandler(csrfConfig))
			r.Get("/session/ws", deps.Auth.SessionEvents)
		})

		if deps.APIProxy != nil {
			r.Handle("/api/*", deps.APIProxy)
		}

		if deps.Static != nil {
			r.With(deps.Guard.Middleware()).Handle("/*", NewStaticHandler(deps.Static))
		}
	})

	return r
}
