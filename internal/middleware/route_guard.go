package middleware

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/tourbook/internal/model"
	"github.com/hitoshi/tourbook/internal/session"
)

// GuardDecision はルートガードの判定結果。
type GuardDecision string

const (
	GuardAllow           GuardDecision = "allow"
	GuardRedirectLogin   GuardDecision = "redirect_login"
	GuardRedirectLanding GuardDecision = "redirect_landing"
)

// GuardConfig はルートガードの設定。
// ProtectedRoutesとAuthRoutesは前方一致で照合し、両方に一致する場合はProtectedRoutesを優先する。
type GuardConfig struct {
	ProtectedRoutes []string
	AuthRoutes      []string
	LoginRoute      string
	LandingRoute    string
	CookieName      string
}

// DefaultGuardConfig はデフォルトのルート設定を返す。
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		ProtectedRoutes: []string{"/tours/new", "/tours/edit", "/events/admin", "/reservations"},
		AuthRoutes:      []string{"/login", "/register"},
		LoginRoute:      "/login",
		LandingRoute:    "/",
		CookieName:      session.CookieName,
	}
}

// TokenVerifier は標準形式トークンを検証する。
// 実装はXOR/base64の展開を行ってはならない。
type TokenVerifier interface {
	Verify(standard string, now time.Time) (model.Claims, error)
}

// GuardRecorder はルートガードの判定を記録する。
type GuardRecorder interface {
	RecordGuardDecision(decision string)
}

// RouteGuard は永続化されたトークンCookieのみを読み、保護ルートと認証専用ルートへの遷移を制御する。
// Cookieへの書き込みは行わない。
type RouteGuard struct {
	config   GuardConfig
	verifier TokenVerifier
	recorder GuardRecorder
	logger   *slog.Logger
	now      func() time.Time
}

// GuardOption はRouteGuardのオプション。
type GuardOption func(*RouteGuard)

// WithGuardRecorder は判定を記録するレコーダーを設定する。
func WithGuardRecorder(r GuardRecorder) GuardOption {
	return func(g *RouteGuard) { g.recorder = r }
}

// WithGuardClock は現在時刻の取得関数を差し替える。
func WithGuardClock(now func() time.Time) GuardOption {
	return func(g *RouteGuard) { g.now = now }
}

// WithGuardLogger はロガーを設定する。
func WithGuardLogger(l *slog.Logger) GuardOption {
	return func(g *RouteGuard) { g.logger = l }
}

// NewRouteGuard はRouteGuardを生成する。
func NewRouteGuard(config GuardConfig, verifier TokenVerifier, opts ...GuardOption) *RouteGuard {
	if config.CookieName == "" {
		config.CookieName = session.CookieName
	}
	if config.LoginRoute == "" {
		config.LoginRoute = "/login"
	}
	if config.LandingRoute == "" {
		config.LandingRoute = "/"
	}
	g := &RouteGuard{
		config:   config,
		verifier: verifier,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Decide はパスとCookieから判定を行う。
// トークンが有効な場合はユーザーも返す。デコード失敗と期限切れは未認証として扱う。
func (g *RouteGuard) Decide(r *http.Request) (GuardDecision, *model.User) {
	user := g.userFromCookie(r)
	path := r.URL.Path

	switch {
	case matchesPrefix(path, g.config.ProtectedRoutes):
		if user == nil {
			return GuardRedirectLogin, nil
		}
		return GuardAllow, user
	// 期限切れや壊れたCookieが残っていてもログイン画面には入れるよう、有効なトークンの場合だけ戻す
	case matchesPrefix(path, g.config.AuthRoutes) && user != nil:
		return GuardRedirectLanding, user
	default:
		return GuardAllow, user
	}
}

// Middleware はchi互換のミドルウェアを返す。
func (g *RouteGuard) Middleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision, user := g.Decide(r)
			if g.recorder != nil {
				g.recorder.RecordGuardDecision(string(decision))
			}

			switch decision {
			case GuardRedirectLogin:
				http.Redirect(w, r, g.config.LoginRoute, http.StatusTemporaryRedirect)
				return
			case GuardRedirectLanding:
				http.Redirect(w, r, g.config.LandingRoute, http.StatusTemporaryRedirect)
				return
			}

			if user != nil {
				r = r.WithContext(ContextWithUser(r.Context(), user))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// TokenFromRequest は有効なトークンCookieの値を返す。無効な場合は空文字列。
func (g *RouteGuard) TokenFromRequest(r *http.Request) string {
	cookie, err := r.Cookie(g.config.CookieName)
	if err != nil || cookie.Value == "" {
		return ""
	}
	if _, err := g.verifier.Verify(cookie.Value, g.now()); err != nil {
		return ""
	}
	return cookie.Value
}

func (g *RouteGuard) userFromCookie(r *http.Request) *model.User {
	cookie, err := r.Cookie(g.config.CookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}
	claims, err := g.verifier.Verify(cookie.Value, g.now())
	if err != nil {
		g.logger.Debug("route guard rejected token",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		return nil
	}
	return model.UserFromClaims(claims)
}

func matchesPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
