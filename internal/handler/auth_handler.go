// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hitoshi/tourbook/internal/middleware"
	"github.com/hitoshi/tourbook/internal/model"
	"github.com/hitoshi/tourbook/internal/session"
	"github.com/hitoshi/tourbook/internal/token"
)

// maxLoginBodySize はログインリクエストボディの上限。
const maxLoginBodySize = 16 << 10

// SessionMetrics は認証操作のメトリクスを記録する。
type SessionMetrics interface {
	RecordLoginSuccess()
	RecordLoginFailure(reason string)
	RecordLogout()
	RecordSessionExpired()
}

// SessionNotifier はセッション変更を同じクライアントの他タブへ配信する。
type SessionNotifier interface {
	Observer(clientID string) session.Observer
	ServeWS(w http.ResponseWriter, r *http.Request, clientID string)
}

// AuditRecorder は認証イベントを監査ログに残す。
type AuditRecorder interface {
	Observer(clientID string) session.Observer
	RecordLoginFailure(clientID, identifier, detail string)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	Codec        *token.Codec
	Parser       *token.Parser
	Cookie       session.CookieConfig
	LoginRoute   string
	LandingRoute string
}

// AuthHandler はログイン・ログアウトとセッション参照のHTTPハンドラー。
// リクエストごとにCookieを永続層とするsession.Storeを組み立てる。
type AuthHandler struct {
	gateway  session.Authenticator
	config   AuthHandlerConfig
	metrics  SessionMetrics
	notifier SessionNotifier
	auditor  AuditRecorder
	logger   *slog.Logger
	now      func() time.Time
}

// AuthHandlerOption はAuthHandlerの任意設定。
type AuthHandlerOption func(*AuthHandler)

// WithSessionMetrics はメトリクスの記録先を設定する。
func WithSessionMetrics(m SessionMetrics) AuthHandlerOption {
	return func(h *AuthHandler) { h.metrics = m }
}

// WithSessionNotifier はタブ間通知の配信先を設定する。
func WithSessionNotifier(n SessionNotifier) AuthHandlerOption {
	return func(h *AuthHandler) { h.notifier = n }
}

// WithAuditRecorder は監査ログの記録先を設定する。
func WithAuditRecorder(a AuditRecorder) AuthHandlerOption {
	return func(h *AuthHandler) { h.auditor = a }
}

// WithAuthLogger はロガーを設定する。
func WithAuthLogger(l *slog.Logger) AuthHandlerOption {
	return func(h *AuthHandler) { h.logger = l }
}

// WithAuthClock は現在時刻の取得関数を差し替える。
func WithAuthClock(now func() time.Time) AuthHandlerOption {
	return func(h *AuthHandler) { h.now = now }
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(gateway session.Authenticator, config AuthHandlerConfig, opts ...AuthHandlerOption) *AuthHandler {
	if config.LoginRoute == "" {
		config.LoginRoute = "/login"
	}
	if config.LandingRoute == "" {
		config.LandingRoute = "/"
	}
	h := &AuthHandler{
		gateway: gateway,
		config:  config,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// sessionResponse はセッション状態のJSON表現。トークンは含めない。
type sessionResponse struct {
	Authenticated bool        `json:"authenticated"`
	User          *model.User `json:"user,omitempty"`
}

// newStore はリクエスト用のStoreと、遷移先を受け取る変数を返す。
func (h *AuthHandler) newStore(w http.ResponseWriter, r *http.Request) (*session.Store, *string) {
	clientID := middleware.ClientIDFromContext(r.Context())
	navigated := new(string)

	observers := []session.Observer{session.ObserverFunc(h.recordMetrics)}
	if h.notifier != nil && clientID != "" {
		observers = append(observers, h.notifier.Observer(clientID))
	}
	if h.auditor != nil {
		observers = append(observers, h.auditor.Observer(clientID))
	}

	store := session.NewStore(session.Options{
		Codec:        h.config.Codec,
		Parser:       h.config.Parser,
		Gateway:      h.gateway,
		LandingRoute: h.config.LandingRoute,
		Navigate:     func(route string) { *navigated = route },
		Now:          h.now,
		Logger:       h.logger,
		Observers:    observers,
	}, session.NewRequestJar(w, r, h.config.Cookie))
	return store, navigated
}

func (h *AuthHandler) recordMetrics(ev session.Event) {
	if h.metrics == nil {
		return
	}
	switch ev.Kind {
	case session.EventLogin:
		h.metrics.RecordLoginSuccess()
	case session.EventLogout:
		h.metrics.RecordLogout()
	case session.EventExpired:
		h.metrics.RecordSessionExpired()
	}
}

// Login はゲートウェイで認証し、成功したらトークンCookieを設定する。
// POST /auth/login
//
// JSON（application/json）とフォーム送信の両方を受け付ける。
// フォーム送信の場合は結果に応じてランディングページまたはログインページへ303でリダイレクトする。
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	isJSON := isJSONRequest(r)

	creds, err := readCredentials(w, r, isJSON)
	if err != nil {
		h.respondLoginError(w, r, isJSON, http.StatusBadRequest, model.NewInvalidRequestError(err.Error()))
		return
	}

	store, _ := h.newStore(w, r)
	store.Rehydrate()

	sess, err := store.Login(r.Context(), creds)
	if err != nil {
		status, apiErr := middleware.MapLoginError(err)
		reason := loginFailureReason(err)
		h.logger.Warn("login failed",
			slog.String("identifier", creds.Identifier),
			slog.String("reason", reason),
			slog.String("error", err.Error()),
		)
		if h.metrics != nil {
			h.metrics.RecordLoginFailure(reason)
		}
		if h.auditor != nil {
			h.auditor.RecordLoginFailure(middleware.ClientIDFromContext(r.Context()), creds.Identifier, apiErr.Code)
		}
		h.respondLoginError(w, r, isJSON, status, apiErr)
		return
	}

	h.logger.Info("login succeeded", slog.String("username", sess.User.Username))
	if !isJSON {
		http.Redirect(w, r, h.config.LandingRoute, http.StatusSeeOther)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Authenticated: true, User: sess.User})
}

// Logout はトークンCookieを破棄し、ランディングページへ303でリダイレクトする。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	store, navigated := h.newStore(w, r)
	store.Rehydrate()
	store.Logout()

	target := *navigated
	if target == "" {
		target = h.config.LandingRoute
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// Me は現在のセッションのユーザー情報を返す。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	store, _ := h.newStore(w, r)
	store.Rehydrate()

	sess := store.Current()
	if !sess.IsAuthenticated() {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Authenticated: true, User: sess.User})
}

// SessionEvents はセッション変更通知用のWebSocketを開く。
// GET /auth/session/ws
func (h *AuthHandler) SessionEvents(w http.ResponseWriter, r *http.Request) {
	clientID := middleware.ClientIDFromContext(r.Context())
	if h.notifier == nil || clientID == "" {
		http.NotFound(w, r)
		return
	}
	h.notifier.ServeWS(w, r, clientID)
}

func (h *AuthHandler) respondLoginError(w http.ResponseWriter, r *http.Request, isJSON bool, status int, apiErr *model.APIError) {
	if isJSON {
		middleware.WriteErrorResponse(w, status, apiErr)
		return
	}
	target := h.config.LoginRoute + "?error=" + url.QueryEscape(strings.ToLower(apiErr.Code))
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// readCredentials はJSONまたはフォームから認証情報を読み取り、必須項目を検証する。
func readCredentials(w http.ResponseWriter, r *http.Request, isJSON bool) (model.Credentials, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxLoginBodySize)

	var creds model.Credentials
	if isJSON {
		if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
			return creds, errors.New("cuerpo JSON no válido")
		}
	} else {
		if err := r.ParseForm(); err != nil {
			return creds, errors.New("formulario no válido")
		}
		creds.Identifier = r.PostForm.Get("identifier")
		creds.Password = r.PostForm.Get("password")
	}

	creds.Identifier = strings.TrimSpace(creds.Identifier)
	switch {
	case creds.Identifier == "":
		return creds, errors.New("el usuario o correo es obligatorio")
	case creds.Password == "":
		return creds, errors.New("la contraseña es obligatoria")
	}
	return creds, nil
}

func isJSONRequest(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "application/json"
}

// loginFailureReason はメトリクスのラベルに使う失敗理由を返す。
func loginFailureReason(err error) string {
	var (
		gwErr      *model.GatewayError
		invalidErr *model.InvalidTokenError
		expiredErr *model.ExpiredSessionError
	)
	switch {
	case errors.As(err, &gwErr):
		if gwErr.Retryable || gwErr.StatusCode == 0 {
			return "gateway_unavailable"
		}
		return "invalid_credentials"
	case errors.As(err, &expiredErr):
		return "expired_token"
	case errors.As(err, &invalidErr):
		return "invalid_token"
	default:
		return "internal"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}
