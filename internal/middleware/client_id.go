package middleware

import (
	"net/http"

	"github.com/google/uuid"
)

// ClientIDCookieName はクライアント（ブラウザ）を識別するCookie名。
// セッション変更通知の宛先と監査ログの相関に使用する。
const ClientIDCookieName = "client_id"

// CookieOptions はミドルウェアが発行するCookieの共通属性。
type CookieOptions struct {
	Secure bool
	Domain string
}

// NewClientIDMiddleware はclient_id Cookieを保証し、その値をコンテキストに注入するミドルウェアを返す。
// Cookieが存在しないか不正な値の場合は新しいUUIDを発行する。
func NewClientIDMiddleware(opts CookieOptions) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var clientID string
			if c, err := r.Cookie(ClientIDCookieName); err == nil {
				if id, err := uuid.Parse(c.Value); err == nil {
					clientID = id.String()
				}
			}
			if clientID == "" {
				clientID = uuid.NewString()
				http.SetCookie(w, &http.Cookie{
					Name:     ClientIDCookieName,
					Value:    clientID,
					Path:     "/",
					Domain:   opts.Domain,
					MaxAge:   365 * 24 * 60 * 60,
					HttpOnly: true,
					Secure:   opts.Secure,
					SameSite: http.SameSiteLaxMode,
				})
			}
			next.ServeHTTP(w, r.WithContext(ContextWithClientID(r.Context(), clientID)))
		})
	}
}
