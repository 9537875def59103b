// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"

	"github.com/hitoshi/tourbook/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	// userContextKey はルートガードが解決したログインユーザーを格納するキー。
	userContextKey = contextKey("user")
	// clientIDContextKey はクライアントIDを格納するキー。
	clientIDContextKey = contextKey("client_id")
	// requestInfoContextKey はリクエストログ用の可変情報を格納するキー。
	requestInfoContextKey = contextKey("request_info")
)

// requestInfo はロギングミドルウェアより内側で確定する情報を外側へ渡す。
type requestInfo struct {
	username string
}

// UserFromContext はリクエストコンテキストからログインユーザーを取得する。
// ルートガードを通過した有効なトークンを持つリクエストでのみ値が存在する。
func UserFromContext(ctx context.Context) (*model.User, bool) {
	u, ok := ctx.Value(userContextKey).(*model.User)
	return u, ok && u != nil
}

// ContextWithUser はコンテキストにログインユーザーを注入する。
func ContextWithUser(ctx context.Context, u *model.User) context.Context {
	if info, ok := ctx.Value(requestInfoContextKey).(*requestInfo); ok && u != nil {
		info.username = u.Username
	}
	return context.WithValue(ctx, userContextKey, u)
}

// ClientIDFromContext はクライアントIDを取得する。
func ClientIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(clientIDContextKey).(string)
	return id
}

// ContextWithClientID はコンテキストにクライアントIDを注入する。
func ContextWithClientID(ctx context.Context, clientID string) context.Context {
	return context.WithValue(ctx, clientIDContextKey, clientID)
}
