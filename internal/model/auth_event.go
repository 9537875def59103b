package model

import "time"

// AuthEventKind は監査ログに記録する認証イベントの種別。
type AuthEventKind string

const (
	AuthEventLogin       AuthEventKind = "login"
	AuthEventLoginFailed AuthEventKind = "login_failed"
	AuthEventLogout      AuthEventKind = "logout"
	AuthEventExpired     AuthEventKind = "expired"
)

// AuthEvent は認証イベントの監査レコード。
type AuthEvent struct {
	ID        string
	ClientID  string
	Username  string // 失敗時は入力された識別子
	Kind      AuthEventKind
	Detail    string
	CreatedAt time.Time
}
