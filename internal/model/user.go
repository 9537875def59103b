// Package model はドメインモデルを定義する。
package model

import (
	"slices"
	"time"
)

// Role はゲートウェイが発行するロールタグを表す。
type Role string

const (
	// RoleUser は一般利用者（ツアーの閲覧・予約）。
	RoleUser Role = "USER"
	// RoleOrganizer はツアー・イベントの主催者。
	RoleOrganizer Role = "ORGANIZER"
	// RoleAdmin は管理者。
	RoleAdmin Role = "ADMIN"
)

// ParseRole は文字列をRoleに変換する。未知のタグの場合はfalseを返す。
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleUser, RoleOrganizer, RoleAdmin:
		return Role(s), true
	default:
		return "", false
	}
}

// Claims は標準形式トークンのペイロードを検証済みの形で表す。
type Claims struct {
	ID        string // "id" または "sub"（任意）
	Name      string
	Username  string
	Email     string
	Roles     []Role
	ExpiresAt time.Time
}

// IsExpired はnow時点で有効期限を過ぎているかを返す。
// exp と同時刻はまだ有効として扱う。
func (c Claims) IsExpired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// User はアプリケーション全体に公開するログインユーザーの安定した形。
type User struct {
	ID        string    `json:"id,omitempty"`
	Name      string    `json:"name"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Roles     []Role    `json:"roles"`
	ExpiresAt time.Time `json:"expires_at"`
}

// UserFromClaims はClaimsをUserに射影する。
// Rolesはコピーするため、元のClaimsと共有しない。
func UserFromClaims(c Claims) *User {
	return &User{
		ID:        c.ID,
		Name:      c.Name,
		Username:  c.Username,
		Email:     c.Email,
		Roles:     slices.Clone(c.Roles),
		ExpiresAt: c.ExpiresAt,
	}
}

// HasRole はユーザーが指定ロールを持つかを返す。
func (u *User) HasRole(role Role) bool {
	if u == nil {
		return false
	}
	return slices.Contains(u.Roles, role)
}
