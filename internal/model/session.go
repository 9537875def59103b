package model

import "slices"

// SessionState はセッションストアの状態を表す。
type SessionState string

const (
	// SessionUninitialized は起動時の復元チェックが完了する前の一時状態。
	// この状態ではログイン状態に依存するUIを描画してはならない。
	SessionUninitialized SessionState = "uninitialized"
	// SessionAnonymous は未ログイン状態。
	SessionAnonymous SessionState = "anonymous"
	// SessionAuthenticated はログイン済み状態。
	SessionAuthenticated SessionState = "authenticated"
)

// Session はクライアントが保持する現在のログイン状態。
type Session struct {
	State SessionState `json:"state"`
	User  *User        `json:"user"`
	Token string       `json:"-"`
}

// IsAuthenticated はUserが存在する場合にのみtrueを返す。
func (s Session) IsAuthenticated() bool {
	return s.User != nil
}

// AnonymousSession は未ログイン状態のSessionを返す。
func AnonymousSession() Session {
	return Session{State: SessionAnonymous}
}

// Clone はUserを複製したSessionを返す。
func (s Session) Clone() Session {
	if s.User != nil {
		u := *s.User
		u.Roles = slices.Clone(s.User.Roles)
		s.User = &u
	}
	return s
}
