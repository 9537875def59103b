package session

import (
	"net/http"
	"sync"
	"time"
)

const (
	// CookieName はクライアントが読み取れる正規化済みトークンのCookie名。
	CookieName = "client_token"
	// DefaultCookieMaxAge はトークンCookieのデフォルト有効期間（7日）。
	DefaultCookieMaxAge = 7 * 24 * time.Hour
)

// CookieJar はトークンCookieの永続化先を抽象化する。
// セッションストアとルートガードが共有する唯一の状態。
type CookieJar interface {
	// Token は永続化されたトークンを返す。存在しない場合はfalse。
	Token() (string, bool)
	// SetToken はトークンを永続化する。呼び出し後のTokenは新しい値を返すこと。
	SetToken(token string)
	// ClearToken はトークンを削除する。
	ClearToken()
}

// CookieConfig はトークンCookieの属性。
type CookieConfig struct {
	Name   string
	Domain string
	Secure bool
	MaxAge time.Duration
}

// DefaultCookieConfig はデフォルトのCookie属性を返す。
func DefaultCookieConfig() CookieConfig {
	return CookieConfig{
		Name:   CookieName,
		MaxAge: DefaultCookieMaxAge,
	}
}

// RequestJar は1つのHTTPリクエスト/レスポンスに束縛されたCookieJar。
// 読み取りはリクエストのCookieから行い、書き込みはSet-Cookieヘッダーとして出力する。
// 自身が書き込んだ後の読み取りは、書き込んだ値を返す。
type RequestJar struct {
	w      http.ResponseWriter
	r      *http.Request
	config CookieConfig

	written bool
	value   string
}

// NewRequestJar はRequestJarを生成する。
func NewRequestJar(w http.ResponseWriter, r *http.Request, config CookieConfig) *RequestJar {
	if config.Name == "" {
		config.Name = CookieName
	}
	if config.MaxAge <= 0 {
		config.MaxAge = DefaultCookieMaxAge
	}
	return &RequestJar{w: w, r: r, config: config}
}

// Token はCookieの値を返す。
func (j *RequestJar) Token() (string, bool) {
	if j.written {
		return j.value, j.value != ""
	}
	cookie, err := j.r.Cookie(j.config.Name)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return cookie.Value, true
}

// SetToken はトークンCookieを設定する。
// インページのスクリプトから読み取れるよう、HttpOnlyにはしない。
func (j *RequestJar) SetToken(token string) {
	http.SetCookie(j.w, &http.Cookie{
		Name:     j.config.Name,
		Value:    token,
		Path:     "/",
		Domain:   j.config.Domain,
		MaxAge:   int(j.config.MaxAge.Seconds()),
		HttpOnly: false,
		Secure:   j.config.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	j.written = true
	j.value = token
}

// ClearToken はトークンCookieを削除する。
func (j *RequestJar) ClearToken() {
	http.SetCookie(j.w, &http.Cookie{
		Name:     j.config.Name,
		Value:    "",
		Path:     "/",
		Domain:   j.config.Domain,
		MaxAge:   -1,
		HttpOnly: false,
		Secure:   j.config.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	j.written = true
	j.value = ""
}

// MemoryJar はプロセス内に値を保持するCookieJar。
// ヘッドレスクライアントやテストで使用する。MaxAgeを過ぎた値は存在しないものとして扱う。
type MemoryJar struct {
	mu        sync.Mutex
	value     string
	expiresAt time.Time
	maxAge    time.Duration
	now       func() time.Time
}

// NewMemoryJar はMemoryJarを生成する。nowがnilの場合はtime.Nowを使う。
func NewMemoryJar(maxAge time.Duration, now func() time.Time) *MemoryJar {
	if maxAge <= 0 {
		maxAge = DefaultCookieMaxAge
	}
	if now == nil {
		now = time.Now
	}
	return &MemoryJar{maxAge: maxAge, now: now}
}

// Token は保持している値を返す。
func (j *MemoryJar) Token() (string, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.value == "" || j.now().After(j.expiresAt) {
		return "", false
	}
	return j.value, true
}

// SetToken は値を保持する。
func (j *MemoryJar) SetToken(token string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.value = token
	j.expiresAt = j.now().Add(j.maxAge)
}

// ClearToken は値を削除する。
func (j *MemoryJar) ClearToken() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.value = ""
	j.expiresAt = time.Time{}
}
