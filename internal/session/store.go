// Package session はクライアントごとの現在のログインセッションを保持するストアを提供する。
//
// 状態遷移:
//
//	Uninitialized --Rehydrate--> Anonymous | Authenticated
//	Anonymous --Login成功--> Authenticated
//	Authenticated --Logout / 期限切れ検出--> Anonymous
//
// 変更操作（Login, LoginWithToken, Logout, Rehydrate）は1つずつ直列に実行される。
// Cookieへの書き込みは、オブザーバーへの通知より先に完了する。
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/tourbook/internal/model"
	"github.com/hitoshi/tourbook/internal/token"
)

// Authenticator は認証ゲートウェイのインターフェース。
type Authenticator interface {
	Authenticate(ctx context.Context, creds model.Credentials) (*model.LoginResult, error)
}

// Navigator は画面遷移を要求する。HTTPではリダイレクト先の記録として実装する。
type Navigator func(route string)

// Options はStoreの依存関係と設定。
type Options struct {
	Codec        *token.Codec
	Parser       *token.Parser
	Gateway      Authenticator
	LandingRoute string
	Navigate     Navigator
	Now          func() time.Time
	Logger       *slog.Logger
	Observers    []Observer
}

// Store は1クライアント分のセッションを保持する。
type Store struct {
	opts Options
	jar  CookieJar

	// inflight は変更操作を直列化する。
	inflight sync.Mutex

	mu      sync.RWMutex
	session model.Session

	obsMu     sync.Mutex
	observers map[uint64]Observer
	nextObsID uint64
}

// NewStore はUninitialized状態のStoreを生成する。
func NewStore(opts Options, jar CookieJar) *Store {
	if opts.Codec == nil {
		opts.Codec = token.NewCodec("")
	}
	if opts.Parser == nil {
		opts.Parser = token.NewParser(nil)
	}
	if opts.LandingRoute == "" {
		opts.LandingRoute = "/"
	}
	if opts.Navigate == nil {
		opts.Navigate = func(string) {}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	s := &Store{
		opts:      opts,
		jar:       jar,
		session:   model.Session{State: model.SessionUninitialized},
		observers: make(map[uint64]Observer),
	}
	for _, o := range opts.Observers {
		s.Subscribe(o)
	}
	return s
}

// Rehydrate は永続化されたCookieからセッションを復元する。
// エラーは返さず、失敗はすべてAnonymousとして扱う。2回目以降の呼び出しは何もしない。
func (s *Store) Rehydrate() model.Session {
	s.inflight.Lock()
	defer s.inflight.Unlock()

	if s.snapshot().State != model.SessionUninitialized {
		return s.snapshot()
	}

	next := model.AnonymousSession()
	if raw, ok := s.jar.Token(); ok {
		sess, err := s.decode(raw)
		if err != nil {
			s.opts.Logger.Debug("discarding persisted token",
				slog.String("error", err.Error()),
			)
			s.jar.ClearToken()
		} else {
			if sess.Token != raw {
				s.jar.SetToken(sess.Token)
			}
			next = sess
		}
	}

	s.set(next)
	s.notify(EventRehydrated, model.Session{}, next)
	return next.Clone()
}

// Login はゲートウェイで認証し、成功した場合はセッションを置き換える。
// ゲートウェイの失敗は *model.GatewayError として返し、Cookieとセッションは変更しない。
func (s *Store) Login(ctx context.Context, creds model.Credentials) (model.Session, error) {
	s.inflight.Lock()
	defer s.inflight.Unlock()

	if s.opts.Gateway == nil {
		return model.Session{}, &model.GatewayError{Message: "no gateway configured"}
	}

	result, err := s.opts.Gateway.Authenticate(ctx, creds)
	if err != nil {
		var gwErr *model.GatewayError
		if !errors.As(err, &gwErr) {
			err = &model.GatewayError{Retryable: true, Err: err}
		}
		return model.Session{}, err
	}
	// ナビゲーションで放棄されたリクエストの結果は反映しない
	if ctx.Err() != nil {
		return model.Session{}, &model.GatewayError{Retryable: true, Err: ctx.Err()}
	}

	return s.loginLocked(result.AccessToken)
}

// LoginWithToken は生のトークンでセッションを置き換える。
// トークンが不正な場合は *model.InvalidTokenError、期限切れの場合は
// *model.ExpiredSessionError を返し、セッションは変更しない。
func (s *Store) LoginWithToken(raw string) (model.Session, error) {
	s.inflight.Lock()
	defer s.inflight.Unlock()
	return s.loginLocked(raw)
}

func (s *Store) loginLocked(raw string) (model.Session, error) {
	next, err := s.decode(raw)
	if err != nil {
		return model.Session{}, err
	}

	prev := s.snapshot()

	// Cookie書き込みを通知より先に行う
	s.jar.SetToken(next.Token)
	s.set(next)
	s.notify(EventLogin, prev, next)

	return next.Clone(), nil
}

// Logout はCookieとセッションを破棄し、ランディングページへ遷移する。
// セッションがない場合は遷移のみ行う。
func (s *Store) Logout() {
	s.inflight.Lock()
	defer s.inflight.Unlock()

	_, hasCookie := s.jar.Token()
	prev := s.snapshot()
	wasAuthenticated := prev.IsAuthenticated()

	if hasCookie || wasAuthenticated {
		s.jar.ClearToken()
	}
	anon := model.AnonymousSession()
	s.set(anon)
	if wasAuthenticated {
		s.notify(EventLogout, prev, anon)
	}

	s.opts.Navigate(s.opts.LandingRoute)
}

// Current は現在のセッションを返す。
// 保持しているセッションの有効期限が切れていた場合は、暗黙のログアウトを行ってからAnonymousを返す。
// 変更操作の実行中でもブロックしない。
func (s *Store) Current() model.Session {
	sess := s.snapshot()
	if !sess.IsAuthenticated() || !sess.User.ExpiresAt.Before(s.opts.Now()) {
		return sess
	}

	// 実行中の変更操作があれば、その結果でセッションが置き換わるため何もしない
	if s.inflight.TryLock() {
		defer s.inflight.Unlock()
		s.expireLocked(sess.Token)
	}
	return model.AnonymousSession()
}

// expireLocked はtokenがまだ現在のセッションであれば期限切れとして破棄する。
func (s *Store) expireLocked(tok string) {
	cur := s.snapshot()
	if cur.Token != tok || !cur.IsAuthenticated() {
		return
	}
	s.jar.ClearToken()
	anon := model.AnonymousSession()
	s.set(anon)
	s.notify(EventExpired, cur, anon)
}

// decode は生のトークンを正規化・デコード・検証してSessionを作る。
func (s *Store) decode(raw string) (model.Session, error) {
	standard, err := s.opts.Codec.Normalize(raw)
	if err != nil {
		return model.Session{}, err
	}
	claims, err := s.opts.Parser.ParseClaims(standard)
	if err != nil {
		return model.Session{}, err
	}
	if err := token.ValidateClaims(claims, s.opts.Now()); err != nil {
		return model.Session{}, err
	}
	return model.Session{
		State: model.SessionAuthenticated,
		User:  model.UserFromClaims(claims),
		Token: standard,
	}, nil
}

func (s *Store) snapshot() model.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.Clone()
}

func (s *Store) set(next model.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = next
}
