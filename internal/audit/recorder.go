// Package audit は認証イベントを監査ログとして非同期に保存する。
package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/tourbook/internal/model"
	"github.com/hitoshi/tourbook/internal/repository"
	"github.com/hitoshi/tourbook/internal/session"
)

const (
	defaultQueueSize    = 256
	defaultWriteTimeout = 5 * time.Second
	maxDetailLength     = 200
)

// Recorder は監査イベントをキューに積み、バックグラウンドでリポジトリへ書き込む。
// セッションの変更操作をDB書き込みで待たせないため、キューが満杯の場合は破棄してログに残す。
type Recorder struct {
	repo         repository.AuthEventRepository
	logger       *slog.Logger
	writeTimeout time.Duration
	now          func() time.Time

	mu     sync.RWMutex
	queue  chan model.AuthEvent
	closed bool
	wg     sync.WaitGroup
}

// NewRecorder はRecorderを生成し、書き込みゴルーチンを開始する。
func NewRecorder(repo repository.AuthEventRepository, logger *slog.Logger) *Recorder {
	r := &Recorder{
		repo:         repo,
		logger:       logger,
		writeTimeout: defaultWriteTimeout,
		now:          time.Now,
		queue:        make(chan model.AuthEvent, defaultQueueSize),
	}
	r.wg.Add(1)
	go r.run()
	return r
}

// Observer はclientIDに紐づくセッション変更を記録するObserverを返す。
// 復元イベントは記録しない。
func (r *Recorder) Observer(clientID string) session.Observer {
	return session.ObserverFunc(func(ev session.Event) {
		var kind model.AuthEventKind
		var user *model.User
		switch ev.Kind {
		case session.EventLogin:
			kind, user = model.AuthEventLogin, ev.Session.User
		case session.EventLogout:
			kind, user = model.AuthEventLogout, ev.Previous
		case session.EventExpired:
			kind, user = model.AuthEventExpired, ev.Previous
		default:
			return
		}

		event := model.AuthEvent{
			ClientID:  clientID,
			Kind:      kind,
			CreatedAt: ev.At,
		}
		if user != nil {
			event.Username = user.Username
		}
		r.enqueue(event)
	})
}

// RecordLoginFailure はログイン失敗を記録する。
// パスワードは受け取らない。identifierは入力されたユーザー名またはメールアドレス。
func (r *Recorder) RecordLoginFailure(clientID, identifier, detail string) {
	if len(detail) > maxDetailLength {
		detail = detail[:maxDetailLength]
	}
	r.enqueue(model.AuthEvent{
		ClientID:  clientID,
		Username:  identifier,
		Kind:      model.AuthEventLoginFailed,
		Detail:    detail,
		CreatedAt: r.now(),
	})
}

// Close は新規の受付を止め、キューに残ったイベントを書き込んでから戻る。
func (r *Recorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	r.wg.Wait()
}

func (r *Recorder) enqueue(event model.AuthEvent) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}

	select {
	case r.queue <- event:
	default:
		r.logger.Warn("audit queue full, dropping event",
			slog.String("kind", string(event.Kind)),
			slog.String("client_id", event.ClientID),
		)
	}
}

func (r *Recorder) run() {
	defer r.wg.Done()
	for event := range r.queue {
		r.write(event)
	}
}

func (r *Recorder) write(event model.AuthEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), r.writeTimeout)
	defer cancel()

	if err := r.repo.Insert(ctx, &event); err != nil {
		r.logger.Error("failed to write audit event",
			slog.String("kind", string(event.Kind)),
			slog.String("error", err.Error()),
		)
	}
}
