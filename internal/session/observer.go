package session

import (
	"slices"
	"time"

	"github.com/hitoshi/tourbook/internal/model"
)

// EventKind はセッション変更の理由。
type EventKind string

const (
	EventRehydrated EventKind = "rehydrated"
	EventLogin      EventKind = "login"
	EventLogout     EventKind = "logout"
	EventExpired    EventKind = "expired"
)

// Event はオブザーバーへ通知されるセッション変更。
// Sessionは変更後の状態、Previousは変更前に認証済みだったユーザー。
type Event struct {
	Kind     EventKind
	Session  model.Session
	Previous *model.User
	At       time.Time
}

// Observer はセッション変更を受け取る。
// 通知は変更操作の実行中に同期的に行われるため、ObserverからStoreの変更操作を呼んではならない。
type Observer interface {
	SessionChanged(ev Event)
}

// ObserverFunc は関数をObserverとして扱うアダプター。
type ObserverFunc func(ev Event)

// SessionChanged はfを呼び出す。
func (f ObserverFunc) SessionChanged(ev Event) {
	f(ev)
}

// Subscribe はオブザーバーを登録し、登録解除用の関数を返す。
func (s *Store) Subscribe(o Observer) (unsubscribe func()) {
	s.obsMu.Lock()
	id := s.nextObsID
	s.nextObsID++
	s.observers[id] = o
	s.obsMu.Unlock()

	return func() {
		s.obsMu.Lock()
		delete(s.observers, id)
		s.obsMu.Unlock()
	}
}

// notify は登録順にオブザーバーへ通知する。
func (s *Store) notify(kind EventKind, prev model.Session, sess model.Session) {
	s.obsMu.Lock()
	ids := make([]uint64, 0, len(s.observers))
	for id := range s.observers {
		ids = append(ids, id)
	}
	observers := make([]Observer, 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		observers = append(observers, s.observers[id])
	}
	s.obsMu.Unlock()

	ev := Event{Kind: kind, At: s.opts.Now()}
	for _, o := range observers {
		ev.Session = sess.Clone()
		ev.Previous = prev.Clone().User
		o.SessionChanged(ev)
	}
}
