// Package notify はセッション変更を同じクライアントの全タブへWebSocketで配信する。
package notify

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hitoshi/tourbook/internal/model"
	"github.com/hitoshi/tourbook/internal/session"
)

const (
	sendBufferSize = 16
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
)

// Message はブラウザへ送信するセッション変更通知。トークンは含めない。
type Message struct {
	Type          string            `json:"type"`
	Event         session.EventKind `json:"event"`
	Authenticated bool              `json:"authenticated"`
	User          *model.User       `json:"user,omitempty"`
	At            time.Time         `json:"at"`
}

// conn は1つのWebSocket接続。書き込みはwritePumpのみが行う。
type conn struct {
	ws   *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *conn) close() {
	c.once.Do(func() { close(c.send) })
}

// Hub はクライアントIDごとのWebSocket接続を管理する。
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*conn]struct{}

	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewHub はHubを生成する。
// allowedOriginsが空の場合は同一オリジンからの接続のみ許可する。
func NewHub(logger *slog.Logger, allowedOrigins ...string) *Hub {
	h := &Hub{
		clients: make(map[string]map[*conn]struct{}),
		logger:  logger,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			if slices.Contains(allowedOrigins, origin) {
				return true
			}
			u, err := url.Parse(origin)
			return err == nil && u.Host == r.Host
		},
	}
	return h
}

// ServeWS はWebSocketへアップグレードし、clientID宛ての通知を配信する。
// 接続が切れるまでブロックする。
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, clientID string) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &conn{ws: ws, send: make(chan []byte, sendBufferSize)}
	h.register(clientID, c)

	go h.writePump(c)
	h.readPump(c)

	h.unregister(clientID, c)
}

// Publish はclientIDの全接続へメッセージを送信する。
// 送信バッファが溢れた接続は切断する。
func (h *Hub) Publish(clientID string, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to encode notification", slog.String("error", err.Error()))
		return
	}

	// sendのクローズは書き込みロック下でのみ行うため、読み取りロック中の送信は安全
	var slow []*conn
	h.mu.RLock()
	for c := range h.clients[clientID] {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.unregister(clientID, c)
	}
}

// Observer はclientID宛てに通知するセッションオブザーバーを返す。
// 復元（rehydrated）はリクエストごとに発生するため配信しない。
func (h *Hub) Observer(clientID string) session.Observer {
	return session.ObserverFunc(func(ev session.Event) {
		if ev.Kind == session.EventRehydrated || clientID == "" {
			return
		}
		h.Publish(clientID, Message{
			Type:          "session",
			Event:         ev.Kind,
			Authenticated: ev.Session.IsAuthenticated(),
			User:          ev.Session.User,
			At:            ev.At,
		})
	})
}

// ClientCount は接続数の合計を返す。
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, conns := range h.clients {
		n += len(conns)
	}
	return n
}

// Close はすべての接続を閉じる。
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, conns := range h.clients {
		for c := range conns {
			c.close()
		}
		delete(h.clients, id)
	}
}

func (h *Hub) register(clientID string, c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[clientID] == nil {
		h.clients[clientID] = make(map[*conn]struct{})
	}
	h.clients[clientID][c] = struct{}{}
}

func (h *Hub) unregister(clientID string, c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns := h.clients[clientID]
	delete(conns, c)
	if len(conns) == 0 {
		delete(h.clients, clientID)
	}
	c.close()
}

// readPump はクライアントからのメッセージを読み捨て、切断を検出する。
func (h *Hub) readPump(c *conn) {
	c.ws.SetReadLimit(512)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump はsendチャネルの内容を書き込み、定期的にpingを送る。
func (h *Hub) writePump(c *conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
