// Package ws pushes live fleet state, alerts and events to dashboard clients
// over WebSocket. The connection is push-only; client messages are ignored.
package ws

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"fleetwatch/internal/alert"
	"fleetwatch/internal/tracking"
)

const (
	TypeSnapshot = "snapshot"
	TypeAlert    = "alert"
	TypeEvent    = "event"
	TypeViewport = "viewport"
	TypeBlink    = "blink"

	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxInboundSize = 512
	sendBuffer     = 64
)

// Envelope is one pushed message.
type Envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// AlertPush is the payload of alert messages.
type AlertPush struct {
	alert.State
	Reason alert.Reason `json:"reason,omitempty"`
}

// BlinkPush is the payload of blink messages: one phase change of the pulse
// cue of alert Seq.
type BlinkPush struct {
	Seq uint64 `json:"seq"`
	Lit bool   `json:"lit"`
}

type Option func(*Hub)

func WithLogger(log *zap.Logger) Option {
	return func(h *Hub) { h.log = log }
}

// WithCheckOrigin overrides the upgrader origin check.
func WithCheckOrigin(check func(r *http.Request) bool) Option {
	return func(h *Hub) { h.upgrader.CheckOrigin = check }
}

// Hub fans messages out to every connected client. A client that cannot keep
// up is disconnected rather than slowing the others.
type Hub struct {
	snapshot func() any
	upgrader websocket.Upgrader
	log      *zap.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

// NewHub builds a hub. snapshot renders the full state sent on connect and
// after every state change.
func NewHub(snapshot func() any, opts ...Option) *Hub {
	h := &Hub{
		snapshot: snapshot,
		upgrader: websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 4096},
		log:      zap.NewNop(),
		clients:  make(map[*client]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ServeWS upgrades the request and starts pushing to the new client.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	c := &client{hub: h, conn: conn, send: make(chan []byte, sendBuffer)}
	if first, err := encode(TypeSnapshot, h.snapshot()); err == nil {
		c.send <- first
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()

	h.log.Info("Dashboard client connected", zap.String("remote", r.RemoteAddr), zap.Int("clients", count))
	go c.writePump()
	go c.readPump()
	return nil
}

// Broadcast sends one message to every client.
func (h *Hub) Broadcast(msgType string, data any) {
	payload, err := encode(msgType, data)
	if err != nil {
		h.log.Error("Failed to encode push message", zap.String("type", msgType), zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			h.log.Warn("Dropping slow dashboard client")
			h.removeLocked(c)
		}
	}
}

// OnOpen implements alert.Observer.
func (h *Hub) OnOpen(a alert.Alert) {
	h.Broadcast(TypeAlert, AlertPush{State: alert.State{Active: true, Alert: &a, Lit: true}})
}

// OnClose implements alert.Observer.
func (h *Hub) OnClose(a alert.Alert, reason alert.Reason) {
	h.Broadcast(TypeAlert, AlertPush{State: alert.State{Active: false, Alert: &a}, Reason: reason})
}

// OnBlink pushes a pulse phase change. It is the Blinker's toggle callback.
func (h *Hub) OnBlink(seq uint64, lit bool) {
	h.Broadcast(TypeBlink, BlinkPush{Seq: seq, Lit: lit})
}

// OnUpdate implements tracking.Listener.
func (h *Hub) OnUpdate(u tracking.Update) {
	switch u.Kind {
	case tracking.UpdateDevices, tracking.UpdatePositions, tracking.UpdateFocus:
		// Focus changes flip the focused flag on markers.
		h.Broadcast(TypeSnapshot, h.snapshot())
	case tracking.UpdateEvent:
		if u.Entry != nil {
			h.Broadcast(TypeEvent, u.Entry)
		}
	}
	if u.Viewport != nil {
		h.Broadcast(TypeViewport, u.Viewport)
	}
}

func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		h.removeLocked(c)
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

func encode(msgType string, data any) ([]byte, error) {
	return json.Marshal(Envelope{Type: msgType, Data: data})
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.hub.remove(c)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.hub.remove(c)
				return
			}
		}
	}
}

// readPump only services control frames and notices the client leaving.
func (c *client) readPump() {
	defer c.hub.remove(c)

	c.conn.SetReadLimit(maxInboundSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
