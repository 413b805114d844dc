// Package feed streams sentinel events to websocket subscribers as JSON.
// It replaces the map front-end of earlier prototypes with a plain event
// feed; rendering is left to the consumer.
package feed

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/relabs-tech/gnss_sentinel/internal/arbiter"
	"github.com/relabs-tech/gnss_sentinel/internal/gnss"
	"github.com/relabs-tech/gnss_sentinel/internal/logging"
)

// envelope wraps every feed message.
type envelope struct {
	Event string `json:"event"` // "position", "alert", or "mode"
	Data  any    `json:"data"`
}

// Hub fans events out to connected clients. Slow clients are dropped
// rather than allowed to backpressure the detectors.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]chan []byte
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The feed is one-way broadcast; any origin may subscribe.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]chan []byte),
	}
}

// Handler upgrades an HTTP request into a feed subscription.
func (h *Hub) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			logging.Warn().Err(err).Msg("feed: upgrade failed")
			return
		}

		send := make(chan []byte, 32)
		h.mu.Lock()
		h.clients[conn] = send
		h.mu.Unlock()
		logging.Info().Str("remote", conn.RemoteAddr().String()).Msg("feed: client connected")

		go h.writeLoop(conn, send)
		go h.readLoop(conn)
	}
}

// PublishFix broadcasts one position event.
func (h *Hub) PublishFix(fix gnss.FixSample) {
	h.broadcast("position", fix)
}

// Alert broadcasts the spoofing alert.
func (h *Hub) Alert(a arbiter.Alert) {
	h.broadcast("alert", a)
}

// ModeChanged broadcasts a mode transition.
func (h *Hub) ModeChanged(m arbiter.Mode) {
	h.broadcast("mode", m.String())
}

func (h *Hub) broadcast(event string, data any) {
	payload, err := json.Marshal(envelope{Event: event, Data: data})
	if err != nil {
		logging.Error().Err(err).Str("event", event).Msg("feed: marshal error")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, send := range h.clients {
		select {
		case send <- payload:
		default:
			// Client is not keeping up; cut it loose.
			delete(h.clients, conn)
			close(send)
		}
	}
}

func (h *Hub) writeLoop(conn *websocket.Conn, send chan []byte) {
	defer conn.Close()
	for payload := range send {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.drop(conn)
			return
		}
	}
}

// readLoop drains control frames and detects disconnects.
func (h *Hub) readLoop(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.drop(conn)
			return
		}
	}
}

func (h *Hub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	if send, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		close(send)
	}
	h.mu.Unlock()
	conn.Close()
}
