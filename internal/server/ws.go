package server

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

const (
	viewerBuffer       = 64
	viewerWriteTimeout = 5 * time.Second
)

type viewer struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub relays session records to browsers connected on /ws/session. A viewer
// that falls behind misses records rather than slowing the pipeline.
type Hub struct {
	mu      sync.RWMutex
	viewers map[*viewer]struct{}
	latest  []byte
	closed  bool
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{viewers: make(map[*viewer]struct{})}
}

// Enqueue broadcasts msg to every viewer without blocking.
func (h *Hub) Enqueue(msg []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.latest = msg
	for v := range h.viewers {
		select {
		case v.send <- msg:
		default:
			slog.Debug("server: viewer behind, dropping record", "remote", v.conn.RemoteAddr())
		}
	}
}

// Clients returns the number of connected viewers.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.viewers)
}

// ServeHTTP handles WebSocket upgrade requests. A new viewer first receives
// the latest record.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("server: websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	v := &viewer{conn: conn, send: make(chan []byte, viewerBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.viewers[v] = struct{}{}
	if h.latest != nil {
		v.send <- h.latest
	}
	h.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.write(v)
	}()

	// Keep connection alive by reading messages
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.remove(v)
	<-done
}

func (h *Hub) write(v *viewer) {
	for msg := range v.send {
		v.conn.SetWriteDeadline(time.Now().Add(viewerWriteTimeout))
		if err := v.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			// Unblocks the read loop.
			v.conn.Close()
			for range v.send {
			}
			return
		}
	}
}

func (h *Hub) remove(v *viewer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.viewers[v]; ok {
		delete(h.viewers, v)
		close(v.send)
	}
}

// Close disconnects every viewer and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for v := range h.viewers {
		v.conn.Close()
	}
}
