package api

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

// Hub fans frames out to websocket subscribers. A client whose write fails
// is dropped.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*client]struct{})}
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if ok {
		c.conn.Close()
	}
}

// Len returns the number of subscribers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast sends v to every subscriber.
func (h *Hub) Broadcast(v any) {
	h.mu.Lock()
	list := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		list = append(list, c)
	}
	h.mu.Unlock()

	for _, c := range list {
		if err := c.send(v); err != nil {
			slog.Debug("stream client dropped", "error", err)
			h.remove(c)
		}
	}
}

// handleStream upgrades to a websocket, sends the board size and the
// current frame, then pushes a frame after every tick. Incoming messages
// are ignored; the read loop only detects disconnects.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("stream upgrade failed", "error", err)
		return
	}
	c := &client{conn: conn}

	st := s.Sim.Status()
	if err := c.send(map[string]any{"type": "config", "width": st.Width, "height": st.Height}); err != nil {
		conn.Close()
		return
	}
	if err := c.send(s.Sim.Snapshot()); err != nil {
		conn.Close()
		return
	}
	s.hub.add(c)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	s.hub.remove(c)
}
