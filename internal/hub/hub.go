// Package hub fans out task-market lifecycle events to connected
// observers over a websocket stream, adapted from the teacher's terminal
// output broadcaster (internal/hub) to carry structured events instead of
// PTY bytes.
package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"
)

type Hub struct {
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[string]*client

	register   chan *client
	unregister chan *client
	publish    chan []byte
}

func New(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger:     logger,
		clients:    make(map[string]*client),
		register:   make(chan *client, 16),
		unregister: make(chan *client, 16),
		publish:    make(chan []byte, 256),
	}
}

// Run drives registration, unregistration, and fan-out until ctx is
// cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for _, c := range h.clients {
				close(c.send)
			}
			h.clients = make(map[string]*client)
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c.id] = c
			h.mu.Unlock()
			go c.writePump(ctx)
			go c.readPump(ctx, func() { h.unregister <- c })

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c.id]; ok {
				delete(h.clients, c.id)
				close(c.send)
			}
			h.mu.Unlock()

		case data := <-h.publish:
			h.mu.RLock()
			for _, c := range h.clients {
				c.enqueue(data)
			}
			h.mu.RUnlock()
		}
	}
}

// Publish fans an event out to every connected observer. It never blocks
// the calling transaction: a full publish queue drops the event.
func (h *Hub) Publish(evt Event) {
	if evt.Ts == 0 {
		evt.Ts = time.Now().Unix()
	}
	data, err := json.Marshal(evt)
	if err != nil {
		h.logger.Error("failed to marshal hub event", "error", err)
		return
	}
	select {
	case h.publish <- data:
	default:
		h.logger.Warn("hub publish queue full, dropping event", "event_type", evt.Type)
	}
}

// ServeStream upgrades the request to a websocket and registers the
// connection as an observer without blocking on the hub's registration
// loop: if the registration queue is full, the already-upgraded connection
// is closed with the websocket try-again-later status.
func (h *Hub) ServeStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		h.logger.Error("websocket accept failed", "error", err)
		return
	}

	c := newClient(conn)
	select {
	case h.register <- c:
	default:
		h.logger.Warn("hub not accepting connections, rejecting client")
		conn.Close(websocket.StatusTryAgainLater, "server busy")
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
