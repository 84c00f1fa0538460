package http

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"speaking-practice/internal/observability/logging"
	"speaking-practice/internal/observability/metrics"
	"speaking-practice/internal/service/conversation"
)

// Hub fans conversation events out to WebSocket clients.
type Hub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan conversation.Event
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       chan struct{}
	mu         sync.RWMutex

	upgrader websocket.Upgrader
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

// NewHub creates a hub. Call Run to start it.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan conversation.Event, 100),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			// Local control surface, any origin may connect
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		metrics: metrics.DefaultMetrics,
		logger:  logging.WithComponent("ws-hub"),
	}
}

// Run serves registrations and broadcasts until ctx is done, then closes
// every client connection.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for conn := range h.clients {
				conn.Close()
				delete(h.clients, conn)
			}
			h.mu.Unlock()
			h.metrics.WSClients.Set(0)
			return

		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.metrics.WSClients.Set(float64(n))
			h.logger.Info().Int("clients", n).Msg("Client connected")

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.metrics.WSClients.Set(float64(n))
			h.logger.Info().Int("clients", n).Msg("Client disconnected")

		case event := <-h.broadcast:
			h.mu.Lock()
			for conn := range h.clients {
				if err := conn.WriteJSON(event); err != nil {
					h.logger.Warn().Err(err).Msg("Write error, dropping client")
					conn.Close()
					delete(h.clients, conn)
				}
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.metrics.WSClients.Set(float64(n))
		}
	}
}

// Forward broadcasts events until the channel closes or ctx is done.
func (h *Hub) Forward(ctx context.Context, events <-chan conversation.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			select {
			case h.broadcast <- ev:
			case <-h.done:
				return
			default:
				h.logger.Warn().Str("kind", string(ev.Kind)).Msg("Broadcast queue full, dropping event")
			}
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and registers the connection.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket upgrade error")
		return
	}

	select {
	case h.register <- conn:
	case <-h.done:
		conn.Close()
		return
	}

	// Reads only detect the disconnect
	go func() {
		defer func() {
			select {
			case h.unregister <- conn:
			case <-h.done:
			}
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
