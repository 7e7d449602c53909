// Package websocket streams recent log lines to connected operators.
package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/rs/zerolog"

	"github.com/subgen/api/internal/logging"
)

const (
	sendBuffer   = 256
	pingInterval = 30 * time.Second
)

// Client represents a WebSocket client
type Client struct {
	Conn *websocket.Conn
	Send chan []byte
}

// Hub fans log lines out to every connected client.
type Hub struct {
	ring *logging.Ring

	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	once       sync.Once

	mu     sync.RWMutex
	logger zerolog.Logger
}

// NewHub creates a hub fed by ring.
func NewHub(ring *logging.Ring) *Hub {
	return &Hub{
		ring:       ring,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logging.WithComponent("ws"),
	}
}

// Run pumps ring lines to clients until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	lines, cancel := h.ring.Subscribe(sendBuffer)
	defer cancel()
	defer h.closeAll()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Debug().Int("clients", h.Count()).Msg("client registered")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
			}
			h.mu.Unlock()

		case line, ok := <-lines:
			if !ok {
				return
			}
			h.broadcast([]byte(line))
		}
	}
}

func (h *Hub) broadcast(msg []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		select {
		case client.Send <- msg:
		default:
			// slow reader, drop it
			close(client.Send)
			delete(h.clients, client)
		}
	}
}

func (h *Hub) closeAll() {
	h.once.Do(func() { close(h.done) })
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		close(client.Send)
		delete(h.clients, client)
	}
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleConnection replays the last backlog lines (oldest first) and then
// streams new lines until the client disconnects or the hub stops.
func (h *Hub) HandleConnection(c *websocket.Conn, backlog int) {
	client := &Client{
		Conn: c,
		Send: make(chan []byte, sendBuffer),
	}

	recent := h.ring.Recent(backlog)
	for i := len(recent) - 1; i >= 0; i-- {
		if err := c.WriteMessage(websocket.TextMessage, []byte(recent[i])); err != nil {
			return
		}
	}

	select {
	case h.register <- client:
	case <-h.done:
		return
	}
	defer func() {
		select {
		case h.unregister <- client:
		case <-h.done:
		}
	}()

	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()

		for {
			select {
			case message, ok := <-client.Send:
				if !ok {
					_ = c.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
				if err := c.WriteMessage(websocket.TextMessage, message); err != nil {
					return
				}

			case <-ticker.C:
				if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	// Reader loop; clients only send control frames.
	for {
		if _, _, err := c.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug().Err(err).Msg("websocket closed")
			}
			return
		}
	}
}
