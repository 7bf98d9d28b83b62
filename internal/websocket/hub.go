// Package websocket pushes live updates to portal sessions.
package websocket

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

type delivery struct {
	owner   string // empty means every client
	message []byte
}

// Hub tracks connected clients by owning portal session.
type Hub struct {
	clients    map[*Client]bool
	outbound   chan delivery
	register   chan *Client
	unregister chan *Client
	logger     *zap.Logger

	mu sync.RWMutex
}

// NewHub creates a hub. Run must be started before clients register.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		outbound:   make(chan delivery, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger.With(zap.String("component", "websocket")),
	}
}

// Run processes registrations and deliveries until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("Client connected", zap.String("session", c.owner), zap.Int("total", n))

		case c := <-h.unregister:
			h.mu.Lock()
			if h.clients[c] {
				delete(h.clients, c)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("Client disconnected", zap.String("session", c.owner), zap.Int("total", n))

		case d := <-h.outbound:
			h.mu.Lock()
			for c := range h.clients {
				if d.owner != "" && c.owner != d.owner {
					continue
				}
				select {
				case c.send <- d.message:
				default:
					// Slow consumer; drop it and let the page reconnect.
					close(c.send)
					delete(h.clients, c)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast queues message for every client.
func (h *Hub) Broadcast(message []byte) {
	h.enqueue(delivery{message: message})
}

// SendTo queues message for the clients of one portal session.
func (h *Hub) SendTo(owner string, message []byte) {
	if owner == "" {
		return
	}
	h.enqueue(delivery{owner: owner, message: message})
}

func (h *Hub) enqueue(d delivery) {
	select {
	case h.outbound <- d:
	default:
		h.logger.Warn("Outbound queue full, dropping message")
	}
}

// Register adds a client.
func (h *Hub) Register(c *Client) {
	h.register <- c
}

// Unregister removes a client.
func (h *Hub) Unregister(c *Client) {
	h.unregister <- c
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Client is one websocket connection owned by a portal session.
type Client struct {
	owner string
	send  chan []byte
}

// NewClient creates a client for owner.
func NewClient(owner string) *Client {
	return &Client{owner: owner, send: make(chan []byte, 64)}
}

// Owner returns the portal session id.
func (c *Client) Owner() string {
	return c.owner
}

// Send returns the outbound channel; it is closed when the hub drops the
// client.
func (c *Client) Send() <-chan []byte {
	return c.send
}
