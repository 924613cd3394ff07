package chat

import (
	"log/slog"
	"sync"
)

// Client represents a gateway-side connection bound to an authenticated user.
type Client struct {
	Conn     Conn
	UserID   int64
	Outgoing chan []byte
}

// Hub tracks the open connections of every user and delivers frames to them.
// A user may hold several connections at once.
type Hub struct {
	clients map[int64]map[*Client]struct{}
	mu      sync.RWMutex
	logger  *slog.Logger
}

// NewHub creates a new Hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients: make(map[int64]map[*Client]struct{}),
		logger:  logger,
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[client.UserID]
	if !ok {
		set = make(map[*Client]struct{})
		h.clients[client.UserID] = set
	}
	set[client] = struct{}{}
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[client.UserID]
	if !ok {
		return
	}
	delete(set, client)
	if len(set) == 0 {
		delete(h.clients, client.UserID)
	}
}

// SendTo queues data for every connection of userID and returns how many
// connections accepted it. Clients with a full queue are skipped.
func (h *Hub) SendTo(userID int64, data []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for client := range h.clients[userID] {
		select {
		case client.Outgoing <- data:
			delivered++
		default:
			h.logger.Warn("Client queue full, skipping", "user_id", userID, "remote", client.Conn.RemoteAddr())
		}
	}
	return delivered
}

// ClientCount returns number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.clients {
		n += len(set)
	}
	return n
}

// UserCount returns number of users with at least one connection.
func (h *Hub) UserCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
