package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/mwpeters/choretally/internal/model"
)

// Message is the wire form of a domain event broadcast to all clients.
type Message struct {
	Type    string         `json:"type"`
	EventID string         `json:"event_id"`
	Seq     int64          `json:"seq"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Hub maintains the set of active WebSocket clients and broadcasts events.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	lastSeq int64
	logger  *slog.Logger
}

// NewHub creates a new Hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger.With("component", "websocket"),
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

// Unregister removes a client from the hub and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// Deliver broadcasts a domain event to every connected client. Redelivered
// events (seq at or below the last one seen) are skipped, so the hub is safe
// to use as an at-least-once sink.
func (h *Hub) Deliver(ev model.Event) error {
	h.mu.Lock()
	if ev.Seq <= h.lastSeq {
		h.mu.Unlock()
		return nil
	}
	h.lastSeq = ev.Seq
	h.mu.Unlock()

	data, err := json.Marshal(Message{
		Type:    string(ev.Kind),
		EventID: ev.EventID,
		Seq:     ev.Seq,
		Payload: ev.Payload,
	})
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			// Client buffer full; drop rather than block the dispatcher
		}
	}
	return nil
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
