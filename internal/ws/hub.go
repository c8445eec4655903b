package ws

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/manpreetbhatti/collabrooms/internal/metrics"
	"github.com/manpreetbhatti/collabrooms/internal/protocol"
)

// Hub is the set of open connections keyed by connection id. It is the
// coordinator's transport: rooms live in the coordinator, the hub only
// knows sockets.
type Hub struct {
	mu      sync.Mutex
	clients map[string]*Client

	log     zerolog.Logger
	metrics *metrics.Metrics
}

// NewHub builds an empty hub. m may be nil.
func NewHub(log zerolog.Logger, m *metrics.Metrics) *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		log:     log.With().Str("component", "ws").Logger(),
		metrics: m,
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c.id] = c
	count := len(h.clients)
	h.mu.Unlock()

	h.setOpen(count)
	h.log.Debug().Str("conn", c.id).Int("total", count).Msg("client connected")
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if cur, ok := h.clients[c.id]; ok && cur == c {
		delete(h.clients, c.id)
		close(c.send)
	}
	count := len(h.clients)
	h.mu.Unlock()

	h.setOpen(count)
	h.log.Debug().Str("conn", c.id).Int("remaining", count).Msg("client disconnected")
}

// Deliver encodes msg once and queues it on every listed connection.
// A connection whose buffer is full is dropped.
func (h *Hub) Deliver(msg protocol.Outbound, connIDs ...string) {
	data, err := protocol.Encode(msg)
	if err != nil {
		h.log.Error().Err(err).Str("event", msg.Event).Msg("encode outbound event")
		return
	}

	h.mu.Lock()
	dropped := 0
	for _, id := range connIDs {
		c, ok := h.clients[id]
		if !ok {
			continue
		}
		select {
		case c.send <- data:
		default:
			delete(h.clients, id)
			close(c.send)
			dropped++
			h.log.Warn().Str("conn", id).Msg("send buffer full, dropping client")
		}
	}
	count := len(h.clients)
	h.mu.Unlock()

	if dropped > 0 {
		h.setOpen(count)
		if h.metrics != nil {
			h.metrics.DroppedClients.Add(float64(dropped))
		}
	}
}

// CloseAll closes every connection's send queue, which makes its write
// pump send a close frame.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	for id, c := range h.clients {
		delete(h.clients, id)
		close(c.send)
	}
	h.mu.Unlock()
	h.setOpen(0)
}

func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) setOpen(n int) {
	if h.metrics != nil {
		h.metrics.OpenSockets.Set(float64(n))
	}
}
