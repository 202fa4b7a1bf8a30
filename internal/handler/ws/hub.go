package ws

import (
	"encoding/json"
	"sync"

	"EnviroPulse/internal/domain/models"
	domrepo "EnviroPulse/internal/domain/repository"
	applogger "EnviroPulse/pkg/logger"

	"github.com/gorilla/websocket"
)

const (
	TypeReading  = "reading"
	TypeForecast = "forecast"
)

// Envelope is the frame sent to clients.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func NewEnvelope(msgType string, payload interface{}) ([]byte, error) {
	p, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: msgType, Payload: p})
}

// Client is one connected websocket. A non-empty sensors set restricts the
// frames it receives.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	sensors map[int64]bool
}

func (c *Client) wants(sensorID int64) bool {
	return len(c.sensors) == 0 || c.sensors[sensorID]
}

// Hub fans readings and forecasts out to connected clients.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	dropped int64
	l       *applogger.Logger
}

var _ domrepo.LiveFeed = (*Hub)(nil)

func NewHub(l *applogger.Logger) *Hub {
	return &Hub{clients: make(map[*Client]bool), l: l}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = true
}

func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns how many frames were skipped because a client was slow.
func (h *Hub) Dropped() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dropped
}

func (h *Hub) PublishReading(r *models.RawReading) {
	if r == nil {
		return
	}
	h.broadcast(TypeReading, r.SensorID, r)
}

func (h *Hub) PublishForecast(ev *models.ForecastEvent) {
	if ev == nil {
		return
	}
	h.broadcast(TypeForecast, ev.Result.SensorID, ev)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) broadcast(msgType string, sensorID int64, payload interface{}) {
	if h.ClientCount() == 0 {
		return
	}
	msg, err := NewEnvelope(msgType, payload)
	if err != nil {
		if h.l != nil {
			h.l.Error("ws encode failed", applogger.String("type", msgType), applogger.Error(err))
		}
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if !c.wants(sensorID) {
			continue
		}
		select {
		case c.send <- msg:
		default:
			// Client buffer full, skip
			h.dropped++
		}
	}
}
