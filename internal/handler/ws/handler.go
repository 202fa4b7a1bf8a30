package ws

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	applogger "EnviroPulse/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 256
)

// Handler upgrades GET /ws/readings to a live feed. ?sensor_id= may be
// repeated to subscribe to specific sensors.
type Handler struct {
	hub      *Hub
	upgrader websocket.Upgrader
	l        *applogger.Logger
}

// NewHandler accepts connections from origins; empty allows any origin.
func NewHandler(hub *Hub, origins []string, l *applogger.Logger) *Handler {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[strings.TrimRight(o, "/")] = true
	}
	return &Handler{
		hub: hub,
		l:   l,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return len(allowed) == 0 || origin == "" || allowed[origin]
			},
		},
	}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws/readings", h.Serve)
}

func (h *Handler) Serve(c echo.Context) error {
	sensors, err := parseSensorIDs(c.QueryParams()["sensor_id"])
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"status":  http.StatusBadRequest,
			"message": "sensor_id must be an integer",
		})
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		if h.l != nil {
			h.l.Warn("ws upgrade failed", applogger.Error(err))
		}
		// Upgrade already wrote the error response.
		return nil
	}

	client := &Client{hub: h.hub, conn: conn, send: make(chan []byte, sendBuffer), sensors: sensors}
	h.hub.Register(client)
	if h.l != nil {
		h.l.Debug("ws client connected", applogger.Int("clients", h.hub.ClientCount()))
	}
	go client.writePump()
	client.readPump(h.l)
	return nil
}

// readPump discards client frames and keeps the connection alive until the
// peer goes away.
func (c *Client) readPump(l *applogger.Logger) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) && l != nil {
				l.Warn("ws read error", applogger.Error(err))
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func parseSensorIDs(vals []string) (map[int64]bool, error) {
	if len(vals) == 0 {
		return nil, nil
	}
	out := make(map[int64]bool, len(vals))
	for _, v := range vals {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := strconv.ParseInt(part, 10, 64)
			if err != nil {
				return nil, err
			}
			out[id] = true
		}
	}
	return out, nil
}
