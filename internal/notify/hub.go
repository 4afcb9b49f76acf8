package notify

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/dwitter/apiserver/internal/metrics"
	"github.com/dwitter/apiserver/types"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxClientFrame = 512
	clientBuffer   = 32
)

// realtimeMessage is the frame pushed to WebSocket clients.
type realtimeMessage struct {
	Event string      `json:"event"`
	Data  types.Tweet `json:"data"`
}

type client struct {
	conn   *websocket.Conn
	userID int
	send   chan []byte
	once   sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// Hub broadcasts events to connected WebSocket clients. Clients that fall
// behind by more than their buffer are disconnected.
type Hub struct {
	logger  logrus.FieldLogger
	metrics *metrics.Metrics

	mu      sync.RWMutex
	closed  bool
	clients map[*client]struct{}
}

func NewHub(logger logrus.FieldLogger, m *metrics.Metrics) *Hub {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Hub{
		logger:  logger.WithField("component", "hub"),
		metrics: m,
		clients: make(map[*client]struct{}),
	}
}

func (h *Hub) Name() string { return "hub" }

// Deliver pushes event to every connected client.
func (h *Hub) Deliver(_ context.Context, event types.Event) error {
	payload, err := json.Marshal(realtimeMessage{Event: event.Name, Data: event.Data})
	if err != nil {
		return err
	}
	h.broadcast(payload)
	return nil
}

// Clients reports the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) broadcast(payload []byte) {
	var slow []*client

	h.mu.RLock()
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.WithField("user_id", c.userID).Warn("realtime client too slow, disconnecting")
		h.unregister(c)
	}
}

// Serve pumps events to conn until the peer goes away or the hub closes.
// It blocks for the lifetime of the connection.
func (h *Hub) Serve(conn *websocket.Conn, userID int) {
	c := &client{conn: conn, userID: userID, send: make(chan []byte, clientBuffer)}
	if !h.register(c) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}

	go h.writePump(c)
	h.readPump(c)
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := h.clients
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()

	for c := range clients {
		c.close()
		h.metrics.ClientDisconnected()
	}
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	h.metrics.ClientConnected()
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()

	if ok {
		c.close()
		h.metrics.ClientDisconnected()
	}
}

// readPump discards client frames; it exists to process pongs and notice
// disconnects.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxClientFrame)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
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
