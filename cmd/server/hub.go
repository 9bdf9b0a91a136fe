package main

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/nshruti113/ddos-detector/internal/detection"
	"github.com/nshruti113/ddos-detector/internal/logging"
	"github.com/nshruti113/ddos-detector/internal/models"
)

const (
	writeWait      = 5 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	clientSendSize = 64
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// message is the envelope pushed to dashboard clients
type message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type client struct {
	conn   *websocket.Conn
	remote string
	send   chan []byte
}

// Hub fans alerts and periodic stats out to WebSocket clients. Each client
// has its own writer goroutine; a client that cannot keep up is dropped.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	log     zerolog.Logger
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[*client]struct{}),
		log:     logging.Component("websocket"),
	}
}

func (h *Hub) Name() string { return "websocket" }

// Publish implements detection.AlertSink
func (h *Hub) Publish(_ context.Context, alert models.Alert) error {
	return h.broadcast(message{Type: "alert", Payload: alert})
}

func (h *Hub) broadcast(msg message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.log.Warn().Str("remote", c.remote).Msg("slow websocket client dropped")
			h.removeLocked(c)
		}
	}
	return nil
}

// Len returns the number of connected clients
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	h.removeLocked(c)
	h.mu.Unlock()
}

func (h *Hub) removeLocked(c *client) {
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// ServeWS upgrades the request and runs the client until it disconnects
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &client{
		conn:   conn,
		remote: conn.RemoteAddr().String(),
		send:   make(chan []byte, clientSendSize),
	}
	h.add(c)
	h.log.Info().Str("remote", c.remote).Msg("new websocket client connected")

	go h.writePump(c)
	h.readPump(c)
}

// readPump discards client messages and detects disconnects
func (h *Hub) readPump(c *client) {
	defer func() {
		h.remove(c)
		_ = c.conn.Close()
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug().Err(err).Msg("websocket read error")
			}
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
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
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

// statsBroadcaster pushes an engine snapshot to dashboard clients on a
// fixed interval. It is a suture service.
type statsBroadcaster struct {
	hub      *Hub
	engine   *detection.Engine
	interval time.Duration
}

func (s *statsBroadcaster) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if s.hub.Len() == 0 {
				continue
			}
			if err := s.hub.broadcast(message{Type: "stats", Payload: s.engine.Statistics()}); err != nil {
				s.hub.log.Warn().Err(err).Msg("stats broadcast failed")
			}
		}
	}
}
