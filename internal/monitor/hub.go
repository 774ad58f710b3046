package monitor

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"matchbook/internal/common"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	sendBufferSize = 256
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	writeWait      = 10 * time.Second
)

func newUpgrader(origins []string) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return originAllowed(r.Header.Get("Origin"), origins)
		},
	}
}

// originAllowed checks a websocket upgrade against the CORS origin list, with
// the same wildcard rules as rs/cors. Requests without an Origin header are
// not from browsers and pass.
func originAllowed(origin string, allowed []string) bool {
	if origin == "" || len(allowed) == 0 {
		return true
	}
	origin = strings.ToLower(origin)
	for _, pattern := range allowed {
		pattern = strings.ToLower(pattern)
		if pattern == "*" || pattern == origin {
			return true
		}
		if prefix, suffix, ok := strings.Cut(pattern, "*"); ok &&
			len(origin) >= len(prefix)+len(suffix) &&
			strings.HasPrefix(origin, prefix) && strings.HasSuffix(origin, suffix) {
			return true
		}
	}
	return false
}

// Message is what WebSocket subscribers receive.
type Message struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
	Data    any    `json:"data"`
}

// SubscribeRequest is what WebSocket clients send, e.g.
// {"op":"subscribe","channels":["trades:AAPL"]}.
type SubscribeRequest struct {
	Op       string   `json:"op"`
	Channels []string `json:"channels"`
}

func TradeChannel(symbol string) string { return "trades:" + symbol }
func OrderChannel(symbol string) string { return "orders:" + symbol }

// Hub streams engine events to WebSocket subscribers. It is an engine
// Reporter: broadcasts never block, slow clients just miss messages.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*client]struct{})}
}

func (h *Hub) ReportTrade(trade common.Trade) error {
	h.Broadcast(TradeChannel(trade.Symbol), "trade", trade)
	return nil
}

func (h *Hub) ReportOrder(order common.Order) error {
	h.Broadcast(OrderChannel(order.Symbol), "order", order)
	return nil
}

// Broadcast sends data to every client subscribed to the channel.
func (h *Hub) Broadcast(channel, kind string, data any) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var message []byte
	for c := range h.clients {
		if !c.isSubscribed(channel) {
			continue
		}
		if message == nil {
			var err error
			message, err = json.Marshal(Message{Type: kind, Channel: channel, Data: data})
			if err != nil {
				log.Error().Err(err).Str("channel", channel).Msg("unable to marshal message")
				return
			}
		}
		select {
		case c.send <- message:
		default:
			log.Warn().Str("client", c.id).Msg("client send buffer full, message dropped")
		}
	}
}

// Subscribers counts clients subscribed to a channel.
func (h *Hub) Subscribers(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for c := range h.clients {
		if c.isSubscribed(channel) {
			n++
		}
	}
	return n
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

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	log.Info().Str("client", c.id).Int("total", n).Msg("websocket client connected")
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		log.Info().Str("client", c.id).Int("total", len(h.clients)).Msg("websocket client disconnected")
	}
}

// Handler upgrades requests from the allowed origins and runs each client
// until it disconnects.
func (h *Hub) Handler(origins []string) http.HandlerFunc {
	upgrader := newUpgrader(origins)
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn().Err(err).Str("origin", r.Header.Get("Origin")).Msg("websocket upgrade failed")
			return
		}
		h.serve(conn)
	}
}

func (h *Hub) serve(conn *websocket.Conn) {

	c := &client{
		hub:           h,
		conn:          conn,
		send:          make(chan []byte, sendBufferSize),
		id:            conn.RemoteAddr().String(),
		subscriptions: make(map[string]bool),
	}
	h.register(c)

	go c.writePump()
	go c.readPump()
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	id   string

	subsMu        sync.RWMutex
	subscriptions map[string]bool
}

func (c *client) isSubscribed(channel string) bool {
	c.subsMu.RLock()
	defer c.subsMu.RUnlock()
	return c.subscriptions[channel]
}

func (c *client) subscribe(channels []string, on bool) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	for _, channel := range channels {
		if on {
			c.subscriptions[channel] = true
		} else {
			delete(c.subscriptions, channel)
		}
	}
}

// readPump handles subscription requests until the connection drops.
func (c *client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Str("client", c.id).Msg("websocket read error")
			}
			return
		}

		var req SubscribeRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			log.Warn().Err(err).Str("client", c.id).Msg("invalid websocket request")
			continue
		}
		switch req.Op {
		case "subscribe":
			c.subscribe(req.Channels, true)
		case "unsubscribe":
			c.subscribe(req.Channels, false)
		default:
			log.Warn().Str("client", c.id).Str("op", req.Op).Msg("unknown websocket op")
		}
	}
}

// writePump writes one message per frame and keeps the connection alive.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
