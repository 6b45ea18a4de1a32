package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/kimhsiao/pawtrail/core/internal/logging"
	syncpkg "github.com/kimhsiao/pawtrail/core/internal/sync"
	"github.com/kimhsiao/pawtrail/core/internal/uuid"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	writeWait  = 10 * time.Second
	sendBuffer = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     localOrigin,
}

// localOrigin only admits pages served from this machine.
func localOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return strings.HasPrefix(origin, "http://localhost") || strings.HasPrefix(origin, "http://127.0.0.1")
}

// WSClient represents a WebSocket client connection.
type WSClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	hub  *WSHub

	mu            sync.Mutex
	subscriptions map[string]bool
}

// wants reports whether the client should receive eventType. A client with
// no subscriptions receives everything.
func (c *WSClient) wants(eventType string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subscriptions) == 0 || c.subscriptions[eventType]
}

// WSHub fans sync events out to connected desktop clients. It implements
// sync.EventHandler.
type WSHub struct {
	clients    map[string]*WSClient
	broadcast  chan syncpkg.SyncEvent
	register   chan *WSClient
	unregister chan *WSClient
	done       chan struct{}
	log        *zap.Logger
}

// WSEnvelope wraps all WebSocket messages.
type WSEnvelope struct {
	Type      string            `json:"type"`
	Data      syncpkg.SyncEvent `json:"data"`
	Timestamp int64             `json:"timestamp"`
}

// NewWSHub creates a hub. Call Run to start delivering.
func NewWSHub() *WSHub {
	return &WSHub{
		clients:    make(map[string]*WSClient),
		broadcast:  make(chan syncpkg.SyncEvent, 256),
		register:   make(chan *WSClient),
		unregister: make(chan *WSClient),
		done:       make(chan struct{}),
		log:        logging.Named("ws"),
	}
}

// Run manages client connections and broadcasts until ctx is cancelled.
func (h *WSHub) Run(ctx context.Context) error {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for id, client := range h.clients {
				close(client.send)
				delete(h.clients, id)
			}
			return nil

		case client := <-h.register:
			h.clients[client.id] = client
			h.log.Debug("client connected", zap.String("client_id", client.id), zap.Int("total", len(h.clients)))

		case client := <-h.unregister:
			if _, ok := h.clients[client.id]; ok {
				delete(h.clients, client.id)
				close(client.send)
			}
			h.log.Debug("client disconnected", zap.String("client_id", client.id), zap.Int("total", len(h.clients)))

		case event := <-h.broadcast:
			message, err := json.Marshal(WSEnvelope{Type: event.Type, Data: event, Timestamp: event.Time.Unix()})
			if err != nil {
				h.log.Warn("failed to marshal event", zap.Error(err))
				continue
			}
			for id, client := range h.clients {
				if !client.wants(event.Type) {
					continue
				}
				select {
				case client.send <- message:
				default:
					// Slow client; drop it rather than stall the hub.
					close(client.send)
					delete(h.clients, id)
				}
			}
		}
	}
}

// OnSyncEvent implements sync.EventHandler. It never blocks the engine; an
// event is dropped when the hub is backed up or stopped.
func (h *WSHub) OnSyncEvent(event syncpkg.SyncEvent) {
	select {
	case h.broadcast <- event:
	default:
		h.log.Warn("dropping sync event", zap.String("type", event.Type))
	}
}

// readPump pumps messages from the WebSocket connection.
func (c *WSClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Debug("read error", zap.String("client_id", c.id), zap.Error(err))
			}
			return
		}

		var msg struct {
			Action string   `json:"action"`
			Events []string `json:"events"`
		}
		if err := json.Unmarshal(message, &msg); err != nil {
			c.hub.log.Debug("invalid message format", zap.String("client_id", c.id), zap.Error(err))
			continue
		}

		switch msg.Action {
		case "subscribe":
			c.mu.Lock()
			for _, e := range msg.Events {
				c.subscriptions[e] = true
			}
			c.mu.Unlock()
			c.reply(map[string]any{"action": "subscribe_ack", "subscribed": msg.Events})

		case "unsubscribe":
			c.mu.Lock()
			for _, e := range msg.Events {
				delete(c.subscriptions, e)
			}
			c.mu.Unlock()

		case "ping":
			c.reply(map[string]any{"action": "pong"})
		}
	}
}

// writePump pumps messages to the WebSocket connection.
func (c *WSClient) writePump() {
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

// reply queues a control message for this client only. It may be called
// after the hub closed send, so a closed channel is tolerated.
func (c *WSClient) reply(body map[string]any) {
	body["timestamp"] = time.Now().Unix()
	data, err := json.Marshal(body)
	if err != nil {
		return
	}
	defer func() { _ = recover() }()
	select {
	case c.send <- data:
	default:
	}
}

// HandleWebSocket upgrades the request and registers the client with hub.
func HandleWebSocket(hub *WSHub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			hub.log.Debug("failed to upgrade", zap.Error(err))
			return
		}

		client := &WSClient{
			id:            uuid.New(),
			conn:          conn,
			send:          make(chan []byte, sendBuffer),
			hub:           hub,
			subscriptions: make(map[string]bool),
		}

		select {
		case hub.register <- client:
		case <-hub.done:
			conn.Close()
			return
		}

		go client.writePump()
		go client.readPump()
	}
}
