// Package events fans out library and scheduler events to websocket clients.
package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"RingCut/logger"

	"github.com/gorilla/websocket"
)

// Type 事件类型
type Type string

const (
	TypeRingtoneCreated Type = "ringtone_created"
	TypeRingtoneUpdated Type = "ringtone_updated"
	TypeAssetImported   Type = "asset_imported"
	TypeAssetRemoved    Type = "asset_removed"
	TypeScheduleFired   Type = "schedule_fired"
	TypeScheduleChanged Type = "schedule_changed"
	TypePing            Type = "ping"
	TypePong            Type = "pong"
)

// Message is the JSON envelope sent to clients.
type Message struct {
	Type      Type            `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// Publisher accepts events. Implementations must not block the caller.
type Publisher interface {
	Publish(t Type, data interface{})
}

type discard struct{}

func (discard) Publish(Type, interface{}) {}

// Discard drops every event.
var Discard Publisher = discard{}

const (
	sendBuffer     = 64
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 4096
)

// Client WebSocket 客户端
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte   // closed by the hub
	pong chan struct{} // never closed; readPump signals, writePump answers
}

// Hub WebSocket 管理中心. A single goroutine (Run) owns the client set.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	done       chan struct{}
	stopOnce   sync.Once

	mu    sync.RWMutex
	count int
}

// NewHub 创建 Hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 256),
		done:       make(chan struct{}),
	}
}

// Run 运行 Hub 主循环
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			h.setCount(len(h.clients))
			logger.Debug("event client registered", logger.Int("clients", len(h.clients)))

		case client := <-h.unregister:
			h.remove(client)

		case msg := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- msg:
				default:
					// slow consumer
					h.remove(client)
				}
			}

		case <-h.done:
			for client := range h.clients {
				close(client.send)
			}
			h.clients = make(map[*Client]bool)
			h.setCount(0)
			return
		}
	}
}

func (h *Hub) remove(client *Client) {
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
		h.setCount(len(h.clients))
		logger.Debug("event client unregistered", logger.Int("clients", len(h.clients)))
	}
}

func (h *Hub) setCount(n int) {
	h.mu.Lock()
	h.count = n
	h.mu.Unlock()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// Stop 停止 Hub
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// Publish encodes data and queues it for every client. Events are dropped when the queue is full.
func (h *Hub) Publish(t Type, data interface{}) {
	msg, err := encode(t, data)
	if err != nil {
		logger.Error("failed to encode event", logger.String("type", string(t)), logger.ErrorField(err))
		return
	}
	select {
	case h.broadcast <- msg:
	case <-h.done:
	default:
		logger.Warn("event queue full, dropping event", logger.String("type", string(t)))
	}
}

func encode(t Type, data interface{}) ([]byte, error) {
	m := Message{Type: t, Timestamp: time.Now().UnixMilli()}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		m.Data = raw
	}
	return json.Marshal(m)
}

// Attach registers conn with the hub and starts its pumps. It returns once the client is registered.
func (h *Hub) Attach(ctx context.Context, conn *websocket.Conn) {
	c := &Client{hub: h, conn: conn, send: make(chan []byte, sendBuffer), pong: make(chan struct{}, 1)}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}
	go c.writePump()
	go c.readPump(ctx)
}

// readPump only answers pings; clients do not send commands.
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if ctx.Err() != nil {
			return
		}
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("websocket read error", logger.ErrorField(err))
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil || msg.Type != TypePing {
			continue
		}
		select {
		case c.pong <- struct{}{}:
		default:
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
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-c.pong:
			pong, err := encode(TypePong, nil)
			if err != nil {
				continue
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, pong); err != nil {
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
