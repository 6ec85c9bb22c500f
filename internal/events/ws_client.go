package events

import (
	"encoding/json"
	"sync"
	"time"

	"civicdesk/backend/internal/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 64
)

// WebSocketClient streams the events an authenticated user may see.
type WebSocketClient struct {
	id     string
	actor  models.Actor
	conn   *websocket.Conn
	hub    *Hub
	send   chan models.ComplaintEvent
	once   sync.Once
	logger *zap.Logger
}

// NewWebSocketClient wraps an upgraded connection.
func NewWebSocketClient(hub *Hub, conn *websocket.Conn, actor models.Actor, logger *zap.Logger) *WebSocketClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebSocketClient{
		id:     "ws:" + actor.UserID + ":" + uuid.New().String(),
		actor:  actor,
		conn:   conn,
		hub:    hub,
		send:   make(chan models.ComplaintEvent, sendBuffer),
		logger: logger,
	}
}

func (c *WebSocketClient) ID() string { return c.id }

func (c *WebSocketClient) Wants(ev models.ComplaintEvent) bool { return Visible(c.actor, ev) }

func (c *WebSocketClient) Deliver(ev models.ComplaintEvent) bool {
	select {
	case c.send <- ev:
		return true
	default:
		return false
	}
}

// Close stops the write pump, which closes the connection.
func (c *WebSocketClient) Close() {
	c.once.Do(func() { close(c.send) })
}

// Run registers the client and starts its pumps.
func (c *WebSocketClient) Run() error {
	if err := c.hub.Register(c); err != nil {
		c.conn.Close()
		return err
	}
	go c.writePump()
	go c.readPump()
	return nil
}

// readPump only services control frames; clients do not send events.
func (c *WebSocketClient) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Debug("websocket read failed", zap.String("subscriber", c.id), zap.Error(err))
			}
			return
		}
	}
}

func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				c.logger.Error("encode event", zap.String("subscriber", c.id), zap.Error(err))
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
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
