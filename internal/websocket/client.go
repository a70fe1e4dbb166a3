package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const sendBufferSize = 256

// Client is one replica connection. Outgoing frames go through Enqueue; the
// write pump owns the connection for writes.
type Client struct {
	ID      string
	ActorID string
	Conn    *websocket.Conn
	Manager *Manager
	Send    chan []byte

	mu     sync.Mutex
	closed bool
}

func NewClient(id, actorID string, conn *websocket.Conn, manager *Manager) *Client {
	return &Client{
		ID:      id,
		ActorID: actorID,
		Conn:    conn,
		Manager: manager,
		Send:    make(chan []byte, sendBufferSize),
	}
}

// Enqueue queues one frame for the write pump. It reports false when the
// client is closed or its buffer is full.
func (c *Client) Enqueue(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.Send <- frame:
		return true
	default:
		return false
	}
}

// close stops the write pump. Safe to call more than once.
func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}

// ReadPump forwards inbound frames to the manager until the peer goes away or
// stops answering pings within the manager's pong wait.
func (c *Client) ReadPump() {
	opts := c.Manager.opts
	defer func() {
		c.Manager.Unregister <- c
		c.Conn.Close()
	}()

	if opts.MaxMessageSize > 0 {
		c.Conn.SetReadLimit(opts.MaxMessageSize)
	}
	c.Conn.SetReadDeadline(time.Now().Add(opts.PongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(opts.PongWait))
	})

	for {
		_, frame, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Manager.logger.Warn("unexpected close",
					zap.String("client_id", c.ID),
					zap.String("actor_id", c.ActorID),
					zap.Error(err))
			}
			return
		}

		c.Manager.HandleMessage <- &ClientMessage{Client: c, Message: frame}
	}
}

// WritePump sends every queued message as its own text frame, so each frame
// is a complete JSON document, and pings the peer every ping period.
func (c *Client) WritePump() {
	opts := c.Manager.opts
	ticker := time.NewTicker(opts.PingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(opts.WriteWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.Manager.logger.Debug("write failed", zap.String("client_id", c.ID), zap.Error(err))
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(opts.WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
