package hub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Sumit-1011/CampusXchange/chat-service/internal/config"
	"github.com/Sumit-1011/CampusXchange/chat-service/internal/domain"
	"github.com/Sumit-1011/CampusXchange/pkg/log"
)

// Client is a gorilla/websocket connection served by a read and a write pump.
type Client struct {
	id      string
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	session *domain.Session
	config  config.WebSocketConfig
	mu      sync.Mutex
	closed  bool
}

func NewClient(h *Hub, conn *websocket.Conn, session *domain.Session, cfg config.WebSocketConfig) *Client {
	buf := cfg.SendBuffer
	if buf <= 0 {
		buf = 256
	}
	return &Client{
		id:      session.ID,
		hub:     h,
		conn:    conn,
		send:    make(chan []byte, buf),
		session: session,
		config:  cfg,
	}
}

func (c *Client) ID() string { return c.id }

func (c *Client) Session() *domain.Session { return c.session }

func (c *Client) Send(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// SendJSON encodes message and queues it for this connection only.
func (c *Client) SendJSON(message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	if !c.Send(data) {
		return ErrSendBufferFull
	}
	return nil
}

// Close stops the write pump, which sends a close frame.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// ReadPump reads frames until the peer goes away and hands each one to
// handler in arrival order.
func (c *Client) ReadPump(ctx context.Context, handler func(context.Context, *Client, []byte)) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	if c.config.MaxMessageSize > 0 {
		c.conn.SetReadLimit(c.config.MaxMessageSize)
	}
	c.conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				l := log.Ctx(ctx)
				l.Warn().Err(err).Msg("websocket read error")
			}
			return
		}

		c.session.UpdateActivity()
		c.dispatch(ctx, handler, message)
	}
}

func (c *Client) dispatch(ctx context.Context, handler func(context.Context, *Client, []byte), message []byte) {
	defer func() {
		if r := recover(); r != nil {
			l := log.Ctx(ctx)
			l.Error().Interface("panic", r).Msg("recovered from panic in frame handler")
			_ = c.SendJSON(domain.NewErrorMessage(domain.ErrCodeInternalError, "internal error"))
		}
	}()
	handler(ctx, c, message)
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(c.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
