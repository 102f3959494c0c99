package hub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/weiawesome/wes-io-live/chat-core/internal/config"
	"github.com/weiawesome/wes-io-live/chat-core/internal/domain"
	"github.com/weiawesome/wes-io-live/chat-core/pkg/log"
)

var (
	ErrClientClosed  = errors.New("client closed")
	ErrSendQueueFull = errors.New("client send queue full")
)

const defaultSendBuffer = 256

type Client struct {
	ID      string
	Hub     *Hub
	Conn    *websocket.Conn
	Send    chan []byte
	Session *domain.Session
	config  config.WebSocketConfig

	ctx    context.Context
	mu     sync.Mutex
	closed bool
}

// NewClient wraps conn. ctx carries the request logger; the client adds its
// connection id to it.
func NewClient(ctx context.Context, id string, hub *Hub, conn *websocket.Conn) *Client {
	size := hub.config.SendBuffer
	if size <= 0 {
		size = defaultSendBuffer
	}
	return &Client{
		ID:      id,
		Hub:     hub,
		Conn:    conn,
		Send:    make(chan []byte, size),
		Session: domain.NewSession(id),
		config:  hub.config,
		ctx: log.With(ctx, func(c zerolog.Context) zerolog.Context {
			return c.Str(log.FieldConnectionID, id)
		}),
	}
}

// Context returns the connection-scoped context.
func (c *Client) Context() context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ctx
}

// BindMember adds the authenticated member to the connection logger.
func (c *Client) BindMember(id domain.MemberID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ctx = log.With(c.ctx, func(lc zerolog.Context) zerolog.Context {
		return lc.Int64(log.FieldMemberID, int64(id))
	})
}

// ReadPump reads frames until the connection fails or is closed, then runs
// onClose. It must run in its own goroutine.
func (c *Client) ReadPump(handler func(*Client, []byte), onClose func(*Client)) {
	defer func() {
		if onClose != nil {
			onClose(c)
		}
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				l := log.Ctx(c.Context())
				l.Warn().Err(err).Msg("websocket read error")
			}
			break
		}

		if c.Session.IsClosed() {
			continue
		}
		c.Session.UpdateActivity()

		handler(c, message)
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(c.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendFrame queues a frame for this client only.
func (c *Client) SendFrame(frame *domain.Frame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientClosed
	}
	select {
	case c.Send <- data:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// Close detaches the client from the hub. Queued frames are flushed before
// the socket is closed.
func (c *Client) Close() {
	c.Hub.Unregister(c)
}

func (c *Client) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}
