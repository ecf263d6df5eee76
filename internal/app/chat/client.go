package chat

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"convochat/internal/pkg/logx"
)

const (
	// timeout duration for writing to the WebSocket connection.
	writeWait = 10 * time.Second

	// maximum time allowed for the server to wait for a Pong message from the client.
	pongWait = 60 * time.Second

	// frequency at which the server sends a Ping message.
	pingPeriod = (pongWait * 9) / 10

	// maximum allowed size (in bytes) of a frame sent by the client.
	maxFrameSize = 16 * 1024

	// DefaultSendQueueSize is the outbound queue capacity of a connection.
	DefaultSendQueueSize = 256
)

// Client is one live connection. The Hub is the only writer to send and the only one to close it.
type Client struct {
	// ID is unique per live socket.
	ID string

	// nil for in-process connections used by tests.
	conn *websocket.Conn

	send chan []byte

	manager *Manager

	// limiter throttles send_message.
	limiter *rate.Limiter

	mu    sync.Mutex
	rooms map[string]struct{}

	// closed is set once by Manager.Disconnect; later events are ignored.
	closed atomic.Bool

	logger zerolog.Logger
}

func newClient(m *Manager, id string, conn *websocket.Conn, queueSize int, limiter *rate.Limiter) *Client {
	return &Client{
		ID:      id,
		conn:    conn,
		send:    make(chan []byte, queueSize),
		manager: m,
		limiter: limiter,
		rooms:   make(map[string]struct{}),
		logger:  logx.Component("client").With().Str("conn_id", id).Logger(),
	}
}

// InRoom reports whether the connection joined conversationID.
func (c *Client) InRoom(conversationID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.rooms[conversationID]
	return ok
}

// RoomCount returns how many rooms the connection joined.
func (c *Client) RoomCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.rooms)
}

func (c *Client) addRoom(conversationID string) {
	c.mu.Lock()
	c.rooms[conversationID] = struct{}{}
	c.mu.Unlock()
}

func (c *Client) removeRoom(conversationID string) {
	c.mu.Lock()
	delete(c.rooms, conversationID)
	c.mu.Unlock()
}

// ReadPump reads frames and dispatches them one at a time, so events from one connection are
// handled in the order received. It runs the disconnect cleanup when the socket ends.
func (c *Client) ReadPump() {
	defer func() {
		c.manager.Disconnect(c)

		if err := c.conn.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("Client connection close error")
		}
	}()

	c.conn.SetReadLimit(maxFrameSize)

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info().Err(err).Msg("Error reading message (Client close/going away)")
			}
			return
		}

		if messageType != websocket.TextMessage {
			continue
		}

		c.manager.HandleFrame(c, data)
	}
}

// WritePump drains the send queue to the socket and keeps the connection alive with pings.
// A closed queue means the Hub dropped the client; a close frame is sent and the socket closed.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()

		if err := c.conn.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("Client connection close error in WritePump")
		}
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !c.writeQueuedMessage(message, ok) {
				return
			}

		case <-ticker.C:
			if !c.writePingMessage() {
				return
			}
		}
	}
}

// writeQueuedMessage returns false when the pump should stop.
func (c *Client) writeQueuedMessage(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline")
		return false
	}

	if !ok {
		if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
			c.logger.Debug().Err(err).Msg("Error writing close message")
		}
		return false
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		c.logger.Warn().Err(err).Msg("Error writing message")
		return false
	}

	return true
}

func (c *Client) writePingMessage() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline on ping")
		return false
	}

	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.logger.Debug().Err(err).Msg("Error writing ping")
		return false
	}

	return true
}

// enqueue hands frame to the Hub for this connection only.
func (c *Client) enqueue(ctx context.Context, eventType string, payload any) {
	data, err := EncodeEvent(eventType, payload)
	if err != nil {
		c.logger.Error().Err(err).Str("event", eventType).Msg("Failed to encode event")
		return
	}

	if err := c.manager.hub.Send(ctx, c, data); err != nil {
		c.logger.Debug().Err(err).Str("event", eventType).Msg("Event not queued")
	}
}
