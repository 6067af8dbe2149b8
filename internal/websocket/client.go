// Package websocket is the server-side transport: one persistent
// bidirectional connection per authenticated user, registered in the
// connection registry for the lifetime of the socket.
package websocket

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/nfrund/parley/internal/dispatch"
	"github.com/nfrund/parley/internal/pubsub"
	"github.com/nfrund/parley/internal/registry"
)

const (
	// sendBufferSize bounds the per-connection outbound queue.
	sendBufferSize = 256
	// writeTimeout caps a single frame write to a slow client.
	writeTimeout = 10 * time.Second
)

var (
	// ErrConnectionClosed is returned by Send after the client has been
	// closed; the dispatcher treats the recipient as offline.
	ErrConnectionClosed = errors.New("connection closed")
	// ErrSendBufferFull is returned when the client cannot keep up.
	ErrSendBufferFull = errors.New("send buffer full")
)

// Client is a single live WebSocket connection for one user. It
// implements registry.Handle.
type Client struct {
	userID    string
	conn      *websocket.Conn
	send      chan []byte
	registry  *registry.Registry
	publisher pubsub.Publisher

	mu     sync.RWMutex
	closed bool
}

// newClient wires a freshly accepted connection. The caller registers it
// and starts the pumps.
func newClient(userID string, conn *websocket.Conn, reg *registry.Registry, pub pubsub.Publisher) *Client {
	return &Client{
		userID:    userID,
		conn:      conn,
		send:      make(chan []byte, sendBufferSize),
		registry:  reg,
		publisher: pub,
	}
}

// Send queues a payload for delivery without blocking. A closed client or
// a full buffer yields an error; neither aborts the caller's dispatch to
// other recipients.
func (c *Client) Send(payload []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return ErrConnectionClosed
	}
	select {
	case c.send <- payload:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close terminates the connection. It is idempotent; the registry calls
// it when a newer connection supersedes this one.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	c.mu.Unlock()
}

// readPump reads envelopes off the connection and publishes them to the
// fan-out topic in arrival order. When the transport signals close or
// error it unregisters the client immediately; there is no graceful drain.
func (c *Client) readPump() {
	defer func() {
		c.registry.Unregister(c)
		c.Close()
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		_, payload, err := c.conn.Read(context.Background())
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				slog.Info("WebSocket closed by client", "userID", c.userID)
			} else if err != io.EOF {
				slog.Error("WebSocket read error", "userID", c.userID, "error", err)
			}
			return
		}

		msg := pubsub.Message{
			Topic:   dispatch.TopicOutbound,
			UserID:  c.userID,
			Payload: payload,
		}
		if err := c.publisher.Publish(context.Background(), msg); err != nil {
			slog.Error("Failed to publish inbound envelope", "userID", c.userID, "error", err)
		}
	}
}

// writePump drains the send channel onto the wire. It exits when Close
// closes the channel or a write fails.
func (c *Client) writePump() {
	defer c.conn.Close(websocket.StatusNormalClosure, "")

	for payload := range c.send {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := c.conn.Write(ctx, websocket.MessageText, payload)
		cancel()
		if err != nil {
			slog.Debug("WebSocket write failed", "userID", c.userID, "error", err)
			return
		}
	}
}
