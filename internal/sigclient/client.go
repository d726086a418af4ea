// Package sigclient is the client side of the broker's websocket protocol.
// It keeps the connection alive with pings and exposes the stream of parsed
// envelopes; it does not interpret them.
package sigclient

import (
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/peercall/peercall/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// Client manages the WebSocket connection to the signaling broker.
type Client struct {
	conn     *websocket.Conn
	incoming chan *protocol.Envelope
	outgoing chan *protocol.Envelope
	done     chan struct{}

	mu     sync.Mutex
	closed bool
}

// Dial connects to the broker at serverURL and starts the read/write pumps.
func Dial(serverURL string) (*Client, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	c := &Client{
		conn:     conn,
		incoming: make(chan *protocol.Envelope, 16),
		outgoing: make(chan *protocol.Envelope, 16),
		done:     make(chan struct{}),
	}

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go c.readPump()
	go c.writePump()

	return c, nil
}

// readPump reads envelopes until the connection drops, then closes the
// incoming channel so the consumer sees the disconnect.
func (c *Client) readPump() {
	defer func() {
		c.conn.Close()
		close(c.incoming)
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		var env protocol.Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			return
		}
		c.incoming <- &env
	}
}

// writePump serializes all writes: outgoing envelopes, keepalive pings, and
// the final close frame.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case env := <-c.outgoing:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(env); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// Send queues an envelope for delivery. Returns an error once the client is
// closed or the write queue is saturated.
func (c *Client) Send(env *protocol.Envelope) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("signaling client closed")
	}
	c.mu.Unlock()

	select {
	case c.outgoing <- env:
		return nil
	case <-c.done:
		return fmt.Errorf("signaling client closed")
	case <-time.After(writeWait):
		return fmt.Errorf("signaling write queue full")
	}
}

// Incoming returns the stream of envelopes from the broker. The channel
// closes when the connection is lost or Close is called.
func (c *Client) Incoming() <-chan *protocol.Envelope {
	return c.incoming
}

// Close sends a close frame and releases the connection. Idempotent.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	close(c.done)
}
