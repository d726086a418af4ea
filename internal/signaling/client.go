package signaling

import (
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. 64 KB is plenty for SDP.
	maxMessageSize = 64 * 1024
)

// Client wraps a single websocket connection to the broker.
type Client struct {
	// ID is the registry-assigned connection id.
	ID string

	Hub  *Hub
	Conn *websocket.Conn

	// RoomID is the room this connection belongs to, empty until a join is
	// admitted. Mutated only by the hub goroutine.
	RoomID string

	// Send is the buffered outbound queue drained by WritePump. Closed only
	// by the hub, exactly once.
	Send chan []byte

	sendClosed bool
}

// closeSend shuts the outbound queue. Called only from the hub goroutine so
// the flag needs no lock. Closing Send makes WritePump emit a close frame
// and drop the connection after the queue drains.
func (c *Client) closeSend() {
	if c.sendClosed {
		return
	}
	c.sendClosed = true
	close(c.Send)
}

// ReadPump pumps raw messages from the websocket connection to the hub.
//
// The application runs ReadPump in a per-connection goroutine; all reads on
// a connection happen from this one goroutine.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				slog.Debug("websocket read error", "conn", c.ID, "err", err)
			}
			return
		}
		c.Hub.Inbound <- &inbound{client: c, data: data}
	}
}

// WritePump pumps queued messages to the websocket connection and sends
// periodic pings. All writes on a connection happen from this one goroutine.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the queue.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// enqueue queues data for delivery, dropping it if the client is overwhelmed
// or already being torn down. Relay is best-effort: a peer that cannot keep
// up is about to disconnect anyway, which independently triggers peerLeft.
func (c *Client) enqueue(data []byte) {
	if c.sendClosed {
		return
	}
	select {
	case c.Send <- data:
	default:
		slog.Warn("dropping message for slow client", "conn", c.ID)
	}
}
