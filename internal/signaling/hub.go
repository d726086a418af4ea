// Package signaling implements the room broker: it admits websocket
// connections into two-party rooms, designates which member initiates the
// offer, and relays negotiation payloads verbatim between the members. It
// never touches media and never parses relayed payloads beyond the routing
// header.
package signaling

import (
	"encoding/json"
	"log/slog"

	"github.com/peercall/peercall/internal/protocol"
)

// inbound is one raw message read from a client connection.
type inbound struct {
	client *Client
	data   []byte
}

// Hub owns the room table. All room mutation happens on the single Run
// goroutine, so a join that completes admission can never interleave with a
// relay or leave for the same room.
type Hub struct {
	rooms    map[string]*Room
	registry *Registry

	// Register is fed by the websocket handler for each new connection.
	Register chan *Client

	// Unregister is fed by ReadPump when a connection drops. Transport
	// close is semantically an implicit leave.
	Unregister chan *Client

	// Inbound carries every message read from any client.
	Inbound chan *inbound
}

// NewHub creates a Hub backed by reg.
func NewHub(reg *Registry) *Hub {
	return &Hub{
		rooms:      make(map[string]*Room),
		registry:   reg,
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		Inbound:    make(chan *inbound, 64),
	}
}

// Run is the hub's event loop. It must be started exactly once, in its own
// goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			// Not in a room yet; admission happens on the join message.
			slog.Info("client connected", "conn", client.ID, "addr", client.Conn.RemoteAddr())

		case client := <-h.Unregister:
			h.handleLeave(client)
			h.registry.Remove(client.ID)
			client.closeSend()
			slog.Info("client disconnected", "conn", client.ID)

		case msg := <-h.Inbound:
			h.handleMessage(msg.client, msg.data)
		}
	}
}

// handleMessage routes one raw client message: join requests are handled by
// the broker itself, everything else is relayed opaquely.
func (h *Hub) handleMessage(c *Client, data []byte) {
	header, err := protocol.ParseHeader(data)
	if err != nil {
		// Malformed input never kills the connection, only the message.
		slog.Warn("ignoring malformed message", "conn", c.ID, "err", err)
		return
	}

	if header.Type == protocol.TypeJoin {
		h.handleJoin(c, header.RoomID)
		return
	}
	h.handleRelay(c, data)
}

// handleJoin admits c into the room named roomID, creating the room on
// first join. A full room rejects the joiner with an error message and
// closes the connection; membership is never partially granted. When the
// room reaches two members the first-joined member, and only it, is told to
// create the offer.
func (h *Hub) handleJoin(c *Client, roomID string) {
	if c.RoomID != "" {
		slog.Warn("join from client already in a room", "conn", c.ID, "room", c.RoomID)
		return
	}
	if roomID == "" {
		slog.Warn("join without room id", "conn", c.ID)
		return
	}

	room, ok := h.rooms[roomID]
	if !ok {
		room = newRoom(roomID)
		h.rooms[roomID] = room
		slog.Info("room created", "room", roomID)
	}

	if room.full() {
		slog.Info("room full, rejecting join", "room", roomID, "conn", c.ID)
		c.enqueue(marshal(&protocol.Envelope{Error: "room is full"}))
		c.closeSend()
		return
	}

	room.add(c)
	c.RoomID = roomID
	slog.Info("client joined room", "room", roomID, "conn", c.ID, "members", len(room.members))

	if room.full() {
		// Deterministic role assignment: the earliest joiner offers.
		room.first().enqueue(marshal(&protocol.Envelope{Type: protocol.TypeCreateOffer}))
	}
}

// handleRelay forwards data verbatim to the other member of c's room. A
// client with no room, or alone in its room, is a benign no-op: messages
// race with joins and disconnects and must not error.
func (h *Hub) handleRelay(c *Client, data []byte) {
	if c.RoomID == "" {
		return
	}
	room, ok := h.rooms[c.RoomID]
	if !ok {
		return
	}
	if peer := room.other(c); peer != nil {
		peer.enqueue(data)
	}
}

// handleLeave removes c from its room, notifies the remaining member once,
// and deletes the room when it empties. Rejoining the same id later creates
// a fresh room.
func (h *Hub) handleLeave(c *Client) {
	if c.RoomID == "" {
		return
	}
	room, ok := h.rooms[c.RoomID]
	if !ok {
		c.RoomID = ""
		return
	}

	room.remove(c)
	c.RoomID = ""

	if room.empty() {
		delete(h.rooms, room.ID)
		slog.Info("room deleted", "room", room.ID)
		return
	}
	if peer := room.other(nil); peer != nil {
		peer.enqueue(marshal(&protocol.Envelope{Type: protocol.TypePeerLeft}))
		slog.Info("peer left, notified remaining member", "room", room.ID, "remaining", peer.ID)
	}
}

func marshal(env *protocol.Envelope) []byte {
	data, err := json.Marshal(env)
	if err != nil {
		// Envelope values are broker-built and always marshalable.
		panic(err)
	}
	return data
}
