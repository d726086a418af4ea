// Package protocol defines the signaling wire format shared by the broker
// and the client. Every websocket message is one JSON envelope. Control
// messages carry a "type" field; negotiation payloads (offer, answer,
// candidate) are identified by which field is present, matching what
// browser clients send.
package protocol

import (
	"encoding/json"

	"github.com/pion/webrtc/v4"
)

// Control message types.
const (
	TypeJoin        = "join"
	TypeCreateOffer = "createOffer"
	TypePeerLeft    = "peerLeft"
)

// Envelope is the full client-side view of a signaling message.
type Envelope struct {
	Type      string                     `json:"type,omitempty"`
	RoomID    string                     `json:"roomId,omitempty"`
	Offer     *webrtc.SessionDescription `json:"offer,omitempty"`
	Answer    *webrtc.SessionDescription `json:"answer,omitempty"`
	Candidate *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
	Error     string                     `json:"error,omitempty"`
}

// Join builds a room admission request.
func Join(roomID string) *Envelope {
	return &Envelope{Type: TypeJoin, RoomID: roomID}
}

// NewOffer wraps a local offer description.
func NewOffer(sd webrtc.SessionDescription) *Envelope {
	return &Envelope{Offer: &sd}
}

// NewAnswer wraps a local answer description.
func NewAnswer(sd webrtc.SessionDescription) *Envelope {
	return &Envelope{Answer: &sd}
}

// NewCandidate wraps one trickled ICE candidate.
func NewCandidate(c webrtc.ICECandidateInit) *Envelope {
	return &Envelope{Candidate: &c}
}

// Header is the part of an envelope the broker inspects. Everything else is
// opaque relay payload; the broker never validates descriptions or
// candidates.
type Header struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
}

// ParseHeader decodes just the routing fields from a raw message.
func ParseHeader(data []byte) (Header, error) {
	var h Header
	err := json.Unmarshal(data, &h)
	return h, err
}
