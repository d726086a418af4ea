package call

import (
	"github.com/peercall/peercall/internal/media"
	"github.com/peercall/peercall/internal/protocol"
)

// Signaler is the only surface the call package needs from the signaling
// transport. The websocket client satisfies it; tests use an in-memory
// fake.
type Signaler interface {
	// Send queues one envelope for the broker.
	Send(*protocol.Envelope) error

	// Incoming delivers broker and relayed peer messages in arrival order.
	// The channel closes when the transport drops.
	Incoming() <-chan *protocol.Envelope

	Close()
}

// Events is the callback contract toward the UI layer. All callbacks are
// optional and are invoked from the session's event loop, never
// concurrently with each other.
type Events struct {
	// OnStateChanged reports every lifecycle transition.
	OnStateChanged func(State)

	// OnCallStarted fires once when the media transport reports an
	// established connection.
	OnCallStarted func()

	// OnCallEnded fires on a neutral teardown: peer hung up or the
	// established call was lost.
	OnCallEnded func(reason string)

	// OnCallError fires on a fatal session fault with a human-readable
	// cause.
	OnCallError func(message string)

	// OnRemoteTrack announces each inbound media track from the peer.
	OnRemoteTrack func(media.RemoteTrack)

	// OnPeerMuteState reports the peer's mute/camera flags received over
	// the in-call control channel.
	OnPeerMuteState func(audioMuted, videoOff bool)
}
