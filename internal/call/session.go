// Package call runs the client side of a two-party call: it acquires local
// media, joins a room through the signaling broker, and drives the
// offer/answer/candidate exchange until the media transport connects. The
// broker assigns the negotiation role, so exactly one side ever offers.
package call

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/pion/webrtc/v4"

	"github.com/peercall/peercall/internal/media"
	"github.com/peercall/peercall/internal/protocol"
)

// Config assembles one call attempt. A Session is single-use: re-calling the
// same room requires a fresh Session with fresh tracks.
type Config struct {
	RoomID string
	Engine media.Engine
	ICE    media.ICEConfig

	// Dial opens the signaling transport. Called once, after media
	// acquisition succeeds.
	Dial func() (Signaler, error)

	Events Events
}

// Session is the negotiation state machine for one call attempt.
type Session struct {
	cfg Config
	log *slog.Logger

	state atomic.Int32

	mu        sync.Mutex
	closed    bool
	role      Role
	tracks    *TrackSet
	conn      media.Conn
	sig       Signaler
	control   media.DataChannel
	remoteSet bool
	pending   []webrtc.ICECandidateInit

	connStates chan webrtc.PeerConnectionState
	done       chan struct{}
}

func NewSession(cfg Config) *Session {
	s := &Session{
		cfg:        cfg,
		log:        slog.Default().With("room", cfg.RoomID),
		connStates: make(chan webrtc.PeerConnectionState, 8),
		done:       make(chan struct{}),
	}
	s.state.Store(int32(StateIdle))
	return s
}

// State returns the current lifecycle position.
func (s *Session) State() State { return State(s.state.Load()) }

// Role returns the broker-assigned negotiation role, RoleUnknown until the
// first directive or remote offer arrives.
func (s *Session) Role() Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.role
}

// Tracks exposes the device/track manager; nil before media acquisition.
func (s *Session) Tracks() *TrackSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracks
}

// Done closes when the session has fully torn down.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
	if cb := s.cfg.Events.OnStateChanged; cb != nil {
		cb(st)
	}
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Start acquires media, opens the signaling transport, joins the room, and
// hands control to the event loop. Tracks are attached to the connection
// object up front so any later offer or answer carries the right media
// lines. A failure tears the session down and is returned to the caller;
// asynchronous faults after Start go through Events.OnCallError.
func (s *Session) Start(ctx context.Context) error {
	s.setState(StateAcquiringMedia)
	captured, err := s.cfg.Engine.AcquireMedia(ctx)
	if err != nil {
		return s.fail(NewError("acquire media", fmt.Errorf("%w: %v", ErrDeviceFailure, err)))
	}
	tracks := NewTrackSet(s.cfg.Engine, captured)
	s.mu.Lock()
	if s.closed {
		// Hangup raced the capture; release the hardware and stop.
		s.mu.Unlock()
		tracks.StopAll()
		return NewError("start", errors.New("session already closed"))
	}
	s.tracks = tracks
	s.mu.Unlock()

	s.setState(StateConnecting)
	sig, err := s.cfg.Dial()
	if err != nil {
		return s.fail(NewError("connect signaling", fmt.Errorf("%w: %v", ErrSignalingTransport, err)))
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		sig.Close()
		s.releaseTracks()
		return NewError("start", errors.New("session already closed"))
	}
	s.sig = sig
	s.mu.Unlock()

	conn, err := s.cfg.Engine.NewConnection(s.cfg.ICE)
	if err != nil {
		return s.fail(NewError("create connection", err))
	}
	s.mu.Lock()
	if s.closed {
		// Hangup raced connection setup; the teardown that ran could not
		// see this connection object, so close it here.
		s.mu.Unlock()
		conn.Close()
		s.releaseTracks()
		return NewError("start", errors.New("session already closed"))
	}
	s.conn = conn
	s.mu.Unlock()

	// Trickle ICE: every locally discovered candidate goes out immediately,
	// whatever state negotiation is in.
	conn.OnICECandidate(func(c *webrtc.ICECandidateInit) {
		if c == nil || s.isClosed() {
			return
		}
		if err := sig.Send(protocol.NewCandidate(*c)); err != nil {
			s.log.Debug("candidate send failed", "err", err)
		}
	})
	conn.OnConnectionStateChange(func(st webrtc.PeerConnectionState) {
		select {
		case s.connStates <- st:
		default:
		}
	})
	conn.OnTrack(func(rt media.RemoteTrack) {
		if s.isClosed() {
			return
		}
		if cb := s.cfg.Events.OnRemoteTrack; cb != nil {
			cb(rt)
		}
	})
	conn.OnDataChannel(func(dc media.DataChannel) {
		if dc.Label() == controlChannelLabel {
			s.adoptControl(dc)
		}
	})

	if err := tracks.Attach(conn); err != nil {
		return s.fail(NewError("attach tracks", err))
	}
	tracks.onChange = s.sendMuteState

	if err := sig.Send(protocol.Join(s.cfg.RoomID)); err != nil {
		return s.fail(NewError("join room", fmt.Errorf("%w: %v", ErrSignalingTransport, err)))
	}

	go s.loop(ctx)
	return nil
}

// Hangup tears the session down from any state, including mid-negotiation.
// Idempotent.
func (s *Session) Hangup() {
	s.teardown(StateClosed)
}

// ToggleAudio flips the local audio mute flag; returns the new muted state.
func (s *Session) ToggleAudio() bool {
	if ts := s.Tracks(); ts != nil {
		return ts.ToggleAudio()
	}
	return true
}

// ToggleVideo flips the local camera flag; returns the new camera-off state.
func (s *Session) ToggleVideo() bool {
	if ts := s.Tracks(); ts != nil {
		return ts.ToggleVideo()
	}
	return true
}

// SwitchCamera hot-swaps to the next capture device, if more than one
// exists.
func (s *Session) SwitchCamera(ctx context.Context) error {
	if ts := s.Tracks(); ts != nil {
		return ts.SwitchCamera(ctx)
	}
	return nil
}

// loop serializes every event the session reacts to: signaling messages,
// connection state reports, and cancellation. Handlers run one at a time,
// so no two negotiation steps are ever in flight together.
func (s *Session) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			s.end("call cancelled")
			return

		case <-s.done:
			return

		case env, ok := <-s.sig.Incoming():
			if !ok {
				if s.isClosed() {
					return
				}
				if s.State() == StateConnected {
					// Media keeps flowing peer-to-peer, but without
					// signaling the room assignment is gone; end cleanly.
					s.end("connection to server lost")
				} else {
					s.errorOut(NewError("signaling", ErrSignalingTransport))
				}
				return
			}
			s.handleEnvelope(env)

		case st := <-s.connStates:
			s.handleConnState(st)
		}
	}
}

func (s *Session) handleEnvelope(env *protocol.Envelope) {
	if s.isClosed() {
		return
	}
	switch {
	case env.Error != "":
		if env.Error == ErrRoomFull.Error() {
			s.errorOut(NewError("join room", ErrRoomFull))
			return
		}
		s.errorOut(NewError("broker", errors.New(env.Error)))

	case env.Type == protocol.TypePeerLeft:
		s.end("call ended")

	case env.Type == protocol.TypeCreateOffer:
		s.becomeInitiator()

	case env.Offer != nil:
		s.handleOffer(*env.Offer)

	case env.Answer != nil:
		s.handleAnswer(*env.Answer)

	case env.Candidate != nil:
		s.handleCandidate(*env.Candidate)

	default:
		s.log.Debug("ignoring unrecognized signaling message", "type", env.Type)
	}
}

// becomeInitiator runs the offer path: the broker picked this side to start.
// The control data channel is created before the offer so its description
// rides the initial SDP.
func (s *Session) becomeInitiator() {
	s.mu.Lock()
	s.role = RoleInitiator
	conn, sig := s.conn, s.sig
	s.mu.Unlock()
	s.setState(StateNegotiating)
	s.log.Info("assigned initiator role")

	if dc, err := conn.CreateDataChannel(controlChannelLabel); err != nil {
		s.log.Warn("control channel unavailable", "err", err)
	} else {
		s.adoptControl(dc)
	}

	offer, err := conn.CreateOffer()
	if err != nil {
		s.errorOut(NewError("create offer", err))
		return
	}
	if s.isClosed() {
		return
	}
	if err := conn.SetLocalDescription(offer); err != nil {
		s.errorOut(NewError("set local description", err))
		return
	}
	if err := sig.Send(protocol.NewOffer(offer)); err != nil {
		s.errorOut(NewError("send offer", fmt.Errorf("%w: %v", ErrSignalingTransport, err)))
	}
}

// handleOffer runs the responder path: apply the remote offer, flush any
// early candidates, answer.
func (s *Session) handleOffer(sd webrtc.SessionDescription) {
	s.mu.Lock()
	s.role = RoleResponder
	conn, sig := s.conn, s.sig
	s.mu.Unlock()
	s.setState(StateNegotiating)
	s.log.Info("assigned responder role")

	if err := conn.SetRemoteDescription(sd); err != nil {
		s.errorOut(NewError("apply offer", err))
		return
	}
	s.flushCandidates(conn)

	answer, err := conn.CreateAnswer()
	if err != nil {
		s.errorOut(NewError("create answer", err))
		return
	}
	if s.isClosed() {
		return
	}
	if err := conn.SetLocalDescription(answer); err != nil {
		s.errorOut(NewError("set local description", err))
		return
	}
	if err := sig.Send(protocol.NewAnswer(answer)); err != nil {
		s.errorOut(NewError("send answer", fmt.Errorf("%w: %v", ErrSignalingTransport, err)))
	}
}

func (s *Session) handleAnswer(sd webrtc.SessionDescription) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	if err := conn.SetRemoteDescription(sd); err != nil {
		s.errorOut(NewError("apply answer", err))
		return
	}
	s.flushCandidates(conn)
}

// handleCandidate applies a peer candidate, or buffers it if the remote
// description has not been set yet; buffered candidates are flushed the
// moment it is.
func (s *Session) handleCandidate(c webrtc.ICECandidateInit) {
	s.mu.Lock()
	if !s.remoteSet {
		s.pending = append(s.pending, c)
		s.mu.Unlock()
		return
	}
	conn := s.conn
	s.mu.Unlock()

	if err := conn.AddICECandidate(c); err != nil {
		// A single bad candidate is not fatal; others may still connect.
		s.log.Warn("add candidate failed", "err", err)
	}
}

func (s *Session) flushCandidates(conn media.Conn) {
	s.mu.Lock()
	s.remoteSet = true
	buffered := s.pending
	s.pending = nil
	s.mu.Unlock()

	for _, c := range buffered {
		if err := conn.AddICECandidate(c); err != nil {
			s.log.Warn("add buffered candidate failed", "err", err)
		}
	}
}

// handleConnState reacts to the connection object's own state reports — the
// one transition source that is not a signaling message.
func (s *Session) handleConnState(st webrtc.PeerConnectionState) {
	if s.isClosed() {
		return
	}
	switch st {
	case webrtc.PeerConnectionStateConnected:
		if s.State() == StateNegotiating {
			s.setState(StateConnected)
			s.log.Info("call connected")
			if cb := s.cfg.Events.OnCallStarted; cb != nil {
				cb()
			}
			s.announceMuteState()
		}

	case webrtc.PeerConnectionStateFailed,
		webrtc.PeerConnectionStateDisconnected,
		webrtc.PeerConnectionStateClosed:
		if s.State() == StateConnected {
			s.end("connection lost")
		} else {
			s.errorOut(NewError("media transport", ErrConnectionFailed))
		}
	}
}

// adoptControl installs the in-call control channel, whichever side created
// it.
func (s *Session) adoptControl(dc media.DataChannel) {
	s.mu.Lock()
	if s.closed || s.control != nil {
		s.mu.Unlock()
		return
	}
	s.control = dc
	s.mu.Unlock()

	dc.OnMessage(func(data []byte) {
		if s.isClosed() {
			return
		}
		msg, err := decodeControl(data)
		if err != nil {
			s.log.Debug("bad control message", "err", err)
			return
		}
		if msg.Type != controlTypeMuteState {
			return
		}
		var p muteStatePayload
		if err := msg.decodePayload(&p); err != nil {
			return
		}
		if cb := s.cfg.Events.OnPeerMuteState; cb != nil {
			cb(p.AudioMuted, p.VideoOff)
		}
	})
}

// sendMuteState pushes this side's current flags to the peer. Best-effort:
// the channel may not be open yet.
func (s *Session) sendMuteState(audioMuted, videoOff bool) {
	s.mu.Lock()
	dc := s.control
	s.mu.Unlock()
	if dc == nil {
		return
	}

	data, err := encodeControl(controlTypeMuteState, muteStatePayload{
		AudioMuted: audioMuted,
		VideoOff:   videoOff,
	})
	if err != nil {
		return
	}
	if err := dc.Send(data); err != nil {
		s.log.Debug("control send failed", "err", err)
	}
}

func (s *Session) announceMuteState() {
	if ts := s.Tracks(); ts != nil {
		s.sendMuteState(ts.AudioMuted(), ts.VideoOff())
	}
}

// teardown performs the release sequence exactly once: local tracks first,
// then the connection object, then the signaling transport. Hardware
// release is never skipped, even when signaling is already gone. Returns
// whether this call performed the teardown.
func (s *Session) teardown(final State) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.closed = true
	tracks, conn, sig, control := s.tracks, s.conn, s.sig, s.control
	s.mu.Unlock()

	if tracks != nil {
		tracks.StopAll()
	}
	if control != nil {
		control.Close()
	}
	if conn != nil {
		conn.Close()
	}
	if sig != nil {
		sig.Close()
	}
	s.setState(final)
	close(s.done)
	return true
}

func (s *Session) releaseTracks() {
	s.mu.Lock()
	tracks := s.tracks
	s.mu.Unlock()
	if tracks != nil {
		tracks.StopAll()
	}
}

// end is a neutral teardown: the call is over, nobody is at fault.
func (s *Session) end(reason string) {
	if s.teardown(StateClosed) {
		s.log.Info("call ended", "reason", reason)
		if cb := s.cfg.Events.OnCallEnded; cb != nil {
			cb(reason)
		}
	}
}

// errorOut is a fault teardown: surface the cause to the UI.
func (s *Session) errorOut(err error) {
	if s.teardown(StateErrored) {
		s.log.Error("call failed", "err", err)
		if cb := s.cfg.Events.OnCallError; cb != nil {
			cb(err.Error())
		}
	}
}

// fail is errorOut for the synchronous Start path: the caller gets the
// error directly instead of through the callback.
func (s *Session) fail(err error) error {
	s.teardown(StateErrored)
	return err
}
