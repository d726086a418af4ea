package call

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/pion/webrtc/v4"

	"github.com/peercall/peercall/internal/protocol"
)

type harness struct {
	engine *fakeEngine
	sig    *fakeSignaler
	sess   *Session

	mu        sync.Mutex
	started   int
	ended     []string
	errored   []string
	peerMutes [][2]bool
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{engine: newFakeEngine(), sig: newFakeSignaler()}
	h.sess = NewSession(Config{
		RoomID: "r1",
		Engine: h.engine,
		Dial:   func() (Signaler, error) { return h.sig, nil },
		Events: Events{
			OnCallStarted: func() {
				h.mu.Lock()
				h.started++
				h.mu.Unlock()
			},
			OnCallEnded: func(reason string) {
				h.mu.Lock()
				h.ended = append(h.ended, reason)
				h.mu.Unlock()
			},
			OnCallError: func(msg string) {
				h.mu.Lock()
				h.errored = append(h.errored, msg)
				h.mu.Unlock()
			},
			OnPeerMuteState: func(a, v bool) {
				h.mu.Lock()
				h.peerMutes = append(h.peerMutes, [2]bool{a, v})
				h.mu.Unlock()
			},
		},
	})
	t.Cleanup(h.sess.Hangup)
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	if err := h.sess.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
}

func (h *harness) startCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.started
}

func (h *harness) endReasons() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.ended...)
}

func (h *harness) errorMessages() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.errored...)
}

// lastSent returns the most recent envelope matching pred.
func lastSent(sig *fakeSignaler, pred func(*protocol.Envelope) bool) *protocol.Envelope {
	msgs := sig.sentMessages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if pred(msgs[i]) {
			return msgs[i]
		}
	}
	return nil
}

func TestStartJoinsRoomWithTracksAttached(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	msgs := h.sig.sentMessages()
	if len(msgs) != 1 || msgs[0].Type != protocol.TypeJoin || msgs[0].RoomID != "r1" {
		t.Fatalf("sent = %+v, want a single join for r1", msgs)
	}

	ops := h.engine.conn.opList()
	if len(ops) != 2 || ops[0][:8] != "addTrack" || ops[1][:8] != "addTrack" {
		t.Fatalf("connection ops = %v, want both tracks attached at start", ops)
	}
	if h.sess.State() != StateConnecting {
		t.Fatalf("state = %v, want connecting", h.sess.State())
	}
}

func TestInitiatorOffersOnDirective(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	h.sig.deliver(&protocol.Envelope{Type: protocol.TypeCreateOffer})

	if !eventually(func() bool {
		return lastSent(h.sig, func(e *protocol.Envelope) bool { return e.Offer != nil }) != nil
	}) {
		t.Fatal("no offer was sent")
	}
	if h.sess.Role() != RoleInitiator {
		t.Fatalf("role = %v, want initiator", h.sess.Role())
	}

	// Tracks attached before the offer; local description set before send.
	ops := h.engine.conn.opList()
	want := []string{"addTrack:audio", "addTrack:video", "createDataChannel:control", "createOffer", "setLocal"}
	if len(ops) != len(want) {
		t.Fatalf("ops = %v, want %v", ops, want)
	}
	for i := range want {
		if ops[i] != want[i] {
			t.Fatalf("ops[%d] = %q, want %q (full: %v)", i, ops[i], want[i], ops)
		}
	}
}

func TestResponderAnswersRemoteOffer(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	h.sig.deliver(&protocol.Envelope{Offer: &webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer, SDP: "remote-offer",
	}})

	if !eventually(func() bool {
		return lastSent(h.sig, func(e *protocol.Envelope) bool { return e.Answer != nil }) != nil
	}) {
		t.Fatal("no answer was sent")
	}
	if h.sess.Role() != RoleResponder {
		t.Fatalf("role = %v, want responder", h.sess.Role())
	}

	// Remote description applied before the answer was created.
	ops := h.engine.conn.opList()
	sawRemote := false
	for _, op := range ops {
		if op == "setRemote" {
			sawRemote = true
		}
		if op == "createAnswer" && !sawRemote {
			t.Fatalf("answer created before remote description: %v", ops)
		}
	}
}

func TestEarlyCandidatesBufferedUntilRemoteDescription(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	h.sig.deliver(&protocol.Envelope{Candidate: &webrtc.ICECandidateInit{Candidate: "early-1"}})
	h.sig.deliver(&protocol.Envelope{Candidate: &webrtc.ICECandidateInit{Candidate: "early-2"}})

	// Nothing applied yet: no remote description.
	if eventually(func() bool { return len(h.engine.conn.addedCandidates()) > 0 }) {
		t.Fatal("candidate applied before remote description was set")
	}

	h.sig.deliver(&protocol.Envelope{Offer: &webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer, SDP: "remote-offer",
	}})

	if !eventually(func() bool { return len(h.engine.conn.addedCandidates()) == 2 }) {
		t.Fatalf("buffered candidates not flushed: %v", h.engine.conn.addedCandidates())
	}
	got := h.engine.conn.addedCandidates()
	if got[0].Candidate != "early-1" || got[1].Candidate != "early-2" {
		t.Fatalf("flush order wrong: %v", got)
	}

	// Later candidates apply immediately.
	h.sig.deliver(&protocol.Envelope{Candidate: &webrtc.ICECandidateInit{Candidate: "late"}})
	if !eventually(func() bool { return len(h.engine.conn.addedCandidates()) == 3 }) {
		t.Fatal("post-description candidate not applied")
	}
}

func TestLocalCandidatesTrickleOut(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	h.engine.conn.onICE(&webrtc.ICECandidateInit{Candidate: "local-1"})
	if lastSent(h.sig, func(e *protocol.Envelope) bool { return e.Candidate != nil }) == nil {
		t.Fatal("local candidate not sent")
	}

	// End-of-gathering marker is not sent.
	before := len(h.sig.sentMessages())
	h.engine.conn.onICE(nil)
	if len(h.sig.sentMessages()) != before {
		t.Fatal("nil candidate was sent to the broker")
	}
}

func TestConnectedStateFiresCallStartedOnce(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	h.sig.deliver(&protocol.Envelope{Type: protocol.TypeCreateOffer})
	if !eventually(func() bool { return h.sess.State() == StateNegotiating }) {
		t.Fatal("session never reached negotiating")
	}

	h.engine.conn.onState(webrtc.PeerConnectionStateConnected)
	if !eventually(func() bool { return h.startCount() == 1 }) {
		t.Fatal("OnCallStarted not fired")
	}
	h.engine.conn.onState(webrtc.PeerConnectionStateConnected)
	if eventually(func() bool { return h.startCount() > 1 }) {
		t.Fatal("OnCallStarted fired more than once")
	}
	if h.sess.State() != StateConnected {
		t.Fatalf("state = %v, want connected", h.sess.State())
	}
}

func TestPeerLeftTearsDownNeutrally(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	h.sig.deliver(&protocol.Envelope{Type: protocol.TypePeerLeft})

	if !eventually(func() bool { return len(h.endReasons()) == 1 }) {
		t.Fatal("OnCallEnded not fired")
	}
	if got := h.errorMessages(); len(got) != 0 {
		t.Fatalf("peer leaving reported as error: %v", got)
	}
	if !eventually(func() bool { return h.engine.conn.closeCount() == 1 }) {
		t.Fatal("connection object not closed")
	}
	if h.engine.audio.stopCount() != 1 || h.engine.video.stopCount() != 1 {
		t.Fatal("local tracks not released")
	}
	if h.sig.closeCount() != 1 {
		t.Fatal("signaling transport not closed")
	}
}

func TestBrokerErrorTearsDownWithError(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	h.sig.deliver(&protocol.Envelope{Error: "room is full"})

	if !eventually(func() bool { return len(h.errorMessages()) == 1 }) {
		t.Fatal("OnCallError not fired")
	}
	if h.sess.State() != StateErrored {
		t.Fatalf("state = %v, want errored", h.sess.State())
	}
}

func TestHangupIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	h.sess.Hangup()
	h.sess.Hangup()

	if got := h.engine.audio.stopCount(); got != 1 {
		t.Fatalf("audio track stopped %d times, want 1", got)
	}
	if got := h.engine.video.stopCount(); got != 1 {
		t.Fatalf("video track stopped %d times, want 1", got)
	}
	if got := h.engine.conn.closeCount(); got != 1 {
		t.Fatalf("connection closed %d times, want 1", got)
	}
	if got := h.sig.closeCount(); got != 1 {
		t.Fatalf("signaler closed %d times, want 1", got)
	}
	if h.sess.State() != StateClosed {
		t.Fatalf("state = %v, want closed", h.sess.State())
	}
}

func TestEventsAfterTeardownAreDropped(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	h.sess.Hangup()

	// Stale callbacks must not mutate anything or fire UI events.
	h.engine.conn.onState(webrtc.PeerConnectionStateConnected)
	h.engine.conn.onICE(&webrtc.ICECandidateInit{Candidate: "stale"})

	if eventually(func() bool { return h.startCount() > 0 }) {
		t.Fatal("OnCallStarted fired after teardown")
	}
	if lastSent(h.sig, func(e *protocol.Envelope) bool { return e.Candidate != nil }) != nil {
		t.Fatal("candidate sent after teardown")
	}
}

func TestHangupDuringConnectionSetupClosesConnection(t *testing.T) {
	h := newHarness(t)
	h.engine.onNewConnection = h.sess.Hangup

	err := h.sess.Start(context.Background())
	if err == nil {
		t.Fatal("Start succeeded despite hangup during setup")
	}
	<-h.sess.Done()

	if got := h.engine.conn.closeCount(); got != 1 {
		t.Fatalf("connection closed %d times after hangup, want 1", got)
	}
	if h.engine.audio.stopCount() != 1 || h.engine.video.stopCount() != 1 {
		t.Fatal("captured tracks not released")
	}
	if h.sess.State() != StateClosed {
		t.Fatalf("state = %v, want closed", h.sess.State())
	}
	if got := h.engine.conn.opList(); len(got) != 0 {
		t.Fatalf("torn-down session still drove the connection: %v", got)
	}
}

func TestDeviceFailureFailsStart(t *testing.T) {
	h := newHarness(t)
	h.engine.acquireErr = errors.New("permission denied")

	err := h.sess.Start(context.Background())
	if err == nil {
		t.Fatal("Start succeeded despite capture failure")
	}
	if !errors.Is(err, ErrDeviceFailure) {
		t.Fatalf("err = %v, want ErrDeviceFailure", err)
	}
	if h.sess.State() != StateErrored {
		t.Fatalf("state = %v, want errored", h.sess.State())
	}
}

func TestSignalingDialFailureReleasesTracks(t *testing.T) {
	engine := newFakeEngine()
	sess := NewSession(Config{
		RoomID: "r1",
		Engine: engine,
		Dial:   func() (Signaler, error) { return nil, errors.New("refused") },
	})

	err := sess.Start(context.Background())
	if !errors.Is(err, ErrSignalingTransport) {
		t.Fatalf("err = %v, want ErrSignalingTransport", err)
	}
	if engine.audio.stopCount() != 1 || engine.video.stopCount() != 1 {
		t.Fatal("captured tracks not released after dial failure")
	}
}

func TestControlChannelCarriesMuteState(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	h.sig.deliver(&protocol.Envelope{Type: protocol.TypeCreateOffer})
	if !eventually(func() bool { return len(h.engine.conn.channelList()) == 1 }) {
		t.Fatal("control channel not created")
	}
	dc := h.engine.conn.channelList()[0]

	// Local toggle pushes a notice to the peer.
	h.sess.ToggleAudio()
	if !eventually(func() bool { return len(dc.sentMessages()) >= 1 }) {
		t.Fatal("mute notice not sent")
	}
	msg, err := decodeControl(dc.sentMessages()[0])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	var p muteStatePayload
	if err := msg.decodePayload(&p); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if !p.AudioMuted || p.VideoOff {
		t.Fatalf("payload = %+v, want audio muted only", p)
	}

	// Inbound notice surfaces through the event contract.
	data, err := encodeControl(controlTypeMuteState, muteStatePayload{VideoOff: true})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	dc.deliver(data)
	if !eventually(func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		return len(h.peerMutes) == 1 && h.peerMutes[0] == [2]bool{false, true}
	}) {
		t.Fatal("OnPeerMuteState not fired with peer flags")
	}
}

func TestResponderAdoptsRemoteControlChannel(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	dc := &fakeDataChannel{label: controlChannelLabel}
	h.engine.conn.onDC(dc)

	data, err := encodeControl(controlTypeMuteState, muteStatePayload{AudioMuted: true})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	dc.deliver(data)

	if !eventually(func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		return len(h.peerMutes) == 1 && h.peerMutes[0] == [2]bool{true, false}
	}) {
		t.Fatal("remote control channel not adopted")
	}
}
