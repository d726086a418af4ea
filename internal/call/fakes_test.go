package call

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/peercall/peercall/internal/media"
	"github.com/peercall/peercall/internal/protocol"
)

type fakeTrack struct {
	mu      sync.Mutex
	id      string
	kind    webrtc.RTPCodecType
	enabled bool
	stops   int
}

func newFakeTrack(id string, kind webrtc.RTPCodecType) *fakeTrack {
	return &fakeTrack{id: id, kind: kind, enabled: true}
}

func (t *fakeTrack) ID() string                { return t.id }
func (t *fakeTrack) Kind() webrtc.RTPCodecType { return t.kind }

func (t *fakeTrack) SetEnabled(on bool) {
	t.mu.Lock()
	t.enabled = on
	t.mu.Unlock()
}

func (t *fakeTrack) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

func (t *fakeTrack) Stop() error {
	t.mu.Lock()
	t.stops++
	t.mu.Unlock()
	return nil
}

func (t *fakeTrack) stopCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stops
}

type fakeSender struct {
	mu          sync.Mutex
	replaced    []media.Track
	failReplace bool
}

func (s *fakeSender) ReplaceTrack(t media.Track) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failReplace {
		return errors.New("replace rejected")
	}
	s.replaced = append(s.replaced, t)
	return nil
}

type fakeDataChannel struct {
	mu     sync.Mutex
	label  string
	sent   [][]byte
	onMsg  func([]byte)
	onOpen func()
	closed int
}

func (d *fakeDataChannel) Label() string { return d.label }

func (d *fakeDataChannel) Send(b []byte) error {
	d.mu.Lock()
	d.sent = append(d.sent, b)
	d.mu.Unlock()
	return nil
}

func (d *fakeDataChannel) OnOpen(fn func()) { d.onOpen = fn }

func (d *fakeDataChannel) OnMessage(fn func([]byte)) {
	d.mu.Lock()
	d.onMsg = fn
	d.mu.Unlock()
}

func (d *fakeDataChannel) Close() error {
	d.mu.Lock()
	d.closed++
	d.mu.Unlock()
	return nil
}

func (d *fakeDataChannel) deliver(b []byte) {
	d.mu.Lock()
	fn := d.onMsg
	d.mu.Unlock()
	if fn != nil {
		fn(b)
	}
}

func (d *fakeDataChannel) sentMessages() [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([][]byte(nil), d.sent...)
}

// fakeConn records the order of every negotiation operation.
type fakeConn struct {
	mu         sync.Mutex
	ops        []string
	localDesc  *webrtc.SessionDescription
	remoteDesc *webrtc.SessionDescription
	candidates []webrtc.ICECandidateInit
	senders    map[string]*fakeSender
	channels   []*fakeDataChannel
	closed     int

	onICE   func(*webrtc.ICECandidateInit)
	onState func(webrtc.PeerConnectionState)
	onTrack func(media.RemoteTrack)
	onDC    func(media.DataChannel)
}

func newFakeConn() *fakeConn {
	return &fakeConn{senders: make(map[string]*fakeSender)}
}

func (c *fakeConn) record(op string) {
	c.mu.Lock()
	c.ops = append(c.ops, op)
	c.mu.Unlock()
}

func (c *fakeConn) AddTrack(t media.Track) (media.Sender, error) {
	c.record("addTrack:" + t.Kind().String())
	sender := &fakeSender{}
	c.mu.Lock()
	c.senders[t.Kind().String()] = sender
	c.mu.Unlock()
	return sender, nil
}

func (c *fakeConn) CreateOffer() (webrtc.SessionDescription, error) {
	c.record("createOffer")
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "fake-offer"}, nil
}

func (c *fakeConn) CreateAnswer() (webrtc.SessionDescription, error) {
	c.record("createAnswer")
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "fake-answer"}, nil
}

func (c *fakeConn) SetLocalDescription(sd webrtc.SessionDescription) error {
	c.record("setLocal")
	c.mu.Lock()
	c.localDesc = &sd
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) SetRemoteDescription(sd webrtc.SessionDescription) error {
	c.record("setRemote")
	c.mu.Lock()
	c.remoteDesc = &sd
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) AddICECandidate(init webrtc.ICECandidateInit) error {
	c.record("addCandidate")
	c.mu.Lock()
	c.candidates = append(c.candidates, init)
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) CreateDataChannel(label string) (media.DataChannel, error) {
	c.record("createDataChannel:" + label)
	dc := &fakeDataChannel{label: label}
	c.mu.Lock()
	c.channels = append(c.channels, dc)
	c.mu.Unlock()
	return dc, nil
}

func (c *fakeConn) OnICECandidate(fn func(*webrtc.ICECandidateInit)) {
	c.onICE = fn
}

func (c *fakeConn) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	c.onState = fn
}

func (c *fakeConn) OnTrack(fn func(media.RemoteTrack)) {
	c.onTrack = fn
}

func (c *fakeConn) OnDataChannel(fn func(media.DataChannel)) {
	c.onDC = fn
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closed++
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) opList() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.ops...)
}

func (c *fakeConn) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) channelList() []*fakeDataChannel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*fakeDataChannel(nil), c.channels...)
}

func (c *fakeConn) addedCandidates() []webrtc.ICECandidateInit {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]webrtc.ICECandidateInit(nil), c.candidates...)
}

type fakeEngine struct {
	mu         sync.Mutex
	conn       *fakeConn
	audio      *fakeTrack
	video      *fakeTrack
	devices    []media.DeviceInfo
	acquireErr error
	videoErr   error
	acquired   []string

	// onNewConnection runs inside NewConnection, before it returns.
	onNewConnection func()
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		conn:  newFakeConn(),
		audio: newFakeTrack("mic-0", webrtc.RTPCodecTypeAudio),
		video: newFakeTrack("cam-0", webrtc.RTPCodecTypeVideo),
	}
}

func (e *fakeEngine) AcquireMedia(ctx context.Context) ([]media.Track, error) {
	if e.acquireErr != nil {
		return nil, e.acquireErr
	}
	return []media.Track{e.audio, e.video}, nil
}

func (e *fakeEngine) AcquireVideo(ctx context.Context, deviceID string) (media.Track, error) {
	if e.videoErr != nil {
		return nil, e.videoErr
	}
	e.mu.Lock()
	e.acquired = append(e.acquired, deviceID)
	e.mu.Unlock()
	return newFakeTrack("cam-"+deviceID, webrtc.RTPCodecTypeVideo), nil
}

func (e *fakeEngine) VideoInputs() ([]media.DeviceInfo, error) {
	return e.devices, nil
}

func (e *fakeEngine) NewConnection(cfg media.ICEConfig) (media.Conn, error) {
	if e.onNewConnection != nil {
		e.onNewConnection()
	}
	return e.conn, nil
}

func (e *fakeEngine) acquiredDevices() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.acquired...)
}

// fakeSignaler is an in-memory signaling transport.
type fakeSignaler struct {
	mu     sync.Mutex
	in     chan *protocol.Envelope
	sent   []*protocol.Envelope
	closed int
}

func newFakeSignaler() *fakeSignaler {
	return &fakeSignaler{in: make(chan *protocol.Envelope, 16)}
}

func (f *fakeSignaler) Send(env *protocol.Envelope) error {
	f.mu.Lock()
	f.sent = append(f.sent, env)
	f.mu.Unlock()
	return nil
}

func (f *fakeSignaler) Incoming() <-chan *protocol.Envelope { return f.in }

func (f *fakeSignaler) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	if f.closed == 1 {
		close(f.in)
	}
}

func (f *fakeSignaler) deliver(env *protocol.Envelope) { f.in <- env }

func (f *fakeSignaler) sentMessages() []*protocol.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*protocol.Envelope(nil), f.sent...)
}

func (f *fakeSignaler) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// eventually polls cond until it holds or the deadline lapses.
func eventually(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}
