package media

import (
	"errors"
	"sync/atomic"

	"github.com/pion/mediadevices"
	"github.com/pion/webrtc/v4"
)

// localTrack adapts a mediadevices capture track to the Track interface.
// The enabled flag does not pause the encoder; it drives the in-call
// control notice so the remote side blanks its tile, mirroring what a
// disabled browser track looks like to the viewer.
type localTrack struct {
	t       mediadevices.Track
	enabled atomic.Bool
}

func newLocalTrack(t mediadevices.Track) *localTrack {
	lt := &localTrack{t: t}
	lt.enabled.Store(true)
	return lt
}

func (lt *localTrack) ID() string                { return lt.t.ID() }
func (lt *localTrack) Kind() webrtc.RTPCodecType { return lt.t.Kind() }
func (lt *localTrack) SetEnabled(on bool)        { lt.enabled.Store(on) }
func (lt *localTrack) Enabled() bool             { return lt.enabled.Load() }
func (lt *localTrack) Stop() error               { return lt.t.Close() }

// pionConn adapts *webrtc.PeerConnection to the Conn interface.
type pionConn struct {
	pc *webrtc.PeerConnection
}

func (c *pionConn) AddTrack(tr Track) (Sender, error) {
	lt, ok := tr.(*localTrack)
	if !ok {
		return nil, errors.New("track was not acquired by this engine")
	}
	sender, err := c.pc.AddTrack(lt.t)
	if err != nil {
		return nil, err
	}
	return &pionSender{s: sender}, nil
}

func (c *pionConn) CreateOffer() (webrtc.SessionDescription, error) {
	return c.pc.CreateOffer(nil)
}

func (c *pionConn) CreateAnswer() (webrtc.SessionDescription, error) {
	return c.pc.CreateAnswer(nil)
}

func (c *pionConn) SetLocalDescription(sd webrtc.SessionDescription) error {
	return c.pc.SetLocalDescription(sd)
}

func (c *pionConn) SetRemoteDescription(sd webrtc.SessionDescription) error {
	return c.pc.SetRemoteDescription(sd)
}

func (c *pionConn) AddICECandidate(init webrtc.ICECandidateInit) error {
	return c.pc.AddICECandidate(init)
}

func (c *pionConn) CreateDataChannel(label string) (DataChannel, error) {
	dc, err := c.pc.CreateDataChannel(label, nil)
	if err != nil {
		return nil, err
	}
	return &pionDataChannel{dc: dc}, nil
}

func (c *pionConn) OnICECandidate(fn func(*webrtc.ICECandidateInit)) {
	c.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			fn(nil)
			return
		}
		init := cand.ToJSON()
		fn(&init)
	})
}

func (c *pionConn) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	c.pc.OnConnectionStateChange(fn)
}

func (c *pionConn) OnTrack(fn func(RemoteTrack)) {
	c.pc.OnTrack(func(tr *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		fn(&remoteTrack{t: tr})
	})
}

func (c *pionConn) OnDataChannel(fn func(DataChannel)) {
	c.pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		fn(&pionDataChannel{dc: dc})
	})
}

func (c *pionConn) Close() error { return c.pc.Close() }

type pionSender struct {
	s *webrtc.RTPSender
}

func (ps *pionSender) ReplaceTrack(tr Track) error {
	lt, ok := tr.(*localTrack)
	if !ok {
		return errors.New("track was not acquired by this engine")
	}
	return ps.s.ReplaceTrack(lt.t)
}

type pionDataChannel struct {
	dc *webrtc.DataChannel
}

func (d *pionDataChannel) Label() string       { return d.dc.Label() }
func (d *pionDataChannel) Send(b []byte) error { return d.dc.Send(b) }
func (d *pionDataChannel) OnOpen(fn func())    { d.dc.OnOpen(fn) }
func (d *pionDataChannel) OnMessage(fn func([]byte)) {
	d.dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		fn(msg.Data)
	})
}
func (d *pionDataChannel) Close() error { return d.dc.Close() }

type remoteTrack struct {
	t *webrtc.TrackRemote
}

func (r *remoteTrack) ID() string                { return r.t.ID() }
func (r *remoteTrack) Kind() webrtc.RTPCodecType { return r.t.Kind() }
