// Package media is the capability boundary to the real-time media engine.
// The call state machine only sees these interfaces; the pion-backed
// implementation lives behind them so sessions can be tested against fakes
// and capture support can vary by platform.
package media

import (
	"context"
	"errors"

	"github.com/pion/webrtc/v4"
)

// ErrCaptureUnsupported is returned when the platform has no capture
// drivers compiled in.
var ErrCaptureUnsupported = errors.New("media capture not supported on this platform")

// Track is one live local capture track. SetEnabled flips the mute flag
// without stopping capture; Stop releases the underlying device.
type Track interface {
	ID() string
	Kind() webrtc.RTPCodecType
	SetEnabled(bool)
	Enabled() bool
	Stop() error
}

// RemoteTrack is an inbound track announced by the peer.
type RemoteTrack interface {
	ID() string
	Kind() webrtc.RTPCodecType
}

// Sender is the outbound binding of one local track; ReplaceTrack swaps the
// source without renegotiation.
type Sender interface {
	ReplaceTrack(Track) error
}

// DataChannel is a reliable in-call message channel.
type DataChannel interface {
	Label() string
	Send([]byte) error
	OnOpen(func())
	OnMessage(func([]byte))
	Close() error
}

// Conn is the connection object: the subset of a peer connection the
// negotiation state machine drives.
type Conn interface {
	AddTrack(Track) (Sender, error)
	CreateOffer() (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetLocalDescription(webrtc.SessionDescription) error
	SetRemoteDescription(webrtc.SessionDescription) error
	AddICECandidate(webrtc.ICECandidateInit) error
	CreateDataChannel(label string) (DataChannel, error)

	// OnICECandidate fires for each locally discovered candidate; nil marks
	// the end of gathering.
	OnICECandidate(func(*webrtc.ICECandidateInit))
	OnConnectionStateChange(func(webrtc.PeerConnectionState))
	OnTrack(func(RemoteTrack))
	OnDataChannel(func(DataChannel))

	Close() error
}

// DeviceInfo describes one video capture device.
type DeviceInfo struct {
	ID    string
	Label string
}

// ICEConfig carries STUN/TURN endpoints for connection setup.
type ICEConfig struct {
	STUNURLs []string
	TURNURLs []string
	TURNUser string
	TURNPass string
}

func (c ICEConfig) servers() []webrtc.ICEServer {
	var servers []webrtc.ICEServer
	if len(c.STUNURLs) > 0 {
		servers = append(servers, webrtc.ICEServer{URLs: c.STUNURLs})
	}
	if len(c.TURNURLs) > 0 {
		servers = append(servers, webrtc.ICEServer{
			URLs:       c.TURNURLs,
			Username:   c.TURNUser,
			Credential: c.TURNPass,
		})
	}
	return servers
}

// Engine creates connection objects and owns device capture.
type Engine interface {
	// AcquireMedia captures one audio and one video track from the default
	// devices. Fails as a unit; no partial capture.
	AcquireMedia(ctx context.Context) ([]Track, error)

	// AcquireVideo captures a video track from a specific device.
	AcquireVideo(ctx context.Context, deviceID string) (Track, error)

	// VideoInputs enumerates available video capture devices.
	VideoInputs() ([]DeviceInfo, error)

	// NewConnection creates a connection object with the engine's codecs.
	NewConnection(cfg ICEConfig) (Conn, error)
}

// NewEngine returns the platform capture engine.
func NewEngine() (Engine, error) {
	return newPlatformEngine()
}
