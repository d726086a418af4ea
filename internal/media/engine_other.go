//go:build !linux

package media

import (
	"context"
	"fmt"
	"time"

	"github.com/pion/webrtc/v4"
)

// captureEngine on non-Linux platforms has no capture drivers compiled in;
// acquisition fails cleanly and the session surfaces it as a device error.
type captureEngine struct{}

func newPlatformEngine() (Engine, error) {
	return &captureEngine{}, nil
}

func (e *captureEngine) AcquireMedia(ctx context.Context) ([]Track, error) {
	return nil, fmt.Errorf("capture audio+video: %w", ErrCaptureUnsupported)
}

func (e *captureEngine) AcquireVideo(ctx context.Context, deviceID string) (Track, error) {
	return nil, fmt.Errorf("capture video device %s: %w", deviceID, ErrCaptureUnsupported)
}

func (e *captureEngine) VideoInputs() ([]DeviceInfo, error) {
	return nil, nil
}

func (e *captureEngine) NewConnection(cfg ICEConfig) (Conn, error) {
	se := webrtc.SettingEngine{}
	se.SetICETimeouts(30*time.Second, 120*time.Second, 2*time.Second)

	api := webrtc.NewAPI(webrtc.WithSettingEngine(se))
	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: cfg.servers()})
	if err != nil {
		return nil, err
	}
	return &pionConn{pc: pc}, nil
}
