//go:build linux

package media

import (
	"context"
	"fmt"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v4"
)

// captureEngine captures camera and microphone through pion/mediadevices
// (V4L2 + malgo) with VP8 and Opus encoders.
type captureEngine struct {
	selector *mediadevices.CodecSelector
}

func newPlatformEngine() (Engine, error) {
	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, err
	}
	vpxParams.BitRate = 1_500_000 // 1.5 Mbps

	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, err
	}

	selector := mediadevices.NewCodecSelector(
		mediadevices.WithVideoEncoders(&vpxParams),
		mediadevices.WithAudioEncoders(&opusParams),
	)
	return &captureEngine{selector: selector}, nil
}

// videoConstraints excludes MJPEG camera nodes, whose malformed frames can
// poison the VP8 encoder, and caps resolution to keep encode latency low.
func videoConstraints(c *mediadevices.MediaTrackConstraints) {
	c.FrameFormat = prop.FrameFormatOneOf{
		frame.FormatYUYV,
		frame.FormatI420,
		frame.FormatI444,
		frame.FormatRGBA,
	}
	c.Width = prop.IntRanged{Max: 640}
	c.Height = prop.IntRanged{Max: 480}
}

func (e *captureEngine) AcquireMedia(ctx context.Context) ([]Track, error) {
	stream, err := mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
		Codec: e.selector,
		Video: videoConstraints,
		Audio: func(*mediadevices.MediaTrackConstraints) {},
	})
	if err != nil {
		return nil, fmt.Errorf("capture audio+video: %w", err)
	}

	raw := stream.GetTracks()
	if err := ctx.Err(); err != nil {
		for _, t := range raw {
			t.Close()
		}
		return nil, err
	}

	tracks := make([]Track, 0, len(raw))
	for _, t := range raw {
		tracks = append(tracks, newLocalTrack(t))
	}
	return tracks, nil
}

func (e *captureEngine) AcquireVideo(ctx context.Context, deviceID string) (Track, error) {
	stream, err := mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
		Codec: e.selector,
		Video: func(c *mediadevices.MediaTrackConstraints) {
			videoConstraints(c)
			c.DeviceID = prop.String(deviceID)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("capture video device %s: %w", deviceID, err)
	}

	raw := stream.GetVideoTracks()
	if len(raw) == 0 {
		return nil, fmt.Errorf("capture video device %s: no track produced", deviceID)
	}
	if err := ctx.Err(); err != nil {
		for _, t := range raw {
			t.Close()
		}
		return nil, err
	}
	return newLocalTrack(raw[0]), nil
}

func (e *captureEngine) VideoInputs() ([]DeviceInfo, error) {
	var out []DeviceInfo
	for _, d := range mediadevices.EnumerateDevices() {
		if d.Kind != mediadevices.VideoInput {
			continue
		}
		out = append(out, DeviceInfo{ID: d.DeviceID, Label: d.Label})
	}
	return out, nil
}

func (e *captureEngine) NewConnection(cfg ICEConfig) (Conn, error) {
	mediaEngine := &webrtc.MediaEngine{}
	e.selector.Populate(mediaEngine)

	interceptorRegistry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, interceptorRegistry); err != nil {
		return nil, err
	}

	// Generous ICE timeouts so a brief relay/NAT hiccup does not terminate
	// the call; the pion default of 5s is too short for relay paths.
	se := webrtc.SettingEngine{}
	se.SetICETimeouts(30*time.Second, 120*time.Second, 2*time.Second)

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(interceptorRegistry),
		webrtc.WithSettingEngine(se),
	)

	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: cfg.servers()})
	if err != nil {
		return nil, err
	}
	return &pionConn{pc: pc}, nil
}
