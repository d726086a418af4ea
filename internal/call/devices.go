package call

import (
	"context"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/peercall/peercall/internal/media"
)

// TrackSet owns the session's live local tracks: mute toggling and camera
// hot-swap, both without renegotiation. A TrackSet belongs to exactly one
// session and dies with it.
type TrackSet struct {
	engine media.Engine

	mu           sync.Mutex
	audio        media.Track
	video        media.Track
	videoSender  media.Sender
	activeDevice string
	stopped      bool

	// onChange fires after a toggle with the new flags; the session uses it
	// to push a control notice to the peer.
	onChange func(audioMuted, videoOff bool)
}

// NewTrackSet splits the captured tracks into their audio/video slots.
func NewTrackSet(engine media.Engine, tracks []media.Track) *TrackSet {
	ts := &TrackSet{engine: engine}
	for _, t := range tracks {
		switch t.Kind() {
		case webrtc.RTPCodecTypeAudio:
			ts.audio = t
		case webrtc.RTPCodecTypeVideo:
			ts.video = t
		}
	}
	return ts
}

// Attach adds every track to conn and keeps the video sender for later
// ReplaceTrack calls. Must happen before any offer or answer is created so
// the description carries the right media lines.
func (ts *TrackSet) Attach(conn media.Conn) error {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.audio != nil {
		if _, err := conn.AddTrack(ts.audio); err != nil {
			return err
		}
	}
	if ts.video != nil {
		sender, err := conn.AddTrack(ts.video)
		if err != nil {
			return err
		}
		ts.videoSender = sender
	}
	return nil
}

// ToggleAudio flips the audio track's enabled flag. Returns the new muted
// state (true = muted).
func (ts *TrackSet) ToggleAudio() bool {
	ts.mu.Lock()
	if ts.audio == nil || ts.stopped {
		ts.mu.Unlock()
		return true
	}
	ts.audio.SetEnabled(!ts.audio.Enabled())
	muted := !ts.audio.Enabled()
	videoOff := ts.video != nil && !ts.video.Enabled()
	notify := ts.onChange
	ts.mu.Unlock()

	if notify != nil {
		notify(muted, videoOff)
	}
	return muted
}

// ToggleVideo flips the video track's enabled flag. Returns the new
// camera-off state (true = off).
func (ts *TrackSet) ToggleVideo() bool {
	ts.mu.Lock()
	if ts.video == nil || ts.stopped {
		ts.mu.Unlock()
		return true
	}
	ts.video.SetEnabled(!ts.video.Enabled())
	videoOff := !ts.video.Enabled()
	muted := ts.audio != nil && !ts.audio.Enabled()
	notify := ts.onChange
	ts.mu.Unlock()

	if notify != nil {
		notify(muted, videoOff)
	}
	return videoOff
}

// AudioMuted reports the current audio flag.
func (ts *TrackSet) AudioMuted() bool {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.audio == nil || !ts.audio.Enabled()
}

// VideoOff reports the current video flag.
func (ts *TrackSet) VideoOff() bool {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.video == nil || !ts.video.Enabled()
}

// SwitchCamera hot-swaps the outbound video source to the next available
// device, cyclically. With fewer than two devices it is a no-op. The swap
// replaces the track on the existing sender — no new offer/answer cycle.
// On acquisition failure the prior track and connection are left intact.
func (ts *TrackSet) SwitchCamera(ctx context.Context) error {
	devices, err := ts.engine.VideoInputs()
	if err != nil {
		return NewError("enumerate cameras", err)
	}
	if len(devices) < 2 {
		return nil
	}

	ts.mu.Lock()
	if ts.video == nil || ts.stopped {
		ts.mu.Unlock()
		return nil
	}
	current := ts.activeDevice
	wasEnabled := ts.video.Enabled()
	ts.mu.Unlock()

	next := devices[(deviceIndex(devices, current)+1)%len(devices)]

	// Acquisition happens outside the lock; it can block on hardware.
	newTrack, err := ts.engine.AcquireVideo(ctx, next.ID)
	if err != nil {
		return NewError("switch camera", err)
	}
	newTrack.SetEnabled(wasEnabled)

	ts.mu.Lock()
	if ts.stopped {
		ts.mu.Unlock()
		newTrack.Stop()
		return nil
	}
	if ts.videoSender != nil {
		if err := ts.videoSender.ReplaceTrack(newTrack); err != nil {
			ts.mu.Unlock()
			newTrack.Stop()
			return NewError("replace video track", err)
		}
	}
	old := ts.video
	ts.video = newTrack
	ts.activeDevice = next.ID
	ts.mu.Unlock()

	if old != nil {
		old.Stop()
	}
	return nil
}

// ActiveDevice returns the device id of the current camera, empty until the
// first switch.
func (ts *TrackSet) ActiveDevice() string {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.activeDevice
}

// StopAll releases every local track. Idempotent; the hardware must be
// freed exactly once no matter how the session ends.
func (ts *TrackSet) StopAll() {
	ts.mu.Lock()
	if ts.stopped {
		ts.mu.Unlock()
		return
	}
	ts.stopped = true
	audio, video := ts.audio, ts.video
	ts.audio, ts.video = nil, nil
	ts.mu.Unlock()

	if audio != nil {
		audio.Stop()
	}
	if video != nil {
		video.Stop()
	}
}

// deviceIndex locates id in devices; an unknown or empty id maps to 0, the
// default capture device.
func deviceIndex(devices []media.DeviceInfo, id string) int {
	for i, d := range devices {
		if d.ID == id {
			return i
		}
	}
	return 0
}
