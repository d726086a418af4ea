package ui

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// CallViewState drives which screen the call view renders.
type CallViewState int

const (
	ViewConnecting CallViewState = iota
	ViewWaitingForPeer
	ViewNegotiating
	ViewInCall
	ViewEnded
	ViewError
)

// CallUpdate is a message sent from the session's event callbacks to the UI.
type CallUpdate struct {
	Type    CallUpdateType
	Message string

	// Mute flags, for local and peer updates.
	AudioMuted bool
	VideoOff   bool
}

type CallUpdateType int

const (
	UpdateConnecting CallUpdateType = iota
	UpdateWaitingForPeer
	UpdateNegotiating
	UpdateCallStarted
	UpdateCallEnded
	UpdateCallError
	UpdateLocalMute
	UpdatePeerMute
	UpdateCameraSwitched
	UpdateRemoteVideo
)

// Controls are the in-call actions the view dispatches on keypresses. Each
// runs on the UI goroutine and must not block.
type Controls struct {
	ToggleAudio  func()
	ToggleVideo  func()
	SwitchCamera func()
	Hangup       func()
}

// DurationTickMsg drives the call timer once connected.
type DurationTickMsg time.Time

func durationTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return DurationTickMsg(t)
	})
}

// CallModel is the Bubble Tea model for an active call.
type CallModel struct {
	roomID   string
	controls Controls

	state    CallViewState
	stateMsg string

	localAudioMuted bool
	localVideoOff   bool
	peerAudioMuted  bool
	peerVideoOff    bool
	remoteVideo     bool
	cameraNote      string

	connectedAt time.Time
	elapsed     time.Duration

	spinner spinner.Model

	updateChan chan CallUpdate
	done       chan struct{}
	closeOnce  sync.Once

	errMsg string
	width  int
}

// NewCallModel creates the call view. Updates flow in through
// UpdateChannel; the model quits when the session reports the call over.
func NewCallModel(roomID string) *CallModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	return &CallModel{
		roomID:     roomID,
		state:      ViewConnecting,
		stateMsg:   "Connecting to server...",
		spinner:    s,
		updateChan: make(chan CallUpdate, 64),
		done:       make(chan struct{}),
		width:      80,
	}
}

// SetControls installs the keypress actions. Must happen before the
// program runs.
func (m *CallModel) SetControls(controls Controls) {
	m.controls = controls
}

// UpdateChannel returns the channel session callbacks push into.
func (m *CallModel) UpdateChannel() chan<- CallUpdate {
	return m.updateChan
}

// Stop unblocks the update listener; safe to call more than once.
func (m *CallModel) Stop() {
	m.closeOnce.Do(func() { close(m.done) })
}

func (m *CallModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.waitForUpdates())
}

func (m *CallModel) waitForUpdates() tea.Cmd {
	return func() tea.Msg {
		select {
		case update := <-m.updateChan:
			return update
		case <-m.done:
			return nil
		}
	}
}

func (m *CallModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if m.controls.Hangup != nil {
				m.controls.Hangup()
			}
			return m, tea.Quit

		case "m":
			if m.state == ViewInCall && m.controls.ToggleAudio != nil {
				m.controls.ToggleAudio()
			}

		case "v":
			if m.state == ViewInCall && m.controls.ToggleVideo != nil {
				m.controls.ToggleVideo()
			}

		case "f":
			if m.state == ViewInCall && m.controls.SwitchCamera != nil {
				m.controls.SwitchCamera()
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case DurationTickMsg:
		if m.state == ViewInCall {
			m.elapsed = time.Since(m.connectedAt)
			cmds = append(cmds, durationTickCmd())
		}

	case CallUpdate:
		if cmd := m.handleUpdate(msg); cmd != nil {
			cmds = append(cmds, cmd)
		}
		cmds = append(cmds, m.waitForUpdates())
	}

	return m, tea.Batch(cmds...)
}

func (m *CallModel) handleUpdate(update CallUpdate) tea.Cmd {
	switch update.Type {
	case UpdateConnecting:
		m.state = ViewConnecting
		m.stateMsg = update.Message

	case UpdateWaitingForPeer:
		// Ignore if negotiation already started; the peer beat us here.
		if m.state == ViewConnecting {
			m.state = ViewWaitingForPeer
		}

	case UpdateNegotiating:
		m.state = ViewNegotiating

	case UpdateCallStarted:
		m.state = ViewInCall
		m.connectedAt = time.Now()
		return durationTickCmd()

	case UpdateCallEnded:
		m.state = ViewEnded
		m.stateMsg = update.Message
		return tea.Quit

	case UpdateCallError:
		m.state = ViewError
		m.errMsg = update.Message
		return tea.Quit

	case UpdateLocalMute:
		m.localAudioMuted = update.AudioMuted
		m.localVideoOff = update.VideoOff

	case UpdatePeerMute:
		m.peerAudioMuted = update.AudioMuted
		m.peerVideoOff = update.VideoOff

	case UpdateCameraSwitched:
		m.cameraNote = update.Message

	case UpdateRemoteVideo:
		m.remoteVideo = true
	}
	return nil
}

func (m *CallModel) View() string {
	var b strings.Builder

	header := HeaderStyle.Render(fmt.Sprintf("%s PeerCall - Room %s", IconCall, m.roomID))
	b.WriteString(header + "\n\n")

	switch m.state {
	case ViewConnecting:
		b.WriteString(fmt.Sprintf("%s %s", m.spinner.View(), m.stateMsg))

	case ViewWaitingForPeer:
		b.WriteString(fmt.Sprintf("%s Waiting for the other side to join...\n\n", m.spinner.View()))
		b.WriteString(MutedStyle.Render(fmt.Sprintf("%s Share room ID: ", IconRoom)))
		b.WriteString(BoldStyle.Foreground(Primary).Render(m.roomID))

	case ViewNegotiating:
		b.WriteString(fmt.Sprintf("%s %s Peer joined, negotiating media...", m.spinner.View(), IconPeer))

	case ViewInCall:
		b.WriteString(m.viewInCall())

	case ViewEnded:
		msg := m.stateMsg
		if msg == "" {
			msg = "Call ended"
		}
		b.WriteString(SuccessStyle.Render(fmt.Sprintf("%s %s", IconSuccess, msg)))
		if m.elapsed > 0 {
			b.WriteString(MutedStyle.Render(fmt.Sprintf("  (%s)", formatDuration(m.elapsed))))
		}

	case ViewError:
		b.WriteString(ErrorBoxStyle.Render(fmt.Sprintf("%s Call failed\n\n%s", IconError, m.errMsg)))
	}

	b.WriteString("\n" + m.viewFooter())
	return ContainerStyle.Render(b.String())
}

func (m *CallModel) viewInCall() string {
	var b strings.Builder

	b.WriteString(SuccessStyle.Render(fmt.Sprintf("%s Connected", IconConnect)))
	b.WriteString(MutedStyle.Render(fmt.Sprintf("  %s %s\n\n", IconTime, formatDuration(m.elapsed))))

	b.WriteString(fmt.Sprintf("  You:   %s  %s\n", flagLabel(IconMic, "mic", m.localAudioMuted), flagLabel(IconCamera, "cam", m.localVideoOff)))
	b.WriteString(fmt.Sprintf("  Peer:  %s  %s\n", flagLabel(IconMic, "mic", m.peerAudioMuted), flagLabel(IconCamera, "cam", m.peerVideoOff)))

	if !m.remoteVideo {
		b.WriteString(MutedStyle.Render(fmt.Sprintf("\n  %s Waiting for remote video...\n", IconWaiting)))
	}
	if m.cameraNote != "" {
		b.WriteString(MutedStyle.Render(fmt.Sprintf("\n  %s %s\n", IconCamera, m.cameraNote)))
	}
	return b.String()
}

func (m *CallModel) viewFooter() string {
	if m.state == ViewInCall {
		return FooterStyle.Render("m: mute  v: camera  f: switch camera  q: hang up")
	}
	return FooterStyle.Render("q: quit")
}

func flagLabel(icon, name string, off bool) string {
	if off {
		return WarningStyle.Render(fmt.Sprintf("%s %s off", IconMute, name))
	}
	return SuccessStyle.Render(fmt.Sprintf("%s %s on", icon, name))
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	s := (d % time.Minute) / time.Second
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
