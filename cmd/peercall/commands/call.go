package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/peercall/peercall/internal/call"
	"github.com/peercall/peercall/internal/config"
	"github.com/peercall/peercall/internal/media"
	"github.com/peercall/peercall/internal/sigclient"
	"github.com/peercall/peercall/internal/ui"
)

var (
	flagCallServer   string
	flagCallSTUN     string
	flagCallTURN     string
	flagCallTURNUser string
	flagCallTURNPass string
	flagCallCopy     bool
)

var callCmd = &cobra.Command{
	Use:     "call [room-id]",
	Aliases: []string{"c"},
	Short:   "Start or join a video call",
	Long: `Start or join a one-to-one video call. Without a room ID a fresh room
is created; share its ID with the other side. Whoever is in the room
first becomes the one to start negotiation - the broker decides.

Examples:
  peercall call
  peercall call ABC123
  peercall call ABC123 --server wss://broker.example.com`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		roomID := ""
		if len(args) == 1 {
			roomID = strings.TrimSpace(args[0])
		}
		return runCall(roomID)
	},
}

func runCall(roomID string) error {
	cfg, err := config.Load(config.Options{
		Server:     flagCallServer,
		STUNServer: flagCallSTUN,
		TURNServer: flagCallTURN,
		TURNUser:   flagCallTURNUser,
		TURNPass:   flagCallTURNPass,
	})
	if err != nil {
		return err
	}

	created := roomID == ""
	if created {
		roomID = newRoomID()
	}

	fmt.Println()
	if created {
		ui.RenderRoomInfo(roomID)
		if flagCallCopy {
			if err := clipboard.WriteAll(roomID); err != nil {
				ui.PrintWarning("could not copy room ID to clipboard")
			} else {
				ui.PrintInfo("Room ID copied to clipboard")
			}
		}
		fmt.Println()
	}

	engine, err := media.NewEngine()
	if err != nil {
		return call.NewError("media engine", err)
	}

	model := ui.NewCallModel(roomID)
	updates := model.UpdateChannel()

	sess := call.NewSession(call.Config{
		RoomID: roomID,
		Engine: engine,
		ICE:    cfg.ICEConfig(),
		Dial: func() (call.Signaler, error) {
			return sigclient.Dial(cfg.WebSocketURL())
		},
		Events: call.Events{
			OnStateChanged: func(st call.State) {
				switch st {
				case call.StateAcquiringMedia:
					updates <- ui.CallUpdate{Type: ui.UpdateConnecting, Message: "Acquiring camera and microphone..."}
				case call.StateConnecting:
					updates <- ui.CallUpdate{Type: ui.UpdateConnecting, Message: "Connecting to server..."}
				case call.StateNegotiating:
					updates <- ui.CallUpdate{Type: ui.UpdateNegotiating}
				}
			},
			OnCallStarted: func() {
				updates <- ui.CallUpdate{Type: ui.UpdateCallStarted}
			},
			OnCallEnded: func(reason string) {
				updates <- ui.CallUpdate{Type: ui.UpdateCallEnded, Message: reason}
			},
			OnCallError: func(msg string) {
				updates <- ui.CallUpdate{Type: ui.UpdateCallError, Message: msg}
			},
			OnRemoteTrack: func(media.RemoteTrack) {
				updates <- ui.CallUpdate{Type: ui.UpdateRemoteVideo}
			},
			OnPeerMuteState: func(audioMuted, videoOff bool) {
				updates <- ui.CallUpdate{Type: ui.UpdatePeerMute, AudioMuted: audioMuted, VideoOff: videoOff}
			},
		},
	})

	model.SetControls(ui.Controls{
		ToggleAudio: func() {
			muted := sess.ToggleAudio()
			videoOff := false
			if ts := sess.Tracks(); ts != nil {
				videoOff = ts.VideoOff()
			}
			updates <- ui.CallUpdate{Type: ui.UpdateLocalMute, AudioMuted: muted, VideoOff: videoOff}
		},
		ToggleVideo: func() {
			off := sess.ToggleVideo()
			audioMuted := false
			if ts := sess.Tracks(); ts != nil {
				audioMuted = ts.AudioMuted()
			}
			updates <- ui.CallUpdate{Type: ui.UpdateLocalMute, AudioMuted: audioMuted, VideoOff: off}
		},
		SwitchCamera: func() {
			// Camera acquisition can block on hardware; never on the UI loop.
			go func() {
				if err := sess.SwitchCamera(context.Background()); err != nil {
					updates <- ui.CallUpdate{Type: ui.UpdateCameraSwitched, Message: "camera switch failed"}
					return
				}
				updates <- ui.CallUpdate{Type: ui.UpdateCameraSwitched, Message: "switched camera"}
			}()
		},
		Hangup: sess.Hangup,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := sess.Start(ctx); err != nil {
			updates <- ui.CallUpdate{Type: ui.UpdateCallError, Message: err.Error()}
			return
		}
		updates <- ui.CallUpdate{Type: ui.UpdateWaitingForPeer}
	}()

	p := tea.NewProgram(model)
	_, runErr := p.Run()
	model.Stop()
	sess.Hangup()
	if runErr != nil {
		return call.NewError("call view", runErr)
	}
	return nil
}

// newRoomID returns a short, shareable room identifier.
func newRoomID() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func init() {
	callCmd.Flags().StringVarP(&flagCallServer, "server", "s", "", "signaling server URL (ws:// or wss://)")
	callCmd.Flags().StringVar(&flagCallSTUN, "stun", "", "STUN server URL")
	callCmd.Flags().StringVar(&flagCallTURN, "turn", "", "TURN server URL")
	callCmd.Flags().StringVar(&flagCallTURNUser, "turn-user", "", "TURN username")
	callCmd.Flags().StringVar(&flagCallTURNPass, "turn-pass", "", "TURN password")
	callCmd.Flags().BoolVarP(&flagCallCopy, "copy", "y", false, "copy the room ID to the clipboard")

	rootCmd.AddCommand(callCmd)
}
