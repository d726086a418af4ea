package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/peercall/peercall/internal/call"
	"github.com/peercall/peercall/internal/media"
	"github.com/peercall/peercall/internal/ui"
)

var devicesCmd = &cobra.Command{
	Use:     "devices",
	Aliases: []string{"d"},
	Short:   "List available video capture devices",
	RunE: func(cmd *cobra.Command, args []string) error {
		return listDevices()
	},
}

func listDevices() error {
	engine, err := media.NewEngine()
	if err != nil {
		return call.NewError("media engine", err)
	}

	devices, err := engine.VideoInputs()
	if err != nil {
		if errors.Is(err, media.ErrCaptureUnsupported) {
			return fmt.Errorf("video capture is not supported on this platform")
		}
		return call.NewError("enumerate devices", err)
	}

	items := make([]ui.DeviceTableItem, len(devices))
	for i, d := range devices {
		items[i] = ui.DeviceTableItem{Index: i + 1, ID: d.ID, Label: d.Label}
	}

	fmt.Println()
	ui.RenderDeviceTable(items)
	return nil
}

func init() {
	rootCmd.AddCommand(devicesCmd)
}
