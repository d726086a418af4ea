package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// DeviceTableItem represents one capture device in the table.
type DeviceTableItem struct {
	Index int
	ID    string
	Label string
}

// DeviceTableView renders the available cameras as a bordered table.
func DeviceTableView(items []DeviceTableItem) string {
	if len(items) == 0 {
		return MutedStyle.Render("No video devices found")
	}

	headers := []string{"#", "Device ID", "Label"}
	var rows [][]string
	for _, item := range items {
		label := item.Label
		if label == "" {
			label = "(unnamed)"
		}
		rows = append(rows, []string{fmt.Sprintf("%d", item.Index), item.ID, label})
	}

	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return TableHeaderStyle
			case row%2 == 0:
				return TableRowStyle
			default:
				return TableRowAltStyle
			}
		})

	return tbl.Render()
}

// RenderDeviceTable outputs the table directly to stdout.
func RenderDeviceTable(items []DeviceTableItem) {
	fmt.Println(DeviceTableView(items))
}

// RoomInfo is the shareable room banner printed before the call connects.
type RoomInfo struct {
	RoomID string
}

func (r *RoomInfo) View() string {
	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.DoubleBorder()).
		BorderForeground(Success).
		Padding(1, 2)

	content := fmt.Sprintf("%s Room Ready!\n\n%s Room ID:  %s\n\nShare this ID with the person you want to call.",
		IconSuccess,
		IconCopy, BoldStyle.Foreground(Primary).Render(r.RoomID),
	)

	return boxStyle.Render(content)
}

func RenderRoomInfo(roomID string) {
	fmt.Println((&RoomInfo{RoomID: roomID}).View())
}
