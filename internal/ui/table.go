package ui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/muurk/castscan/internal/device"
)

// DeviceColumns are the column titles of device tables
var DeviceColumns = []string{"NAME", "IP ADDRESS", "MODEL", "SERVICES", "CAPABILITIES", "LAST SEEN"}

// SortViews orders devices by friendly name, then ID
func SortViews(views []device.View) {
	sort.SliceStable(views, func(i, j int) bool {
		a, b := strings.ToLower(views[i].FriendlyName), strings.ToLower(views[j].FriendlyName)
		if a != b {
			return a < b
		}
		return views[i].ID < views[j].ID
	})
}

// DeviceRow returns the table cells of one device
func DeviceRow(v device.View, now time.Time) []string {
	name := v.FriendlyName
	if name == "" {
		name = v.ID
	}
	model := strings.TrimSpace(v.Manufacturer + " " + v.ModelName)

	services := make([]string, 0, len(v.Services))
	for _, s := range v.Services {
		services = append(services, s.Name)
	}

	return []string{
		name,
		v.IPAddress,
		model,
		strings.Join(services, ", "),
		fmt.Sprintf("%d", len(v.Capabilities)),
		Since(v.LastDetection, now),
	}
}

// Since formats the time elapsed since t for humans
func Since(t, now time.Time) string {
	if t.IsZero() {
		return "never"
	}
	d := now.Sub(t)
	switch {
	case d < time.Second:
		return "just now"
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	default:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	}
}

// RenderDeviceTable renders devices as a bordered table
func RenderDeviceTable(views []device.View, width int, now time.Time) string {
	rows := make([][]string, 0, len(views))
	for _, v := range views {
		rows = append(rows, DeviceRow(v, now))
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(PrimaryColor)).
		Headers(DeviceColumns...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return TableHeaderStyle
			case col >= 4:
				return TableMutedCellStyle
			default:
				return TableCellStyle
			}
		})
	if width > 0 {
		t = t.Width(clampWidth(width))
	}
	return t.Render()
}

// RenderDevicePlain renders devices as tab separated lines for pipes
func RenderDevicePlain(views []device.View, now time.Time) string {
	var b strings.Builder
	b.WriteString(strings.Join(DeviceColumns, "\t"))
	b.WriteByte('\n')
	for _, v := range views {
		b.WriteString(strings.Join(DeviceRow(v, now), "\t"))
		b.WriteByte('\n')
	}
	return b.String()
}
