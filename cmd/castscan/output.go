package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/muurk/castscan/internal/device"
	"github.com/muurk/castscan/internal/ui"
)

// Output formats accepted by --format
const (
	formatAuto  = "auto"
	formatTable = "table"
	formatPlain = "plain"
	formatJSON  = "json"
)

func validateFormat(format string) error {
	switch format {
	case formatAuto, formatTable, formatPlain, formatJSON:
		return nil
	default:
		return fmt.Errorf("unknown output format %q (expected auto, table, plain or json)", format)
	}
}

// resolveFormat turns "auto" into table on a terminal and plain otherwise
func resolveFormat(format string) string {
	if format != formatAuto {
		return format
	}
	if ui.IsTerminal() {
		return formatTable
	}
	return formatPlain
}

// printDevices writes views in the requested format
func printDevices(w io.Writer, views []device.View, format string) error {
	ui.SortViews(views)
	now := time.Now()

	switch resolveFormat(format) {
	case formatJSON:
		if views == nil {
			views = []device.View{}
		}
		data, err := json.MarshalIndent(views, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode devices: %w", err)
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	case formatTable:
		_, err := fmt.Fprintln(w, ui.RenderDeviceTable(views, ui.GetTerminalWidth(), now))
		return err
	default:
		_, err := fmt.Fprint(w, ui.RenderDevicePlain(views, now))
		return err
	}
}

func viewsOf(devices []*device.ConnectableDevice) []device.View {
	views := make([]device.View, 0, len(devices))
	for _, d := range devices {
		views = append(views, d.View())
	}
	return views
}
