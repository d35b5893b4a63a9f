package ui

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/muurk/castscan/internal/device"
	"github.com/muurk/castscan/internal/discovery"
	"github.com/muurk/castscan/internal/service"
)

func newTestDevice(name, ip string) *device.ConnectableDevice {
	return device.New(&service.Description{FriendlyName: name, IPAddress: ip, ModelName: "Bravia"})
}

func keyMsg(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func isQuit(cmd tea.Cmd) bool {
	if cmd == nil {
		return false
	}
	_, ok := cmd().(tea.QuitMsg)
	return ok
}

func TestHeaderRender(t *testing.T) {
	h := NewHeader("Device scan", "castscan scan", Param{"Timeout", "10s"}, Param{"Interface", "eth0"}).SetWidth(80)
	out := h.Render()
	for _, want := range []string{"DEVICE SCAN", "castscan scan", "Timeout:", "10s", "eth0"} {
		if !strings.Contains(out, want) {
			t.Errorf("Render() missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "Timeout") > strings.Index(out, "Interface") {
		t.Error("Render() did not keep parameter order")
	}
}

func TestResultRender(t *testing.T) {
	tests := []struct {
		name   string
		result *Result
		want   []string
	}{
		{
			name:   "success",
			result: NewSuccessResult("Found 2 devices", Param{"Duration", "10s"}),
			want:   []string{SuccessMarker, "Found 2 devices", "Duration:", "10s"},
		},
		{
			name:   "failure",
			result: NewFailureResult("No devices found", errors.New("timed out"), DiscoveryTroubleshooting...),
			want:   []string{FailureMarker, "FAILED", "timed out", "Troubleshooting:"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := tt.result.SetWidth(100).Render()
			for _, want := range tt.want {
				if !strings.Contains(out, want) {
					t.Errorf("Render() missing %q", want)
				}
			}
		})
	}
}

func TestSince(t *testing.T) {
	now := time.Unix(1700000000, 0)
	tests := []struct {
		t    time.Time
		want string
	}{
		{time.Time{}, "never"},
		{now, "just now"},
		{now.Add(-42 * time.Second), "42s ago"},
		{now.Add(-5 * time.Minute), "5m ago"},
		{now.Add(-3 * time.Hour), "3h ago"},
	}
	for _, tt := range tests {
		if got := Since(tt.t, now); got != tt.want {
			t.Errorf("Since(%v) = %q, want %q", tt.t, got, tt.want)
		}
	}
}

func TestDeviceTables(t *testing.T) {
	now := time.Now()
	views := []device.View{
		newTestDevice("Kitchen", "10.0.0.7").View(),
		newTestDevice("bedroom", "10.0.0.6").View(),
	}
	SortViews(views)
	if views[0].FriendlyName != "bedroom" {
		t.Errorf("SortViews() first = %q, want bedroom", views[0].FriendlyName)
	}

	plain := RenderDevicePlain(views, now)
	lines := strings.Split(strings.TrimSpace(plain), "\n")
	if len(lines) != 3 {
		t.Fatalf("RenderDevicePlain() lines = %d, want 3", len(lines))
	}
	if !strings.HasPrefix(lines[1], "bedroom\t10.0.0.6\tBravia\t") {
		t.Errorf("RenderDevicePlain() row = %q", lines[1])
	}

	styled := RenderDeviceTable(views, 100, now)
	for _, want := range []string{"NAME", "Kitchen", "10.0.0.6"} {
		if !strings.Contains(styled, want) {
			t.Errorf("RenderDeviceTable() missing %q", want)
		}
	}
}

func TestWatchModelEvents(t *testing.T) {
	rescans := 0
	m := NewWatchModel(WatchOptions{
		Events:  make(chan discovery.Event),
		Rescan:  func() { rescans++ },
		Command: "castscan watch",
	})

	tv := newTestDevice("Living Room", "10.0.0.5")
	den := newTestDevice("Den", "10.0.0.6")

	var model tea.Model = m
	step := func(msg tea.Msg) tea.Cmd {
		var cmd tea.Cmd
		model, cmd = model.Update(msg)
		return cmd
	}

	if cmd := step(EventMsg{Kind: discovery.DeviceAdded, Device: tv}); cmd == nil {
		t.Error("Update(event) cmd = nil, want wait for next event")
	}
	step(EventMsg{Kind: discovery.DeviceAdded, Device: den})
	step(EventMsg{Kind: discovery.DeviceUpdated, Device: tv})

	got := model.(WatchModel).Devices()
	if len(got) != 2 || got[0].FriendlyName != "Den" || got[1].FriendlyName != "Living Room" {
		t.Fatalf("Devices() = %+v, want Den and Living Room", got)
	}
	if sel, ok := model.(WatchModel).Selected(); !ok || sel.FriendlyName != "Den" {
		t.Errorf("Selected() = %+v, %v, want Den", sel, ok)
	}

	step(EventMsg{Kind: discovery.DeviceRemoved, Device: den})
	step(EventMsg{Kind: discovery.DiscoveryFailed, Err: errors.New("multicast join failed")})
	if n := len(model.(WatchModel).Devices()); n != 1 {
		t.Errorf("Devices() after remove len = %d, want 1", n)
	}
	view := model.View()
	for _, want := range []string{"WATCHING FOR DEVICES", "Living Room", "multicast join failed", "1 devices"} {
		if !strings.Contains(view, want) {
			t.Errorf("View() missing %q", want)
		}
	}

	step(keyMsg("r"))
	if rescans != 1 {
		t.Errorf("rescans = %d, want 1", rescans)
	}

	step(streamClosedMsg{})
	step(keyMsg("r"))
	if rescans != 1 {
		t.Errorf("rescans after close = %d, want 1", rescans)
	}
	if !strings.Contains(model.View(), "Discovery stopped") {
		t.Error("View() after close missing stopped status")
	}

	if cmd := step(keyMsg("q")); !isQuit(cmd) {
		t.Error("Update(q) did not quit")
	}
}

func TestWatchModelResize(t *testing.T) {
	var model tea.Model = NewWatchModel(WatchOptions{Events: make(chan discovery.Event)})
	model, _ = model.Update(tea.WindowSizeMsg{Width: 40, Height: 10})
	if w := model.(WatchModel).width; w != MinTerminalWidth {
		t.Errorf("width = %d, want %d", w, MinTerminalWidth)
	}
}

func TestScanModel(t *testing.T) {
	start := time.Unix(1700000000, 0)
	tv := newTestDevice("Living Room", "10.0.0.5")
	den := newTestDevice("Den", "10.0.0.6")

	var model tea.Model = NewScanModel(make(chan discovery.Event), 10*time.Second, start, nil)
	step := func(msg tea.Msg) tea.Cmd {
		var cmd tea.Cmd
		model, cmd = model.Update(msg)
		return cmd
	}

	step(EventMsg{Kind: discovery.DeviceAdded, Device: tv})
	step(EventMsg{Kind: discovery.DeviceAdded, Device: den})
	step(EventMsg{Kind: discovery.DeviceUpdated, Device: tv})
	step(EventMsg{Kind: discovery.DeviceRemoved, Device: den})
	step(EventMsg{Kind: discovery.DiscoveryFailed, Err: errors.New("boom")})

	sm := model.(ScanModel)
	if got := sm.Found(); len(got) != 1 || got[0] != "Living Room (10.0.0.5)" {
		t.Errorf("Found() = %v, want [Living Room (10.0.0.5)]", got)
	}
	if len(sm.Errors()) != 1 {
		t.Errorf("Errors() len = %d, want 1", len(sm.Errors()))
	}

	if cmd := step(scanTickMsg(start.Add(5 * time.Second))); isQuit(cmd) {
		t.Error("scan quit halfway")
	}
	if !strings.Contains(model.View(), "5s left") {
		t.Errorf("View() = %q, want 5s left", model.View())
	}
	if cmd := step(scanTickMsg(start.Add(10 * time.Second))); !isQuit(cmd) {
		t.Error("scan did not quit after duration")
	}
	if sm := model.(ScanModel); !sm.Done() || sm.Cancelled() {
		t.Errorf("Done, Cancelled = %v, %v, want true, false", sm.Done(), sm.Cancelled())
	}
}

func TestScanModelCancel(t *testing.T) {
	var model tea.Model = NewScanModel(make(chan discovery.Event), time.Minute, time.Now(), nil)
	model, cmd := model.Update(keyMsg("q"))
	if !isQuit(cmd) || !model.(ScanModel).Cancelled() {
		t.Error("Update(q) did not cancel the scan")
	}
}
