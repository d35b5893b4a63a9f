package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/muurk/castscan/internal/discovery"
)

const scanTickInterval = 100 * time.Millisecond

type scanTickMsg time.Time

func scanTick() tea.Cmd {
	return tea.Tick(scanTickInterval, func(t time.Time) tea.Msg { return scanTickMsg(t) })
}

// ScanModel shows a progress bar and the names of devices found while a
// timed scan runs. It quits when the duration has elapsed.
type ScanModel struct {
	events   <-chan discovery.Event
	duration time.Duration
	start    time.Time
	header   *Header

	found     map[string]string // device ID to label
	order     []string
	errs      []error
	cancelled bool
	done      bool

	bar     progress.Model
	spinner spinner.Model
	percent float64
}

// NewScanModel creates a scan screen. start is normally time.Now().
func NewScanModel(events <-chan discovery.Event, duration time.Duration, start time.Time, header *Header) ScanModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	return ScanModel{
		events:   events,
		duration: duration,
		start:    start,
		header:   header,
		found:    make(map[string]string),
		bar:      progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		spinner:  s,
	}
}

// Init implements tea.Model
func (m ScanModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForEvent(m.events), scanTick())
}

// Update implements tea.Model
func (m ScanModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			m.cancelled = true
			return m, tea.Quit
		}

	case scanTickMsg:
		elapsed := time.Time(msg).Sub(m.start)
		if m.duration > 0 {
			m.percent = float64(elapsed) / float64(m.duration)
		}
		if m.duration <= 0 || m.percent >= 1 {
			m.percent = 1
			m.done = true
			return m, tea.Quit
		}
		return m, scanTick()

	case EventMsg:
		ev := discovery.Event(msg)
		switch {
		case ev.Kind == discovery.DiscoveryFailed && ev.Err != nil:
			m.errs = append(m.errs, ev.Err)
		case ev.Device == nil:
		case ev.Kind == discovery.DeviceRemoved:
			m.remove(ev.Device.ID())
		default:
			m.add(ev.Device.ID(), fmt.Sprintf("%s (%s)", ev.Device.FriendlyName(), ev.Device.IPAddress()))
		}
		return m, waitForEvent(m.events)

	case streamClosedMsg:
		m.done = true
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *ScanModel) add(id, label string) {
	if _, ok := m.found[id]; !ok {
		m.order = append(m.order, id)
	}
	m.found[id] = label
}

func (m *ScanModel) remove(id string) {
	if _, ok := m.found[id]; !ok {
		return
	}
	delete(m.found, id)
	for i, x := range m.order {
		if x == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// Found returns the labels of devices found so far, in discovery order
func (m ScanModel) Found() []string {
	out := make([]string, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.found[id])
	}
	return out
}

// Cancelled reports whether the user stopped the scan early
func (m ScanModel) Cancelled() bool { return m.cancelled }

// Done reports whether the scan ran to completion
func (m ScanModel) Done() bool { return m.done }

// Errors returns discovery failures seen during the scan
func (m ScanModel) Errors() []error { return m.errs }

// View implements tea.Model
func (m ScanModel) View() string {
	var b strings.Builder
	if m.header != nil {
		b.WriteString(m.header.Render())
		b.WriteString("\n\n")
	}

	remaining := m.duration - time.Duration(m.percent*float64(m.duration))
	b.WriteString(StatusStyle.Render(fmt.Sprintf("%s %s  %s left",
		m.spinner.View(), m.bar.ViewAs(m.percent), remaining.Round(time.Second))))
	b.WriteString("\n\n")

	for _, label := range m.Found() {
		b.WriteString(StatusStyle.Render(EventAddedStyle.Render(AddedMarker) + " " + label))
		b.WriteString("\n")
	}
	for _, err := range m.errs {
		b.WriteString(StatusStyle.Render(ErrorMessageStyle.Render(FailureMarker + " " + err.Error())))
		b.WriteString("\n")
	}
	return b.String()
}

// RunScan shows the scan screen until the duration elapses. It returns the
// final model so callers can tell whether the user cancelled.
func RunScan(events <-chan discovery.Event, duration time.Duration, header *Header) (ScanModel, error) {
	final, err := tea.NewProgram(NewScanModel(events, duration, time.Now(), header)).Run()
	if err != nil {
		return ScanModel{}, err
	}
	return final.(ScanModel), nil
}
