package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/castscan/internal/device"
	"github.com/muurk/castscan/internal/discovery"
)

// refreshInterval is how often "last seen" cells are recomputed
const refreshInterval = time.Second

// EventMsg carries one manager event into a model
type EventMsg discovery.Event

type streamClosedMsg struct{}

type refreshMsg time.Time

// waitForEvent reads the next event off ch
func waitForEvent(ch <-chan discovery.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return streamClosedMsg{}
		}
		return EventMsg(ev)
	}
}

func refreshTick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return refreshMsg(t) })
}

// watchKeyMap defines key bindings for the watch screen
type watchKeyMap struct {
	Up     key.Binding
	Down   key.Binding
	Rescan key.Binding
	Help   key.Binding
	Quit   key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k watchKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Rescan, k.Help, k.Quit}
}

// FullHelp returns keybindings for the expanded help view
func (k watchKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down},
		{k.Rescan, k.Help, k.Quit},
	}
}

func newWatchKeyMap() watchKeyMap {
	return watchKeyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "move up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "move down"),
		),
		Rescan: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "rescan"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "more keys"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "esc", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// WatchOptions configures a WatchModel
type WatchOptions struct {
	Events  <-chan discovery.Event // Usually a manager subscription
	Rescan  func()                 // Called on the rescan key, may be nil
	Command string                 // Shown in the header
	Params  []Param
	Now     func() time.Time // Defaults to time.Now
}

// WatchModel is the live device table of castscan watch
type WatchModel struct {
	events  <-chan discovery.Event
	rescan  func()
	now     func() time.Time
	header  *Header
	devices map[string]device.View

	table   table.Model
	spinner spinner.Model
	help    help.Model
	keys    watchKeyMap

	width     int
	height    int
	lastEvent string
	lastErr   error
	closed    bool
}

// NewWatchModel creates the watch screen
func NewWatchModel(opts WatchOptions) WatchModel {
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(PrimaryColor).
		BorderBottom(true).
		Bold(true)
	styles.Selected = styles.Selected.
		Foreground(TextColor).
		Background(PrimaryColor).
		Bold(false)

	width, height := GetTerminalSize()
	t := table.New(
		table.WithColumns(deviceColumns(width)),
		table.WithFocused(true),
		table.WithHeight(tableHeight(height)),
	)
	t.SetStyles(styles)

	return WatchModel{
		events:  opts.Events,
		rescan:  opts.Rescan,
		now:     now,
		header:  NewHeader("Watching for devices", opts.Command, opts.Params...).SetWidth(width),
		devices: make(map[string]device.View),
		table:   t,
		spinner: s,
		help:    help.New(),
		keys:    newWatchKeyMap(),
		width:   width,
		height:  height,
	}
}

// deviceColumns sizes the table columns for a terminal width
func deviceColumns(width int) []table.Column {
	fixed := 15 + 12 + 10 // IP, capabilities, last seen
	flex := width - fixed - 12
	if flex < 30 {
		flex = 30
	}
	return []table.Column{
		{Title: DeviceColumns[0], Width: flex * 2 / 5},
		{Title: DeviceColumns[1], Width: 15},
		{Title: DeviceColumns[2], Width: flex / 4},
		{Title: DeviceColumns[3], Width: flex - flex*2/5 - flex/4},
		{Title: DeviceColumns[4], Width: 12},
		{Title: DeviceColumns[5], Width: 10},
	}
}

// tableHeight leaves room for the header, status and help lines
func tableHeight(height int) int {
	h := height - 14
	if h < 5 {
		h = 5
	}
	return h
}

// Init implements tea.Model
func (m WatchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForEvent(m.events), refreshTick())
}

// Update implements tea.Model
func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Rescan):
			if m.rescan != nil && !m.closed {
				m.rescan()
				m.lastEvent = "rescan requested"
			}
			return m, nil
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width, m.height = clampWidth(msg.Width), msg.Height
		m.header.SetWidth(m.width)
		m.help.Width = m.width
		m.table.SetColumns(deviceColumns(m.width))
		m.table.SetHeight(tableHeight(m.height))
		return m, nil

	case EventMsg:
		m.apply(discovery.Event(msg))
		return m, waitForEvent(m.events)

	case streamClosedMsg:
		m.closed = true
		return m, nil

	case refreshMsg:
		m.refreshRows()
		return m, refreshTick()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m *WatchModel) apply(ev discovery.Event) {
	var name string
	if ev.Device != nil {
		v := ev.Device.View()
		name = fmt.Sprintf("%s (%s)", v.FriendlyName, v.IPAddress)
		switch ev.Kind {
		case discovery.DeviceAdded, discovery.DeviceUpdated:
			m.devices[v.ID] = v
		case discovery.DeviceRemoved:
			delete(m.devices, v.ID)
		}
	}

	switch ev.Kind {
	case discovery.DeviceAdded:
		m.lastEvent = EventAddedStyle.Render(AddedMarker + " " + name)
	case discovery.DeviceUpdated:
		m.lastEvent = EventUpdatedStyle.Render(UpdatedMarker + " " + name)
	case discovery.DeviceRemoved:
		m.lastEvent = EventRemovedStyle.Render(RemovedMarker + " " + name)
	case discovery.DiscoveryFailed:
		m.lastErr = ev.Err
	}
	m.refreshRows()
}

func (m *WatchModel) refreshRows() {
	views := m.Devices()
	now := m.now()
	rows := make([]table.Row, 0, len(views))
	for _, v := range views {
		rows = append(rows, table.Row(DeviceRow(v, now)))
	}
	m.table.SetRows(rows)
}

// Devices returns the devices on screen in display order
func (m WatchModel) Devices() []device.View {
	views := make([]device.View, 0, len(m.devices))
	for _, v := range m.devices {
		views = append(views, v)
	}
	SortViews(views)
	return views
}

// Selected returns the highlighted device, if any
func (m WatchModel) Selected() (device.View, bool) {
	views := m.Devices()
	i := m.table.Cursor()
	if i < 0 || i >= len(views) {
		return device.View{}, false
	}
	return views[i], true
}

// View implements tea.Model
func (m WatchModel) View() string {
	var b strings.Builder

	b.WriteString(m.header.Render())
	b.WriteString("\n\n")

	if m.closed {
		b.WriteString(StatusStyle.Render(fmt.Sprintf("Discovery stopped · %d devices", len(m.devices))))
	} else {
		b.WriteString(StatusStyle.Render(fmt.Sprintf("%s Searching · %d devices", m.spinner.View(), len(m.devices))))
	}
	b.WriteString("\n\n")

	b.WriteString(lipgloss.NewStyle().PaddingLeft(2).Render(m.table.View()))
	b.WriteString("\n\n")

	if m.lastEvent != "" {
		b.WriteString(StatusStyle.Render(m.lastEvent))
		b.WriteString("\n")
	}
	if m.lastErr != nil {
		b.WriteString(StatusStyle.Render(ErrorMessageStyle.Render(FailureMarker + " " + m.lastErr.Error())))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(HelpStyle.Render(m.help.View(m.keys)))
	b.WriteString("\n")
	return b.String()
}

// RunWatch runs the watch screen until the user quits
func RunWatch(opts WatchOptions) error {
	_, err := tea.NewProgram(NewWatchModel(opts), tea.WithAltScreen()).Run()
	return err
}
