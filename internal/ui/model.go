// ABOUTME: Bubbletea model for the monitor TUI
// ABOUTME: Renders cached device state and turns keystrokes into commands
package ui

import (
	"fmt"
	"strings"

	"github.com/amora-project/amora-go/pkg/player"
	tea "github.com/charmbracelet/bubbletea"
)

// StatusMsg carries a device update into the model. Nil fields leave
// the current value untouched.
type StatusMsg struct {
	Connected    *bool
	DeviceOnline *bool
	State        *player.PlayerState
	LastResponse string
	LastError    string
}

// CommandMsg asks the monitor to issue one session command.
type CommandMsg struct {
	Name   string
	Volume int // for setVolume
}

// Control carries keystroke-initiated commands out of the TUI.
type Control struct {
	Commands chan CommandMsg
}

// NewControl creates the command channel handler.
func NewControl() *Control {
	return &Control{Commands: make(chan CommandMsg, 10)}
}

// Model represents the TUI state.
type Model struct {
	deviceID string
	control  *Control

	// Connection
	connected    bool
	deviceOnline bool

	// Player
	state player.PlayerState
	have  bool

	// Feedback
	lastResponse string
	lastError    string

	// Dimensions
	width  int
	height int
}

// NewModel creates a model for one device.
func NewModel(deviceID string, control *Control) Model {
	return Model{deviceID: deviceID, control: control}
}

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case StatusMsg:
		m.applyStatus(msg)
	}

	return m, nil
}

// handleKey turns keystrokes into commands on the control channel.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case " ":
		name := "play"
		if m.state.State == player.StatePlaying {
			name = "pause"
		}
		m.send(CommandMsg{Name: name})
	case "s":
		m.send(CommandMsg{Name: "stop"})
	case "n":
		m.send(CommandMsg{Name: "next"})
	case "p":
		m.send(CommandMsg{Name: "previous"})
	case "up":
		m.send(CommandMsg{Name: "setVolume", Volume: clampVolume(m.state.Volume + 5)})
	case "down":
		m.send(CommandMsg{Name: "setVolume", Volume: clampVolume(m.state.Volume - 5)})
	case "r":
		m.send(CommandMsg{Name: "toggleRepeat"})
	case "z":
		m.send(CommandMsg{Name: "toggleRandom"})
	}

	return m, nil
}

func (m Model) send(cmd CommandMsg) {
	if m.control == nil {
		return
	}
	select {
	case m.control.Commands <- cmd:
	default:
	}
}

// applyStatus updates the model from a status message.
func (m *Model) applyStatus(msg StatusMsg) {
	if msg.Connected != nil {
		m.connected = *msg.Connected
	}
	if msg.DeviceOnline != nil {
		m.deviceOnline = *msg.DeviceOnline
	}
	if msg.State != nil {
		m.state = *msg.State
		m.have = true
	}
	if msg.LastResponse != "" {
		m.lastResponse = msg.LastResponse
		m.lastError = ""
	}
	if msg.LastError != "" {
		m.lastError = msg.LastError
	}
}

// View renders the TUI.
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	s := ""
	s += m.renderHeader()
	s += m.renderNowPlaying()
	s += m.renderControls()
	s += m.renderFeedback()
	s += m.renderHelp()

	return s
}

func (m Model) renderHeader() string {
	connStatus := "Disconnected"
	if m.connected {
		connStatus = "Connected"
	}
	presence := "offline"
	if m.deviceOnline {
		presence = "online"
	}

	return fmt.Sprintf(`┌─ Amora Monitor ──────────────────────────────────────┐
│ Broker: %-45s│
│ Device: %-15s (%s)%-24s│
├──────────────────────────────────────────────────────┤
`, connStatus, truncate(m.deviceID, 15), presence, "")
}

func (m Model) renderNowPlaying() string {
	if !m.have {
		return "│ No state received yet                                │\n"
	}

	s := fmt.Sprintf("│ State:  %-45s│\n", m.state.State)
	if song := m.state.CurrentSong; song != nil {
		s += fmt.Sprintf("│   Track:  %-42s │\n", truncate(song.Title, 42))
		s += fmt.Sprintf("│   Artist: %-42s │\n", truncate(song.Artist, 42))
		s += fmt.Sprintf("│   Album:  %-42s │\n", truncate(song.Album, 42))
		s += fmt.Sprintf("│   Time:   %s / %s%-31s│\n",
			formatSeconds(song.Position), formatSeconds(song.Duration), "")
	} else {
		s += "│   (no current song)                                  │\n"
	}
	if m.state.Playlist != "" {
		s += fmt.Sprintf("│ Playlist: %-42s │\n", truncate(m.state.Playlist, 42))
	}
	return s
}

func (m Model) renderControls() string {
	if !m.have {
		return ""
	}
	flags := ""
	if m.state.Repeat {
		flags += " repeat"
	}
	if m.state.Random {
		flags += " random"
	}
	if flags == "" {
		flags = " -"
	}

	volumeBar := renderBar(m.state.Volume, 100, 10)
	return fmt.Sprintf("│ Volume: [%s] %3d%%%-30s│\n│ Modes: %-45s │\n",
		volumeBar, m.state.Volume, "", flags)
}

func (m Model) renderFeedback() string {
	s := "├──────────────────────────────────────────────────────┤\n"
	if m.lastError != "" {
		s += fmt.Sprintf("│ Error: %-45s │\n", truncate(m.lastError, 45))
	} else if m.lastResponse != "" {
		s += fmt.Sprintf("│ Last:  %-45s │\n", truncate(m.lastResponse, 45))
	} else {
		s += "│                                                      │\n"
	}
	return s
}

func (m Model) renderHelp() string {
	return `│ space:Play/Pause s:Stop n/p:Track ↑/↓:Vol q:Quit    │
└──────────────────────────────────────────────────────┘
`
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

func renderBar(value, max, width int) string {
	if max <= 0 {
		max = 1
	}
	filled := value * width / max
	if filled > width {
		filled = width
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func formatSeconds(s float64) string {
	total := int(s)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

func clampVolume(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
