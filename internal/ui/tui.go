// ABOUTME: TUI initialization and control
// ABOUTME: Wraps the bubbletea program for the monitor
package ui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// Run starts the TUI for one device.
func Run(deviceID string, control *Control) (*tea.Program, error) {
	p := tea.NewProgram(NewModel(deviceID, control), tea.WithAltScreen())
	return p, nil
}
