// ABOUTME: Tests for the monitor TUI model
// ABOUTME: Status application, key handling, and command emission
package ui

import (
	"testing"

	"github.com/amora-project/amora-go/pkg/player"
	tea "github.com/charmbracelet/bubbletea"
)

func TestNewModel(t *testing.T) {
	model := NewModel("dev-1", nil)

	if model.connected {
		t.Error("expected connected to be false initially")
	}
	if model.have {
		t.Error("expected no state initially")
	}
}

func TestStatusMsgConnected(t *testing.T) {
	model := NewModel("dev-1", nil)

	connected := true
	model.applyStatus(StatusMsg{Connected: &connected})

	if !model.connected {
		t.Error("expected connected to be true after status update")
	}
}

func TestStatusMsgState(t *testing.T) {
	model := NewModel("dev-1", nil)

	state := player.PlayerState{
		State:       player.StatePlaying,
		Volume:      70,
		CurrentSong: &player.SongMeta{Title: "Song", File: "a.mp3"},
	}
	model.applyStatus(StatusMsg{State: &state})

	if !model.have {
		t.Error("expected state to be recorded")
	}
	if model.state.Volume != 70 {
		t.Errorf("expected volume 70, got %d", model.state.Volume)
	}
}

func TestStatusMsgErrorClearedByResponse(t *testing.T) {
	model := NewModel("dev-1", nil)

	model.applyStatus(StatusMsg{LastError: "timeout"})
	if model.lastError != "timeout" {
		t.Errorf("expected error recorded, got %q", model.lastError)
	}

	model.applyStatus(StatusMsg{LastResponse: "play ok"})
	if model.lastError != "" {
		t.Error("expected error cleared by response")
	}
}

func TestSpaceTogglesPlayPause(t *testing.T) {
	control := NewControl()
	model := NewModel("dev-1", control)

	updated, _ := model.Update(tea.KeyMsg{Type: tea.KeySpace})
	cmd := <-control.Commands
	if cmd.Name != "play" {
		t.Errorf("expected play while stopped, got %s", cmd.Name)
	}

	m := updated.(Model)
	state := player.PlayerState{State: player.StatePlaying}
	m.applyStatus(StatusMsg{State: &state})
	m.Update(tea.KeyMsg{Type: tea.KeySpace})
	cmd = <-control.Commands
	if cmd.Name != "pause" {
		t.Errorf("expected pause while playing, got %s", cmd.Name)
	}
}

func TestVolumeKeysClamp(t *testing.T) {
	control := NewControl()
	model := NewModel("dev-1", control)

	state := player.PlayerState{State: player.StateStopped, Volume: 98}
	model.applyStatus(StatusMsg{State: &state})

	model.Update(tea.KeyMsg{Type: tea.KeyUp})
	cmd := <-control.Commands
	if cmd.Name != "setVolume" || cmd.Volume != 100 {
		t.Errorf("expected setVolume 100, got %s %d", cmd.Name, cmd.Volume)
	}
}

func TestQuitKey(t *testing.T) {
	model := NewModel("dev-1", nil)
	_, cmd := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
}
