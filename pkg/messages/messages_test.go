// ABOUTME: Tests for envelope codec and classification
// ABOUTME: Verifies wire field names, round trips, and malformed rejection
package messages

import (
	"encoding/json"
	"testing"

	"github.com/amora-project/amora-go/pkg/player"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCommandAssignsUUID(t *testing.T) {
	cmd := NewCommand("setVolume", map[string]any{"volume": 70})

	id, err := uuid.Parse(cmd.CommandID)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(4), id.Version())
	assert.Greater(t, cmd.Timestamp, 0.0)

	other := NewCommand("setVolume", nil)
	assert.NotEqual(t, cmd.CommandID, other.CommandID)
}

func TestCommandWireFormat(t *testing.T) {
	cmd := Command{Command: "play", CommandID: "abc", Timestamp: 12.5}
	data, err := Encode(cmd)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "play", raw["command"])
	assert.Equal(t, "abc", raw["commandId"])
	assert.Equal(t, 12.5, raw["timestamp"])
	assert.Contains(t, raw, "params")
}

func TestClassify(t *testing.T) {
	cases := []struct {
		payload string
		want    Kind
	}{
		{`{"command":"play","commandId":"x","timestamp":1}`, KindCommand},
		{`{"commandId":"x","result":true,"message":"ok","timestamp":1}`, KindResponse},
		{`{"state":"playing","volume":50,"timestamp":1}`, KindState},
		{`{"status":"online","timestamp":1}`, KindConnection},
		{`{"status":"offline","timestamp":1}`, KindConnection},
	}
	for _, c := range cases {
		kind, err := Classify([]byte(c.payload))
		require.NoError(t, err, c.payload)
		assert.Equal(t, c.want, kind, c.payload)
	}
}

func TestClassifyRejects(t *testing.T) {
	cases := []string{
		`not json`,
		`{}`,
		`{"status":"sideways"}`,
		`{"commandId":"x"}`, // neither command nor result present
	}
	for _, payload := range cases {
		_, err := Classify([]byte(payload))
		assert.ErrorIs(t, err, ErrMalformed, payload)
	}
}

func TestEncodeDecodeIdentity(t *testing.T) {
	envelopes := []any{
		Command{Command: "playTrack", CommandID: NewCommandID(), Params: map[string]any{"index": float64(3)}, Timestamp: 100.25},
		Response{CommandID: NewCommandID(), Result: true, Message: "play ok", Data: map[string]any{"volume": float64(70)}, Timestamp: 101.5},
		State{
			State:       player.StatePlaying,
			CurrentSong: &player.SongMeta{Title: "Song", Artist: "Artist", Album: "Album", File: "a.mp3", Duration: 180, Position: 42.5},
			Volume:      70,
			Repeat:      true,
			Playlist:    "Favorites",
			PlaylistTracks: []player.SongMeta{
				{File: "a.mp3", IsCurrent: true},
				{File: "b.mp3"},
			},
			Timestamp: 102.75,
		},
		Connection{Status: StatusOffline, Timestamp: 103},
	}

	for _, env := range envelopes {
		data, err := Encode(env)
		require.NoError(t, err)
		decoded, _, err := Decode(data)
		require.NoError(t, err)
		assert.Equal(t, env, decoded)
	}
}

func TestDecodeCommandValidation(t *testing.T) {
	_, err := DecodeCommand([]byte(`{"command":"","commandId":"x"}`))
	assert.ErrorIs(t, err, ErrMalformed)

	cmd, err := DecodeCommand([]byte(`{"command":"pause","commandId":"y","timestamp":5}`))
	require.NoError(t, err)
	assert.Equal(t, "pause", cmd.Command)
}

func TestStatePlayerStateRoundTrip(t *testing.T) {
	snapshot := player.PlayerState{
		State:       player.StatePaused,
		CurrentSong: &player.SongMeta{File: "x.flac", Duration: 300, Position: 12},
		Volume:      35,
		Random:      true,
		Playlist:    "Chill",
	}
	env := NewState(snapshot)
	assert.Greater(t, env.Timestamp, 0.0)
	assert.Equal(t, snapshot, env.PlayerState())
}
