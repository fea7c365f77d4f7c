// ABOUTME: Envelope types exchanged over the device topics
// ABOUTME: JSON codec with field-presence classification and command ID assignment
package messages

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/amora-project/amora-go/pkg/player"
	"github.com/google/uuid"
)

// ErrMalformed is returned when a payload cannot be decoded into any
// envelope kind.
var ErrMalformed = errors.New("malformed message")

// Kind discriminates the envelope variants.
type Kind int

const (
	KindUnknown Kind = iota
	KindCommand
	KindResponse
	KindState
	KindConnection
)

func (k Kind) String() string {
	switch k {
	case KindCommand:
		return "command"
	case KindResponse:
		return "response"
	case KindState:
		return "state"
	case KindConnection:
		return "connection"
	}
	return "unknown"
}

// Presence values used in Connection envelopes.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Command asks the device to perform one player operation. CommandID is
// a version-4 UUID unique per producing session; Timestamp is the
// client's wall clock in seconds and is diagnostic only.
type Command struct {
	Command   string         `json:"command"`
	CommandID string         `json:"commandId"`
	Params    map[string]any `json:"params"`
	Timestamp float64        `json:"timestamp"`
}

// Response answers exactly one Command. Duplicates may arrive under
// QoS 1 delivery and are dropped by correlation.
type Response struct {
	CommandID string         `json:"commandId"`
	Result    bool           `json:"result"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data"`
	Timestamp float64        `json:"timestamp"`
}

// State carries a full player snapshot. It is retained on the broker so
// late subscribers receive the last known value.
type State struct {
	State          player.State      `json:"state"`
	CurrentSong    *player.SongMeta  `json:"currentSong,omitempty"`
	Volume         int               `json:"volume"`
	Repeat         bool              `json:"repeat"`
	Random         bool              `json:"random"`
	Playlist       string            `json:"playlist,omitempty"`
	PlaylistTracks []player.SongMeta `json:"playlistTracks,omitempty"`
	Timestamp      float64           `json:"timestamp"`
}

// PlayerState strips the timestamp back off the envelope.
func (s State) PlayerState() player.PlayerState {
	return player.PlayerState{
		State:          s.State,
		CurrentSong:    s.CurrentSong,
		Volume:         s.Volume,
		Repeat:         s.Repeat,
		Random:         s.Random,
		Playlist:       s.Playlist,
		PlaylistTracks: s.PlaylistTracks,
	}
}

// Connection reports device presence. Retained; offline doubles as the
// device session's last-will payload.
type Connection struct {
	Status    string  `json:"status"`
	Timestamp float64 `json:"timestamp"`
}

// Now returns the wall clock as float seconds since the Unix epoch.
func Now() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}

// NewCommandID returns a fresh version-4 UUID string.
func NewCommandID() string {
	return uuid.NewString()
}

// NewCommand builds a Command with a fresh ID and current timestamp.
func NewCommand(command string, params map[string]any) Command {
	return Command{
		Command:   command,
		CommandID: NewCommandID(),
		Params:    params,
		Timestamp: Now(),
	}
}

// NewResponse builds a Response correlated to a command ID.
func NewResponse(commandID string, result bool, message string, data map[string]any) Response {
	return Response{
		CommandID: commandID,
		Result:    result,
		Message:   message,
		Data:      data,
		Timestamp: Now(),
	}
}

// NewState wraps a snapshot into a State envelope stamped now.
func NewState(s player.PlayerState) State {
	return State{
		State:          s.State,
		CurrentSong:    s.CurrentSong,
		Volume:         s.Volume,
		Repeat:         s.Repeat,
		Random:         s.Random,
		Playlist:       s.Playlist,
		PlaylistTracks: s.PlaylistTracks,
		Timestamp:      Now(),
	}
}

// NewConnection builds a presence envelope stamped now.
func NewConnection(status string) Connection {
	return Connection{Status: status, Timestamp: Now()}
}

// Encode serializes any envelope as UTF-8 JSON.
func Encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return data, nil
}

// Classify inspects a payload and reports which envelope kind it holds:
// command+commandId is a Command, commandId+result a Response, a
// top-level state field a State, a top-level online/offline status a
// Connection. Anything else is malformed.
func Classify(payload []byte) (Kind, error) {
	var probe struct {
		Command   *string `json:"command"`
		CommandID *string `json:"commandId"`
		Result    *bool   `json:"result"`
		State     *string `json:"state"`
		Status    *string `json:"status"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		return KindUnknown, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	switch {
	case probe.Command != nil && probe.CommandID != nil:
		return KindCommand, nil
	case probe.CommandID != nil && probe.Result != nil:
		return KindResponse, nil
	case probe.State != nil:
		return KindState, nil
	case probe.Status != nil && (*probe.Status == StatusOnline || *probe.Status == StatusOffline):
		return KindConnection, nil
	}
	return KindUnknown, ErrMalformed
}

// Decode classifies and decodes a payload. The returned value is one of
// Command, Response, State, or Connection.
func Decode(payload []byte) (any, Kind, error) {
	kind, err := Classify(payload)
	if err != nil {
		return nil, KindUnknown, err
	}
	switch kind {
	case KindCommand:
		var c Command
		err = json.Unmarshal(payload, &c)
		return c, kind, wrapDecode(err)
	case KindResponse:
		var r Response
		err = json.Unmarshal(payload, &r)
		return r, kind, wrapDecode(err)
	case KindState:
		var s State
		err = json.Unmarshal(payload, &s)
		return s, kind, wrapDecode(err)
	default:
		var c Connection
		err = json.Unmarshal(payload, &c)
		return c, kind, wrapDecode(err)
	}
}

// DecodeCommand decodes a payload known to arrive on the commands topic.
func DecodeCommand(payload []byte) (Command, error) {
	var c Command
	if err := json.Unmarshal(payload, &c); err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if c.Command == "" || c.CommandID == "" {
		return Command{}, fmt.Errorf("%w: missing command or commandId", ErrMalformed)
	}
	return c, nil
}

// DecodeResponse decodes a payload known to arrive on the responses
// topic. An empty commandId is legal: the device answers malformed
// commands without a correlation ID.
func DecodeResponse(payload []byte) (Response, error) {
	var r Response
	if err := json.Unmarshal(payload, &r); err != nil {
		return Response{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return r, nil
}

// DecodeState decodes a payload known to arrive on the state topic.
func DecodeState(payload []byte) (State, error) {
	v, kind, err := Decode(payload)
	if err != nil {
		return State{}, err
	}
	if kind != KindState {
		return State{}, fmt.Errorf("%w: not a state envelope", ErrMalformed)
	}
	return v.(State), nil
}

func wrapDecode(err error) error {
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}
