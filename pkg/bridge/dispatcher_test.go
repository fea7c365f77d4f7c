// ABOUTME: Tests for the command dispatcher
// ABOUTME: Covers routing, validation failures, unknown commands, and panics
package bridge

import (
	"context"
	"testing"
	"time"

	"github.com/amora-project/amora-go/pkg/messages"
	"github.com/amora-project/amora-go/pkg/topics"
	"github.com/amora-project/amora-go/pkg/transport/transporttest"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dispatcherHarness struct {
	d         *Dispatcher
	p         *fakePlayer
	responses chan messages.Response
	cancel    context.CancelFunc
}

func newDispatcherHarness(t *testing.T) *dispatcherHarness {
	t.Helper()

	broker := transporttest.NewBroker()
	ts := topics.New("amora/devices", "dev-1")

	device := broker.Client("device")
	require.NoError(t, device.Connect())

	observer := broker.Client("observer")
	require.NoError(t, observer.Connect())

	responses := make(chan messages.Response, 16)
	require.NoError(t, observer.Subscribe(ts.Responses(), 1, func(_ string, payload []byte) {
		if resp, err := messages.DecodeResponse(payload); err == nil {
			responses <- resp
		}
	}))

	p := newFakePlayer()
	d := NewDispatcher(device, ts, 1, zerolog.Nop())
	d.RegisterStandard(p)

	ctx, cancel := context.WithCancel(context.Background())
	go d.Run(ctx)
	t.Cleanup(cancel)

	return &dispatcherHarness{d: d, p: p, responses: responses, cancel: cancel}
}

func (h *dispatcherHarness) send(t *testing.T, cmd messages.Command) messages.Response {
	t.Helper()
	payload, err := messages.Encode(cmd)
	require.NoError(t, err)
	h.d.HandleMessage("", payload)

	select {
	case resp := <-h.responses:
		return resp
	case <-time.After(2 * time.Second):
		t.Fatalf("no response for %s", cmd.Command)
		return messages.Response{}
	}
}

func TestDispatcherExecutesCommand(t *testing.T) {
	h := newDispatcherHarness(t)

	cmd := messages.NewCommand("play", nil)
	resp := h.send(t, cmd)

	assert.Equal(t, cmd.CommandID, resp.CommandID)
	assert.True(t, resp.Result)
	assert.Equal(t, "play ok", resp.Message)
	assert.True(t, h.p.called("play"))
}

func TestDispatcherUnknownCommand(t *testing.T) {
	h := newDispatcherHarness(t)

	cmd := messages.NewCommand("teleport", nil)
	resp := h.send(t, cmd)

	assert.Equal(t, cmd.CommandID, resp.CommandID)
	assert.False(t, resp.Result)
	assert.Equal(t, "unknown command", resp.Message)
}

func TestDispatcherMalformedPayload(t *testing.T) {
	h := newDispatcherHarness(t)

	h.d.HandleMessage("", []byte("{not json"))

	select {
	case resp := <-h.responses:
		assert.False(t, resp.Result)
		assert.Equal(t, "malformed command", resp.Message)
		assert.Empty(t, resp.CommandID)
	case <-time.After(2 * time.Second):
		t.Fatal("no malformed-command response")
	}
}

func TestDispatcherVolumeOutOfRange(t *testing.T) {
	h := newDispatcherHarness(t)

	for _, v := range []float64{-1, 101} {
		resp := h.send(t, messages.NewCommand("setVolume", map[string]any{"volume": v}))
		assert.False(t, resp.Result, "volume %v", v)
		assert.Contains(t, resp.Message, "invalid argument")
	}
	assert.False(t, h.p.called("setVolume"))

	resp := h.send(t, messages.NewCommand("setVolume", map[string]any{"volume": float64(70)}))
	assert.True(t, resp.Result)
	assert.True(t, h.p.called("setVolume"))
}

func TestDispatcherMissingParam(t *testing.T) {
	h := newDispatcherHarness(t)

	resp := h.send(t, messages.NewCommand("playPlaylist", nil))
	assert.False(t, resp.Result)
	assert.Contains(t, resp.Message, "invalid argument")
}

func TestDispatcherHandlerFailure(t *testing.T) {
	h := newDispatcherHarness(t)
	h.p.failAll = true

	resp := h.send(t, messages.NewCommand("next", nil))
	assert.False(t, resp.Result)
	assert.Contains(t, resp.Message, "daemon unavailable")
}

func TestDispatcherHandlerPanicDoesNotCrash(t *testing.T) {
	h := newDispatcherHarness(t)
	h.d.Register("explode", func(map[string]any) Result {
		panic("boom")
	})

	resp := h.send(t, messages.NewCommand("explode", nil))
	assert.False(t, resp.Result)
	assert.Contains(t, resp.Message, "boom")

	// Dispatcher still serves after the panic.
	resp = h.send(t, messages.NewCommand("play", nil))
	assert.True(t, resp.Result)
}

func TestDispatcherGetVolumeData(t *testing.T) {
	h := newDispatcherHarness(t)

	resp := h.send(t, messages.NewCommand("getVolume", nil))
	require.True(t, resp.Result)
	assert.Equal(t, float64(50), resp.Data["volume"])
}

func TestDispatcherGetPlaylistsData(t *testing.T) {
	h := newDispatcherHarness(t)
	require.True(t, h.send(t, messages.NewCommand("createPlaylist", map[string]any{
		"name":  "Favorites",
		"files": []any{"a.mp3", "b.mp3"},
	})).Result)

	resp := h.send(t, messages.NewCommand("getPlaylists", nil))
	require.True(t, resp.Result)
	assert.Equal(t, []any{"Favorites"}, resp.Data["playlists"])

	resp = h.send(t, messages.NewCommand("getPlaylistSongs", map[string]any{"name": "Favorites"}))
	require.True(t, resp.Result)
	songs := resp.Data["songs"].([]any)
	assert.Len(t, songs, 2)
}

func TestDispatcherCommandsProcessedInOrder(t *testing.T) {
	h := newDispatcherHarness(t)

	first := messages.NewCommand("play", nil)
	second := messages.NewCommand("pause", nil)
	for _, cmd := range []messages.Command{first, second} {
		payload, err := messages.Encode(cmd)
		require.NoError(t, err)
		h.d.HandleMessage("", payload)
	}

	resp1 := <-h.responses
	resp2 := <-h.responses
	assert.Equal(t, first.CommandID, resp1.CommandID)
	assert.Equal(t, second.CommandID, resp2.CommandID)
}
