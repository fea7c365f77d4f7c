// ABOUTME: Lifecycle tests for the device bridge
// ABOUTME: Presence publishing, command round trips, reconnect announcements
package bridge

import (
	"context"
	"testing"
	"time"

	"github.com/amora-project/amora-go/pkg/messages"
	"github.com/amora-project/amora-go/pkg/topics"
	"github.com/amora-project/amora-go/pkg/transport"
	"github.com/amora-project/amora-go/pkg/transport/transporttest"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type bridgeHarness struct {
	b        *Bridge
	p        *fakePlayer
	broker   *transporttest.Broker
	device   *transporttest.Client
	observer *transporttest.Client
	ts       topics.Set
	cancel   context.CancelFunc
	done     chan error
}

func newBridgeHarness(t *testing.T) *bridgeHarness {
	t.Helper()

	broker := transporttest.NewBroker()
	device := broker.Client("device")
	device.SetWill(transport.LastWill{
		Topic:   topics.New("", "dev-1").Connection(),
		Payload: mustEncode(t, messages.NewConnection(messages.StatusOffline)),
		QoS:     1,
		Retain:  true,
	})

	p := newFakePlayer()
	b, err := New(Config{
		DeviceID:  "dev-1",
		Player:    p,
		Transport: device,
		Publisher: PublisherConfig{UpdateInterval: 20 * time.Millisecond},
		Logger:    zerolog.Nop(),
	})
	require.NoError(t, err)

	observer := broker.Client("observer")
	require.NoError(t, observer.Connect())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()
	t.Cleanup(cancel)

	h := &bridgeHarness{
		b: b, p: p, broker: broker, device: device, observer: observer,
		ts: b.Topics(), cancel: cancel, done: done,
	}
	h.waitRetainedState(t)
	return h
}

func mustEncode(t *testing.T, v any) []byte {
	t.Helper()
	data, err := messages.Encode(v)
	require.NoError(t, err)
	return data
}

func (h *bridgeHarness) waitRetainedState(t *testing.T) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if h.broker.Retained(h.ts.State()) != nil {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("bridge never published retained state")
}

func (h *bridgeHarness) retainedConnection(t *testing.T) messages.Connection {
	t.Helper()
	payload := h.broker.Retained(h.ts.Connection())
	require.NotNil(t, payload)
	v, kind, err := messages.Decode(payload)
	require.NoError(t, err)
	require.Equal(t, messages.KindConnection, kind)
	return v.(messages.Connection)
}

func TestBridgePublishesPresenceAndInitialState(t *testing.T) {
	h := newBridgeHarness(t)

	assert.Equal(t, messages.StatusOnline, h.retainedConnection(t).Status)

	state, err := messages.DecodeState(h.broker.Retained(h.ts.State()))
	require.NoError(t, err)
	assert.Equal(t, 50, state.Volume)
}

func TestBridgeCommandRoundTrip(t *testing.T) {
	h := newBridgeHarness(t)

	responses := make(chan messages.Response, 1)
	require.NoError(t, h.observer.Subscribe(h.ts.Responses(), 1, func(_ string, payload []byte) {
		if r, err := messages.DecodeResponse(payload); err == nil {
			responses <- r
		}
	}))

	cmd := messages.NewCommand("play", nil)
	require.NoError(t, h.observer.Publish(h.ts.Commands(), mustEncode(t, cmd), 1, false))

	select {
	case resp := <-responses:
		assert.Equal(t, cmd.CommandID, resp.CommandID)
		assert.True(t, resp.Result)
	case <-time.After(2 * time.Second):
		t.Fatal("no response")
	}
	assert.True(t, h.p.called("play"))
}

func TestBridgeShutdownPublishesOffline(t *testing.T) {
	h := newBridgeHarness(t)

	h.cancel()
	select {
	case err := <-h.done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("bridge did not stop")
	}

	assert.Equal(t, messages.StatusOffline, h.retainedConnection(t).Status)
}

func TestBridgeLastWillFiresOnDrop(t *testing.T) {
	h := newBridgeHarness(t)

	h.broker.Drop(h.device)
	assert.Equal(t, messages.StatusOffline, h.retainedConnection(t).Status)
}

func TestBridgeReannouncesOnReconnect(t *testing.T) {
	h := newBridgeHarness(t)

	h.broker.Drop(h.device)
	require.Equal(t, messages.StatusOffline, h.retainedConnection(t).Status)

	h.device.Reconnect()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if h.retainedConnection(t).Status == messages.StatusOnline {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	assert.Equal(t, messages.StatusOnline, h.retainedConnection(t).Status)

	// Commands still served after the reconnect.
	responses := make(chan messages.Response, 1)
	require.NoError(t, h.observer.Subscribe(h.ts.Responses(), 1, func(_ string, payload []byte) {
		if r, err := messages.DecodeResponse(payload); err == nil {
			responses <- r
		}
	}))
	cmd := messages.NewCommand("pause", nil)
	require.NoError(t, h.observer.Publish(h.ts.Commands(), mustEncode(t, cmd), 1, false))
	select {
	case resp := <-responses:
		assert.Equal(t, cmd.CommandID, resp.CommandID)
	case <-time.After(2 * time.Second):
		t.Fatal("no response after reconnect")
	}
}

func TestBridgeRequiresPlayerAndDevice(t *testing.T) {
	_, err := New(Config{Player: newFakePlayer()})
	assert.Error(t, err)

	_, err = New(Config{DeviceID: "dev-1"})
	assert.Error(t, err)
}
