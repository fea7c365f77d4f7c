// ABOUTME: MQTT transport implementation over the paho client
// ABOUTME: Owns the subscription registry and the reconnect loop with backoff
package transport

import (
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTT is the paho-backed Transport. Create with NewMQTT; safe for
// concurrent use.
type MQTT struct {
	opts Options

	mu        sync.RWMutex
	client    mqtt.Client
	status    Status
	subs      map[string]subscription
	observers []func(Status)
	closing   bool
	done      chan struct{}
}

type subscription struct {
	qos     byte
	handler MessageHandler
}

var _ Transport = (*MQTT)(nil)

// NewMQTT builds a transport from options. No connection is made until
// Connect.
func NewMQTT(opts Options) (*MQTT, error) {
	opts = opts.withDefaults()
	if opts.BrokerURL == "" {
		return nil, fmt.Errorf("transport: broker URL is required")
	}
	if opts.ClientID == "" {
		return nil, fmt.Errorf("transport: client ID is required")
	}

	t := &MQTT{
		opts:   opts,
		status: StatusDisconnected,
		subs:   make(map[string]subscription),
		done:   make(chan struct{}),
	}

	co := mqtt.NewClientOptions().
		AddBroker(opts.brokerAddr()).
		SetClientID(opts.ClientID).
		SetKeepAlive(opts.KeepAlive).
		SetCleanSession(opts.CleanSession).
		SetConnectTimeout(opts.ConnectTimeout).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetOrderMatters(true).
		SetConnectionLostHandler(t.onConnectionLost)

	if opts.Username != "" {
		co.SetUsername(opts.Username)
		co.SetPassword(opts.Password)
	}
	if opts.UseTLS {
		tlsCfg, err := opts.tlsConfig()
		if err != nil {
			return nil, fmt.Errorf("transport: %w", err)
		}
		co.SetTLSConfig(tlsCfg)
	}
	if w := opts.Will; w != nil {
		co.SetBinaryWill(w.Topic, w.Payload, w.QoS, w.Retain)
	}

	t.client = mqtt.NewClient(co)
	return t, nil
}

// Connect makes one connection attempt within the configured timeout.
// On failure it returns ErrUnavailable; if ReconnectOnFailure is set,
// the reconnect loop keeps trying in the background.
func (t *MQTT) Connect() error {
	t.setStatus(StatusConnecting)
	if err := t.attempt(); err != nil {
		t.setStatus(StatusError)
		if t.opts.ReconnectOnFailure {
			go t.reconnectLoop()
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	t.setStatus(StatusConnected)
	return nil
}

// attempt runs a single connect and restores subscriptions before the
// transport is declared connected.
func (t *MQTT) attempt() error {
	token := t.client.Connect()
	if !token.WaitTimeout(t.opts.ConnectTimeout) {
		return fmt.Errorf("connect timed out after %s", t.opts.ConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return err
	}
	return t.restoreSubscriptions()
}

// Disconnect closes the connection and stops the reconnect loop.
// Idempotent.
func (t *MQTT) Disconnect() {
	t.mu.Lock()
	if t.closing {
		t.mu.Unlock()
		return
	}
	t.closing = true
	close(t.done)
	t.mu.Unlock()

	if t.client.IsConnectionOpen() {
		t.client.Disconnect(250)
	}
	t.setStatus(StatusDisconnected)
}

// Subscribe registers a handler and subscribes on the broker. The
// subscription is re-established after reconnects.
func (t *MQTT) Subscribe(topic string, qos byte, h MessageHandler) error {
	if t.Status() != StatusConnected {
		return ErrNotConnected
	}

	token := t.client.Subscribe(topic, qos, func(_ mqtt.Client, m mqtt.Message) {
		h(m.Topic(), m.Payload())
	})
	if !token.WaitTimeout(t.opts.ConnectTimeout) {
		return fmt.Errorf("subscribe %s: timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}

	t.mu.Lock()
	t.subs[topic] = subscription{qos: qos, handler: h}
	t.mu.Unlock()
	t.opts.Logger.Debug().Str("topic", topic).Msg("subscribed")
	return nil
}

// Unsubscribe removes a subscription from the broker and the registry.
func (t *MQTT) Unsubscribe(topic string) error {
	t.mu.Lock()
	delete(t.subs, topic)
	t.mu.Unlock()

	if t.Status() != StatusConnected {
		return ErrNotConnected
	}
	token := t.client.Unsubscribe(topic)
	if !token.WaitTimeout(t.opts.ConnectTimeout) {
		return fmt.Errorf("unsubscribe %s: timed out", topic)
	}
	return token.Error()
}

// Publish sends a payload. Messages are rejected, not queued, while the
// transport is down.
func (t *MQTT) Publish(topic string, payload []byte, qos byte, retain bool) error {
	if t.Status() != StatusConnected {
		return ErrNotConnected
	}
	token := t.client.Publish(topic, qos, retain, payload)
	if !token.WaitTimeout(t.opts.ConnectTimeout) {
		return fmt.Errorf("publish %s: timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Status returns the current connection state.
func (t *MQTT) Status() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// Observe registers a connection-state observer.
func (t *MQTT) Observe(fn func(Status)) {
	t.mu.Lock()
	t.observers = append(t.observers, fn)
	t.mu.Unlock()
}

func (t *MQTT) setStatus(s Status) {
	t.mu.Lock()
	if t.status == s {
		t.mu.Unlock()
		return
	}
	t.status = s
	observers := append([]func(Status){}, t.observers...)
	t.mu.Unlock()

	t.opts.Logger.Info().Stringer("status", s).Msg("connection state changed")
	for _, fn := range observers {
		fn(s)
	}
}

func (t *MQTT) onConnectionLost(_ mqtt.Client, err error) {
	t.mu.RLock()
	closing := t.closing
	t.mu.RUnlock()
	if closing {
		return
	}

	t.opts.Logger.Warn().Err(err).Msg("connection lost")
	t.setStatus(StatusDisconnected)
	if t.opts.ReconnectOnFailure {
		go t.reconnectLoop()
	}
}

// reconnectLoop retries with exponential backoff until connected or
// the transport is closed.
func (t *MQTT) reconnectLoop() {
	for attempt := 0; ; attempt++ {
		delay := backoffDelay(attempt, t.opts.MaxReconnectDelay)
		t.opts.Logger.Info().Dur("delay", delay).Int("attempt", attempt+1).Msg("reconnecting")

		select {
		case <-t.done:
			return
		case <-time.After(delay):
		}

		t.setStatus(StatusConnecting)
		if err := t.attempt(); err != nil {
			t.opts.Logger.Warn().Err(err).Msg("reconnect attempt failed")
			t.setStatus(StatusError)
			continue
		}
		t.setStatus(StatusConnected)
		return
	}
}

// restoreSubscriptions re-issues every remembered subscription. Runs
// before the transport is declared connected again.
func (t *MQTT) restoreSubscriptions() error {
	t.mu.RLock()
	subs := make(map[string]subscription, len(t.subs))
	for topic, sub := range t.subs {
		subs[topic] = sub
	}
	t.mu.RUnlock()

	for topic, sub := range subs {
		h := sub.handler
		token := t.client.Subscribe(topic, sub.qos, func(_ mqtt.Client, m mqtt.Message) {
			h(m.Topic(), m.Payload())
		})
		if !token.WaitTimeout(t.opts.ConnectTimeout) {
			return fmt.Errorf("resubscribe %s: timed out", topic)
		}
		if err := token.Error(); err != nil {
			return fmt.Errorf("resubscribe %s: %w", topic, err)
		}
	}
	return nil
}
