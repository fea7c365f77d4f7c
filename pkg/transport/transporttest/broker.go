// ABOUTME: In-memory pub/sub broker for tests
// ABOUTME: Implements the Transport interface with retained-message semantics
package transporttest

import (
	"sync"

	"github.com/amora-project/amora-go/pkg/transport"
)

// Broker is an in-process stand-in for an MQTT broker. Clients created
// from it see each other's publishes, retained messages are replayed on
// subscribe, and connections can be dropped to simulate loss.
type Broker struct {
	mu       sync.Mutex
	retained map[string][]byte
	clients  []*Client
	wills    map[*Client]*transport.LastWill
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{
		retained: make(map[string][]byte),
		wills:    make(map[*Client]*transport.LastWill),
	}
}

// Client returns a new, disconnected transport attached to this broker.
func (b *Broker) Client(id string) *Client {
	c := &Client{broker: b, id: id, subs: make(map[string]sub)}
	b.mu.Lock()
	b.clients = append(b.clients, c)
	b.mu.Unlock()
	return c
}

// Retained returns the retained payload for a topic, or nil.
func (b *Broker) Retained(topic string) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.retained[topic]
}

// Drop simulates ungraceful connection loss for a client: the client
// transitions to disconnected and the broker publishes its last-will.
func (b *Broker) Drop(c *Client) {
	c.transition(transport.StatusDisconnected)

	b.mu.Lock()
	will := b.wills[c]
	delete(b.wills, c)
	b.mu.Unlock()
	if will != nil {
		b.deliver(will.Topic, will.Payload, will.Retain)
	}
}

// deliver fans a payload out to every connected subscriber of topic.
// Handlers run synchronously on the caller's goroutine.
func (b *Broker) deliver(topic string, payload []byte, retain bool) {
	b.mu.Lock()
	if retain {
		b.retained[topic] = payload
	}
	var handlers []transport.MessageHandler
	for _, c := range b.clients {
		c.mu.Lock()
		if c.status == transport.StatusConnected {
			if s, ok := c.subs[topic]; ok {
				handlers = append(handlers, s.handler)
			}
		}
		c.mu.Unlock()
	}
	b.mu.Unlock()

	for _, h := range handlers {
		h(topic, payload)
	}
}

type sub struct {
	qos     byte
	handler transport.MessageHandler
}

// Client is one fake transport session. Implements transport.Transport.
type Client struct {
	broker *Broker
	id     string

	mu        sync.Mutex
	status    transport.Status
	subs      map[string]sub
	observers []func(transport.Status)
	will      *transport.LastWill

	// FailConnect makes Connect return ErrUnavailable.
	FailConnect bool
}

var _ transport.Transport = (*Client)(nil)

// SetWill registers a last-will delivered on Drop.
func (c *Client) SetWill(w transport.LastWill) {
	c.mu.Lock()
	c.will = &w
	c.mu.Unlock()
}

// Observe registers a connection-state observer.
func (c *Client) Observe(fn func(transport.Status)) {
	c.mu.Lock()
	c.observers = append(c.observers, fn)
	c.mu.Unlock()
}

func (c *Client) transition(s transport.Status) {
	c.mu.Lock()
	if c.status == s {
		c.mu.Unlock()
		return
	}
	c.status = s
	observers := append([]func(transport.Status){}, c.observers...)
	c.mu.Unlock()

	for _, fn := range observers {
		fn(s)
	}
}

func (c *Client) Connect() error {
	c.mu.Lock()
	fail := c.FailConnect
	will := c.will
	c.mu.Unlock()

	if fail {
		c.transition(transport.StatusError)
		return transport.ErrUnavailable
	}
	if will != nil {
		c.broker.mu.Lock()
		c.broker.wills[c] = will
		c.broker.mu.Unlock()
	}
	c.transition(transport.StatusConnected)
	return nil
}

func (c *Client) Disconnect() {
	c.broker.mu.Lock()
	delete(c.broker.wills, c)
	c.broker.mu.Unlock()

	c.transition(transport.StatusDisconnected)
}

func (c *Client) Subscribe(topic string, qos byte, h transport.MessageHandler) error {
	c.mu.Lock()
	if c.status != transport.StatusConnected {
		c.mu.Unlock()
		return transport.ErrNotConnected
	}
	c.subs[topic] = sub{qos: qos, handler: h}
	c.mu.Unlock()

	// Replay the retained message, as a real broker would.
	if payload := c.broker.Retained(topic); payload != nil {
		h(topic, payload)
	}
	return nil
}

func (c *Client) Unsubscribe(topic string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != transport.StatusConnected {
		return transport.ErrNotConnected
	}
	delete(c.subs, topic)
	return nil
}

func (c *Client) Publish(topic string, payload []byte, qos byte, retain bool) error {
	c.mu.Lock()
	if c.status != transport.StatusConnected {
		c.mu.Unlock()
		return transport.ErrNotConnected
	}
	c.mu.Unlock()

	c.broker.deliver(topic, payload, retain)
	return nil
}

func (c *Client) Status() transport.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Reconnect simulates the reconnect loop completing: the client is
// connected again with its subscriptions intact.
func (c *Client) Reconnect() {
	c.mu.Lock()
	will := c.will
	c.mu.Unlock()

	if will != nil {
		c.broker.mu.Lock()
		c.broker.wills[c] = will
		c.broker.mu.Unlock()
	}
	c.transition(transport.StatusConnected)
}
