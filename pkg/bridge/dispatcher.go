// ABOUTME: Command dispatcher for the device bridge
// ABOUTME: Routes inbound command envelopes to handlers and publishes responses
package bridge

import (
	"context"
	"fmt"
	"sync"

	"github.com/amora-project/amora-go/pkg/messages"
	"github.com/amora-project/amora-go/pkg/topics"
	"github.com/amora-project/amora-go/pkg/transport"
	"github.com/rs/zerolog"
)

// Result is what a command handler produces: the three fields of a
// response envelope.
type Result struct {
	OK      bool
	Message string
	Data    map[string]any
}

// Handler executes one command. Handlers must tolerate duplicate
// deliveries of the same command ID; QoS 1 does not deduplicate.
type Handler func(params map[string]any) Result

// Dispatcher consumes the commands topic and produces responses.
// Commands execute serially in arrival order on the dispatcher's own
// goroutine; a slow handler delays later commands. State publishing
// runs on its own goroutine, but the bridge gives both the same
// mutex-guarded player, so a handler blocked inside a player call also
// holds off the publisher's next status poll.
type Dispatcher struct {
	tr     transport.Transport
	topics topics.Set
	qos    byte
	log    zerolog.Logger

	mu       sync.RWMutex
	handlers map[string]Handler

	queue chan messages.Command
}

// NewDispatcher creates a dispatcher with an empty handler table.
func NewDispatcher(tr transport.Transport, ts topics.Set, qos byte, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		tr:       tr,
		topics:   ts,
		qos:      qos,
		log:      log.With().Str("component", "dispatcher").Logger(),
		handlers: make(map[string]Handler),
		queue:    make(chan messages.Command, 16),
	}
}

// Register adds or replaces the handler for a command name. This is the
// extension point for commands beyond the standard set.
func (d *Dispatcher) Register(command string, h Handler) {
	d.mu.Lock()
	d.handlers[command] = h
	d.mu.Unlock()
}

// HandleMessage is the transport callback for the commands topic. It
// decodes and enqueues; execution happens on the Run goroutine.
func (d *Dispatcher) HandleMessage(_ string, payload []byte) {
	cmd, err := messages.DecodeCommand(payload)
	if err != nil {
		d.log.Warn().Err(err).Msg("dropping malformed command")
		// Best effort: the sender cannot be correlated, so the
		// commandId is left empty.
		d.respond(messages.NewResponse("", false, "malformed command", nil))
		return
	}
	d.queue <- cmd
}

// Run executes queued commands until the context is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-d.queue:
			d.execute(cmd)
		}
	}
}

func (d *Dispatcher) execute(cmd messages.Command) {
	d.log.Debug().Str("command", cmd.Command).Str("commandId", cmd.CommandID).Msg("executing command")

	d.mu.RLock()
	h, ok := d.handlers[cmd.Command]
	d.mu.RUnlock()

	if !ok {
		d.log.Warn().Str("command", cmd.Command).Msg("unknown command")
		d.respond(messages.NewResponse(cmd.CommandID, false, "unknown command", nil))
		return
	}

	res := d.invoke(h, cmd)
	d.respond(messages.NewResponse(cmd.CommandID, res.OK, res.Message, res.Data))
}

// invoke runs a handler, translating a panic into a failed result so a
// misbehaving handler cannot take the dispatcher down.
func (d *Dispatcher) invoke(h Handler, cmd messages.Command) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error().Str("command", cmd.Command).Any("panic", r).Msg("handler panicked")
			res = Result{OK: false, Message: fmt.Sprintf("command %s failed: %v", cmd.Command, r)}
		}
	}()
	return h(cmd.Params)
}

func (d *Dispatcher) respond(resp messages.Response) {
	payload, err := messages.Encode(resp)
	if err != nil {
		d.log.Error().Err(err).Msg("encoding response")
		return
	}
	if err := d.tr.Publish(d.topics.Responses(), payload, d.qos, false); err != nil {
		d.log.Warn().Err(err).Str("commandId", resp.CommandID).Msg("publishing response")
	}
}
