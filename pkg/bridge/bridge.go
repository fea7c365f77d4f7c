// ABOUTME: Device bridge lifecycle: wires player, dispatcher, publisher, transport
// ABOUTME: Owns startup/shutdown order, presence publishing, and supervision
package bridge

import (
	"context"
	"errors"
	"fmt"

	"github.com/amora-project/amora-go/pkg/messages"
	"github.com/amora-project/amora-go/pkg/player"
	"github.com/amora-project/amora-go/pkg/topics"
	"github.com/amora-project/amora-go/pkg/transport"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Config assembles a device bridge.
type Config struct {
	// DeviceID names the device namespace. Required.
	DeviceID string

	// TopicPrefix defaults to topics.DefaultPrefix.
	TopicPrefix string

	// Player is the daemon adapter. Required. It does not need to be
	// safe for concurrent use; the bridge serializes access.
	Player player.Player

	// Transport, when set, is used as-is (tests, embedding). When
	// nil, an MQTT transport is built from TransportOptions with the
	// last-will pointed at this device's connection topic.
	Transport        transport.Transport
	TransportOptions transport.Options

	// Publisher tunes status publishing cadence.
	Publisher PublisherConfig

	// QoS for all bridge publishes and subscriptions. Default 1.
	QoS byte

	Logger zerolog.Logger
}

// Bridge is the device-side runtime connecting one player daemon to
// one device namespace.
type Bridge struct {
	cfg        Config
	topics     topics.Set
	tr         transport.Transport
	dispatcher *Dispatcher
	publisher  *Publisher
	log        zerolog.Logger

	connected chan struct{}
}

// New builds a bridge. The transport is not connected yet; Run does
// that.
func New(cfg Config) (*Bridge, error) {
	if cfg.DeviceID == "" {
		return nil, errors.New("bridge: device ID is required")
	}
	if cfg.Player == nil {
		return nil, errors.New("bridge: player is required")
	}
	if cfg.QoS == 0 {
		cfg.QoS = 1
	}

	ts := topics.New(cfg.TopicPrefix, cfg.DeviceID)
	log := cfg.Logger.With().Str("device", cfg.DeviceID).Logger()

	tr := cfg.Transport
	if tr == nil {
		opts := cfg.TransportOptions
		if opts.ClientID == "" {
			opts.ClientID = "device-" + cfg.DeviceID
		}
		will, err := messages.Encode(messages.NewConnection(messages.StatusOffline))
		if err != nil {
			return nil, fmt.Errorf("bridge: %w", err)
		}
		opts.Will = &transport.LastWill{
			Topic:   ts.Connection(),
			Payload: will,
			QoS:     cfg.QoS,
			Retain:  true,
		}
		opts.Logger = log
		mq, err := transport.NewMQTT(opts)
		if err != nil {
			return nil, fmt.Errorf("bridge: %w", err)
		}
		tr = mq
	}

	serialized := &lockedPlayer{p: cfg.Player}
	b := &Bridge{
		cfg:        cfg,
		topics:     ts,
		tr:         tr,
		dispatcher: NewDispatcher(tr, ts, cfg.QoS, log),
		publisher:  NewPublisher(serialized, tr, ts, cfg.QoS, cfg.Publisher, log),
		log:        log,
		connected:  make(chan struct{}, 1),
	}
	b.dispatcher.RegisterStandard(serialized)
	return b, nil
}

// Dispatcher exposes the command table so hosts can register commands
// beyond the standard set.
func (b *Bridge) Dispatcher() *Dispatcher { return b.dispatcher }

// Topics returns the device namespace.
func (b *Bridge) Topics() topics.Set { return b.topics }

// Run connects and serves until the context is cancelled. On the way
// out it best-effort publishes a retained offline presence before
// closing the transport. A failed initial connect returns
// transport.ErrUnavailable; with reconnection enabled the transport
// keeps retrying in the background and Run keeps serving.
func (b *Bridge) Run(ctx context.Context) error {
	b.tr.Observe(func(s transport.Status) {
		if s == transport.StatusConnected {
			select {
			case b.connected <- struct{}{}:
			default:
			}
		}
	})

	err := b.tr.Connect()
	if err != nil && !b.cfg.TransportOptions.ReconnectOnFailure {
		return fmt.Errorf("bridge: %w", err)
	}
	if err == nil {
		// The initial connect is announced inline below; drain its
		// signal so watchConnected only sees later reconnects.
		select {
		case <-b.connected:
		default:
		}
		if err := b.tr.Subscribe(b.topics.Commands(), b.cfg.QoS, b.dispatcher.HandleMessage); err != nil {
			b.tr.Disconnect()
			return fmt.Errorf("bridge: subscribe commands: %w", err)
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return b.dispatcher.Run(ctx) })
	g.Go(func() error { return b.publisher.Run(ctx) })
	g.Go(func() error { return b.watchConnected(ctx) })

	if err == nil {
		b.announce()
	}

	runErr := g.Wait()

	b.publishConnection(messages.StatusOffline)
	b.tr.Disconnect()

	if errors.Is(runErr, context.Canceled) {
		return nil
	}
	return runErr
}

// watchConnected re-announces presence and state whenever the
// transport reconnects; the initial connect is handled inline in Run.
func (b *Bridge) watchConnected(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-b.connected:
			b.log.Info().Msg("transport connected, announcing")
			if err := b.tr.Subscribe(b.topics.Commands(), b.cfg.QoS, b.dispatcher.HandleMessage); err != nil {
				b.log.Warn().Err(err).Msg("resubscribing commands")
			}
			b.announce()
		}
	}
}

// announce publishes retained online presence and a fresh full state.
func (b *Bridge) announce() {
	b.publishConnection(messages.StatusOnline)
	b.publisher.PublishNow()
}

func (b *Bridge) publishConnection(status string) {
	payload, err := messages.Encode(messages.NewConnection(status))
	if err != nil {
		b.log.Error().Err(err).Msg("encoding connection status")
		return
	}
	if err := b.tr.Publish(b.topics.Connection(), payload, b.cfg.QoS, true); err != nil {
		b.log.Warn().Err(err).Str("status", status).Msg("publishing connection status")
	}
}
