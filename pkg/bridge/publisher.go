// ABOUTME: Change-driven status publisher for the device bridge
// ABOUTME: One timer, three thresholds: change, position cadence, periodic refresh
package bridge

import (
	"context"
	"sync"
	"time"

	"github.com/amora-project/amora-go/pkg/messages"
	"github.com/amora-project/amora-go/pkg/player"
	"github.com/amora-project/amora-go/pkg/topics"
	"github.com/amora-project/amora-go/pkg/transport"
	"github.com/rs/zerolog"
)

// Publisher intervals with their documented defaults.
const (
	DefaultPositionUpdateInterval = time.Second
	DefaultUpdateInterval         = time.Second
	DefaultFullUpdateInterval     = 5 * time.Second
)

// PublisherConfig tunes the status publisher cadence.
type PublisherConfig struct {
	// PositionUpdateInterval is the publish cadence for position
	// drift while playing. Default 1s.
	PositionUpdateInterval time.Duration

	// UpdateInterval is the poll cadence for change detection.
	// Default 1s.
	UpdateInterval time.Duration

	// FullUpdateInterval is the maximum gap between publishes
	// regardless of change. Default 5s.
	FullUpdateInterval time.Duration
}

func (c PublisherConfig) withDefaults() PublisherConfig {
	if c.PositionUpdateInterval <= 0 {
		c.PositionUpdateInterval = DefaultPositionUpdateInterval
	}
	if c.UpdateInterval <= 0 {
		c.UpdateInterval = DefaultUpdateInterval
	}
	if c.FullUpdateInterval <= 0 {
		c.FullUpdateInterval = DefaultFullUpdateInterval
	}
	return c
}

// Publisher polls the player and publishes retained state envelopes
// when something changed, when position advances during playback, and
// at least every FullUpdateInterval. All triggers within one tick
// coalesce into a single publish.
type Publisher struct {
	cfg    PublisherConfig
	p      player.Player
	tr     transport.Transport
	topics topics.Set
	qos    byte
	log    zerolog.Logger

	mu          sync.Mutex
	last        *player.PlayerState
	lastPublish time.Time
}

// NewPublisher creates a publisher. The player must already be
// serialized for concurrent use.
func NewPublisher(p player.Player, tr transport.Transport, ts topics.Set, qos byte, cfg PublisherConfig, log zerolog.Logger) *Publisher {
	return &Publisher{
		cfg:    cfg.withDefaults(),
		p:      p,
		tr:     tr,
		topics: ts,
		qos:    qos,
		log:    log.With().Str("component", "publisher").Logger(),
	}
}

// Run drives the tick loop until the context is cancelled.
func (pub *Publisher) Run(ctx context.Context) error {
	ticker := time.NewTicker(pub.cfg.UpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			pub.Tick()
		}
	}
}

// PublishNow forces a full publish on the next successful poll,
// regardless of change. Used on startup and after reconnects.
func (pub *Publisher) PublishNow() {
	pub.mu.Lock()
	pub.last = nil
	pub.mu.Unlock()
	pub.Tick()
}

// Tick runs one poll-compare-publish cycle. Exported for tests; Run is
// the production driver.
func (pub *Publisher) Tick() {
	pub.mu.Lock()
	defer pub.mu.Unlock()

	cur, err := pub.p.Status()
	if err != nil {
		// Skip the tick rather than publish stale state.
		pub.log.Warn().Err(err).Msg("status poll failed, skipping tick")
		return
	}
	cur.Normalize()

	now := time.Now()
	sinceLast := now.Sub(pub.lastPublish)

	publish := false
	switch {
	case pub.last == nil:
		publish = true
	case player.Diff(*pub.last, cur).Any():
		publish = true
	case cur.State == player.StatePlaying && sinceLast >= pub.cfg.PositionUpdateInterval:
		publish = true
	case sinceLast >= pub.cfg.FullUpdateInterval:
		publish = true
	}
	if !publish {
		return
	}

	payload, err := messages.Encode(messages.NewState(cur))
	if err != nil {
		pub.log.Error().Err(err).Msg("encoding state")
		return
	}
	if err := pub.tr.Publish(pub.topics.State(), payload, pub.qos, true); err != nil {
		// Not connected or broker refusal: keep the previous snapshot
		// so the change republishes once the transport returns.
		pub.log.Warn().Err(err).Msg("publishing state")
		return
	}

	snapshot := cur
	pub.last = &snapshot
	pub.lastPublish = now
}
