// ABOUTME: Client session against one device namespace
// ABOUTME: Caches state, correlates command responses, and fires change events
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/amora-project/amora-go/pkg/messages"
	"github.com/amora-project/amora-go/pkg/player"
	"github.com/amora-project/amora-go/pkg/topics"
	"github.com/amora-project/amora-go/pkg/transport"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	// ErrTimeout means the device did not answer a command within the
	// configured window. The command may still execute.
	ErrTimeout = errors.New("command timed out")

	// ErrDisconnected means pending commands were rejected because
	// the session closed.
	ErrDisconnected = errors.New("session disconnected")
)

// RemoteError carries the message of a result=false response.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string { return e.Message }

// DefaultCommandTimeout bounds a command round trip.
const DefaultCommandTimeout = 10 * time.Second

// sweepInterval is the cadence of the pending-command timeout sweep.
var sweepInterval = time.Second

// Events are the session's observer callbacks. All callbacks are
// invoked after the cache mutation they describe, off the session's
// internal locks. Nil callbacks are skipped.
type Events struct {
	// OnStateChange fires when the playback state changes.
	OnStateChange func(player.State)

	// OnPositionChange fires when the current song position moves.
	OnPositionChange func(position float64)

	// OnVolumeChange fires when the volume changes.
	OnVolumeChange func(volume int)

	// OnPlaylistChange fires when a response refreshes the cached
	// playlist names.
	OnPlaylistChange func(playlists []string)

	// OnConnectionChange mirrors the transport state.
	OnConnectionChange func(transport.Status)

	// OnResponse fires for every response envelope observed, matched
	// or not.
	OnResponse func(messages.Response)

	// OnError reports dropped inbound messages and other non-fatal
	// session errors.
	OnError func(error)
}

// Config assembles a session.
type Config struct {
	// DeviceID selects the device namespace. Required.
	DeviceID string

	// TopicPrefix defaults to topics.DefaultPrefix.
	TopicPrefix string

	// Transport, when set, is used as-is. Otherwise an MQTT transport
	// is built from TransportOptions; a missing ClientID gets a
	// generated amora-client identity.
	Transport        transport.Transport
	TransportOptions transport.Options

	// CommandTimeout rejects unanswered commands. Default 10s.
	CommandTimeout time.Duration

	// QoS for session publishes and subscriptions. Default 1.
	QoS byte

	Events Events
	Logger zerolog.Logger
}

// Session is the client-side handle to one device. Create with New,
// then Connect.
type Session struct {
	cfg    Config
	topics topics.Set
	tr     transport.Transport
	log    zerolog.Logger

	mu        sync.Mutex
	lastState *player.PlayerState
	playlists []string
	pending   map[string]*pendingCall
	started   bool
	closed    bool
	done      chan struct{}
}

type pendingCall struct {
	ch       chan callOutcome
	enqueued time.Time
}

type callOutcome struct {
	resp messages.Response
	err  error
}

// New builds a session. No connection is made until Connect.
func New(cfg Config) (*Session, error) {
	if cfg.DeviceID == "" {
		return nil, errors.New("session: device ID is required")
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = DefaultCommandTimeout
	}
	if cfg.QoS == 0 {
		cfg.QoS = 1
	}

	ts := topics.New(cfg.TopicPrefix, cfg.DeviceID)
	log := cfg.Logger.With().Str("component", "session").Str("device", cfg.DeviceID).Logger()

	tr := cfg.Transport
	if tr == nil {
		opts := cfg.TransportOptions
		if opts.ClientID == "" {
			opts.ClientID = "amora-client-" + uuid.NewString()[:8]
		}
		opts.Logger = log
		mq, err := transport.NewMQTT(opts)
		if err != nil {
			return nil, fmt.Errorf("session: %w", err)
		}
		tr = mq
	}

	return &Session{
		cfg:     cfg,
		topics:  ts,
		tr:      tr,
		log:     log,
		pending: make(map[string]*pendingCall),
		done:    make(chan struct{}),
	}, nil
}

// Connect opens the transport, subscribes to the device's state and
// responses topics, and primes the state cache. The retained state
// envelope arrives with the subscription; a getStatus round trip runs
// in the background as a freshness check.
func (s *Session) Connect() error {
	s.tr.Observe(s.onConnectionChange)

	if err := s.tr.Connect(); err != nil {
		return fmt.Errorf("session: %w", err)
	}
	if err := s.subscribe(); err != nil {
		s.tr.Disconnect()
		return fmt.Errorf("session: %w", err)
	}

	s.mu.Lock()
	s.started = true
	s.mu.Unlock()

	go s.sweepLoop()
	go s.prime()
	return nil
}

// Disconnect rejects all pending commands with ErrDisconnected and
// closes the transport. Idempotent.
func (s *Session) Disconnect() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.done)
	calls := s.takeAllPendingLocked()
	s.mu.Unlock()

	for _, call := range calls {
		call.ch <- callOutcome{err: ErrDisconnected}
	}
	s.tr.Disconnect()
}

// ConnectionStatus returns the transport state.
func (s *Session) ConnectionStatus() transport.Status {
	return s.tr.Status()
}

// Transport exposes the underlying transport so hosts can watch
// topics the session itself does not consume, such as the device's
// retained presence.
func (s *Session) Transport() transport.Transport {
	return s.tr
}

// CachedPlayerState returns the last observed snapshot, if any.
func (s *Session) CachedPlayerState() (player.PlayerState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastState == nil {
		return player.PlayerState{}, false
	}
	return *s.lastState, true
}

// CachedPlaylists returns the most recently observed playlist names.
func (s *Session) CachedPlaylists() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.playlists...)
}

func (s *Session) subscribe() error {
	if err := s.tr.Subscribe(s.topics.State(), s.cfg.QoS, s.onState); err != nil {
		return err
	}
	return s.tr.Subscribe(s.topics.Responses(), s.cfg.QoS, s.onResponse)
}

// prime refreshes the cache through the device itself rather than
// trusting only the retained envelope.
func (s *Session) prime() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.CommandTimeout)
	defer cancel()
	if _, err := s.Status(ctx); err != nil {
		s.log.Debug().Err(err).Msg("state prime failed")
	}
}

func (s *Session) onConnectionChange(status transport.Status) {
	if status == transport.StatusConnected {
		s.mu.Lock()
		started := s.started && !s.closed
		s.mu.Unlock()
		if started {
			// Back after a reconnect: restore subscriptions in case
			// the server-side session was clean, and re-prime.
			if err := s.subscribe(); err != nil {
				s.emitError(fmt.Errorf("resubscribe: %w", err))
			}
			go s.prime()
		}
	}
	if fn := s.cfg.Events.OnConnectionChange; fn != nil {
		fn(status)
	}
}

// onState routes envelopes from the state topic: update the cache,
// then fire the change events outside the lock.
func (s *Session) onState(_ string, payload []byte) {
	env, err := messages.DecodeState(payload)
	if err != nil {
		s.emitError(err)
		return
	}
	cur := env.PlayerState()
	cur.Normalize()

	s.mu.Lock()
	prev := player.PlayerState{}
	if s.lastState != nil {
		prev = *s.lastState
	}
	s.lastState = &cur
	s.mu.Unlock()

	change := player.Diff(prev, cur)
	if change.State {
		if fn := s.cfg.Events.OnStateChange; fn != nil {
			fn(cur.State)
		}
	}
	if change.Position && cur.CurrentSong != nil {
		if fn := s.cfg.Events.OnPositionChange; fn != nil {
			fn(cur.CurrentSong.Position)
		}
	}
	if change.Volume {
		if fn := s.cfg.Events.OnVolumeChange; fn != nil {
			fn(cur.Volume)
		}
	}
}

// onResponse routes envelopes from the responses topic to the pending
// command, refreshing the playlist cache when the payload carries one.
// Responses with no pending entry are dropped silently: duplicates and
// answers to other sessions' commands both land here.
func (s *Session) onResponse(_ string, payload []byte) {
	resp, err := messages.DecodeResponse(payload)
	if err != nil {
		s.emitError(err)
		return
	}

	if fn := s.cfg.Events.OnResponse; fn != nil {
		fn(resp)
	}

	if names, ok := playlistNames(resp.Data); ok {
		s.mu.Lock()
		s.playlists = names
		s.mu.Unlock()
		if fn := s.cfg.Events.OnPlaylistChange; fn != nil {
			fn(names)
		}
	}

	s.mu.Lock()
	call, ok := s.pending[resp.CommandID]
	if ok {
		delete(s.pending, resp.CommandID)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	call.ch <- callOutcome{resp: resp}
}

// sweepLoop rejects pending commands older than the command timeout.
func (s *Session) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.sweep(time.Now())
		}
	}
}

func (s *Session) sweep(now time.Time) {
	s.mu.Lock()
	var expired []*pendingCall
	for id, call := range s.pending {
		if now.Sub(call.enqueued) >= s.cfg.CommandTimeout {
			delete(s.pending, id)
			expired = append(expired, call)
		}
	}
	s.mu.Unlock()

	for _, call := range expired {
		call.ch <- callOutcome{err: ErrTimeout}
	}
}

func (s *Session) takeAllPendingLocked() []*pendingCall {
	calls := make([]*pendingCall, 0, len(s.pending))
	for id, call := range s.pending {
		delete(s.pending, id)
		calls = append(calls, call)
	}
	return calls
}

func (s *Session) emitError(err error) {
	s.log.Warn().Err(err).Msg("dropping inbound message")
	if fn := s.cfg.Events.OnError; fn != nil {
		fn(err)
	}
}

// playlistNames extracts data.playlists from a response payload.
func playlistNames(data map[string]any) ([]string, bool) {
	raw, ok := data["playlists"]
	if !ok {
		return nil, false
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, false
	}
	names := make([]string, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case string:
			names = append(names, v)
		case map[string]any:
			if name, ok := v["name"].(string); ok {
				names = append(names, name)
			}
		}
	}
	return names, true
}
