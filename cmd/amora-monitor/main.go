// ABOUTME: Interactive monitor for one amora device
// ABOUTME: Shows live state in a TUI and sends playback commands
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/amora-project/amora-go/internal/discovery"
	"github.com/amora-project/amora-go/internal/ui"
	"github.com/amora-project/amora-go/pkg/messages"
	"github.com/amora-project/amora-go/pkg/player"
	"github.com/amora-project/amora-go/pkg/session"
	"github.com/amora-project/amora-go/pkg/topics"
	"github.com/amora-project/amora-go/pkg/transport"
	"github.com/rs/zerolog"
)

var (
	brokerURL = flag.String("broker", "", "MQTT broker host (empty: discover via mDNS)")
	port      = flag.Int("port", 0, "MQTT broker port")
	deviceID  = flag.String("device", "amora-player-001", "Device ID to monitor")
	prefix    = flag.String("prefix", "", "Topic prefix")
	username  = flag.String("username", "", "Broker username")
	password  = flag.String("password", "", "Broker password")
	useTLS    = flag.Bool("tls", false, "Connect with TLS")
	logFile   = flag.String("log-file", "amora-monitor.log", "Log file path")
)

func main() {
	flag.Parse()

	f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer func() { _ = f.Close() }()
	logger := zerolog.New(f).With().Timestamp().Logger()

	broker, device := *brokerURL, *deviceID
	topicPrefix := *prefix
	if broker == "" {
		broker, device, topicPrefix = discoverBridge(logger, device)
	}

	control := ui.NewControl()
	tuiProg, err := ui.Run(device, control)
	if err != nil {
		log.Fatalf("failed to start TUI: %v", err)
	}

	push := func(msg ui.StatusMsg) { tuiProg.Send(msg) }

	// The session is constructed after its event callbacks close over
	// this pointer; callbacks only fire once Connect runs.
	var sess *session.Session

	s, err := session.New(session.Config{
		DeviceID:    device,
		TopicPrefix: topicPrefix,
		TransportOptions: transport.Options{
			BrokerURL:          broker,
			Port:               *port,
			Username:           *username,
			Password:           *password,
			UseTLS:             *useTLS,
			ReconnectOnFailure: true,
		},
		Logger: logger,
		Events: session.Events{
			OnConnectionChange: func(st transport.Status) {
				connected := st == transport.StatusConnected
				push(ui.StatusMsg{Connected: &connected})
			},
			OnStateChange:  func(player.State) { pushStateFrom(sess, push) },
			OnVolumeChange: func(int) { pushStateFrom(sess, push) },
			OnResponse:     func(r messages.Response) { push(ui.StatusMsg{LastResponse: r.Message}) },
			OnError:        func(err error) { push(ui.StatusMsg{LastError: err.Error()}) },
		},
	})
	if err != nil {
		log.Fatalf("building session: %v", err)
	}
	sess = s

	if err := s.Connect(); err != nil {
		log.Fatalf("connecting: %v", err)
	}
	defer s.Disconnect()

	watchPresence(s, device, topicPrefix, logger, push)
	go refreshLoop(s, push)
	go commandLoop(s, control, push)

	if _, err := tuiProg.Run(); err != nil {
		log.Fatalf("TUI error: %v", err)
	}
}

// discoverBridge browses mDNS for a bridge advertising the requested
// device ID. Bridges advertising a different device ID are skipped; a
// bridge advertising none, or any bridge when no ID is requested, is
// taken.
func discoverBridge(logger zerolog.Logger, wantDevice string) (broker, device, prefix string) {
	fmt.Println("Discovering bridges via mDNS...")
	disc := discovery.NewManager(discovery.Config{Logger: logger})
	disc.Browse()
	defer disc.Stop()

	deadline := time.After(10 * time.Second)
	for {
		select {
		case info := <-disc.Bridges():
			if wantDevice != "" && info.DeviceID != "" && info.DeviceID != wantDevice {
				continue
			}
			device = wantDevice
			if info.DeviceID != "" {
				device = info.DeviceID
			}
			fmt.Printf("Found bridge %s at %s\n", device, info.Host)
			return info.Host, device, info.TopicPrefix
		case <-deadline:
			log.Fatal("no bridge found after 10 seconds; pass -broker")
			return
		}
	}
}

// watchPresence follows the device's retained connection topic, which
// the session itself does not consume.
func watchPresence(s *session.Session, device, prefix string, logger zerolog.Logger, push func(ui.StatusMsg)) {
	ts := topics.New(prefix, device)
	err := s.Transport().Subscribe(ts.Connection(), 1, func(_ string, payload []byte) {
		v, kind, err := messages.Decode(payload)
		if err != nil || kind != messages.KindConnection {
			return
		}
		online := v.(messages.Connection).Status == messages.StatusOnline
		push(ui.StatusMsg{DeviceOnline: &online})
	})
	if err != nil {
		logger.Warn().Err(err).Msg("subscribing to connection topic")
	}
}

// refreshLoop pushes the cached state into the TUI on a short cadence;
// the cache itself is fed by the session's subscription.
func refreshLoop(s *session.Session, push func(ui.StatusMsg)) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for range ticker.C {
		pushStateFrom(s, push)
	}
}

func pushStateFrom(s *session.Session, push func(ui.StatusMsg)) {
	if s == nil {
		return
	}
	if state, ok := s.CachedPlayerState(); ok {
		push(ui.StatusMsg{State: &state})
	}
}

// commandLoop issues session commands for TUI keystrokes.
func commandLoop(s *session.Session, control *ui.Control, push func(ui.StatusMsg)) {
	for cmd := range control.Commands {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		var err error
		switch cmd.Name {
		case "play":
			err = s.Play(ctx)
		case "pause":
			err = s.Pause(ctx)
		case "stop":
			err = s.Stop(ctx)
		case "next":
			err = s.Next(ctx)
		case "previous":
			err = s.Previous(ctx)
		case "setVolume":
			err = s.SetVolume(ctx, cmd.Volume)
		case "toggleRepeat":
			if state, ok := s.CachedPlayerState(); ok {
				err = s.SetRepeat(ctx, !state.Repeat)
			}
		case "toggleRandom":
			if state, ok := s.CachedPlayerState(); ok {
				err = s.SetRandom(ctx, !state.Random)
			}
		}
		cancel()
		if err != nil {
			push(ui.StatusMsg{LastError: err.Error()})
		}
	}
}
