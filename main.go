// ABOUTME: Entry point for the amora device bridge
// ABOUTME: Wires MPD, the MQTT transport, and the bridge runtime together
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/amora-project/amora-go/internal/config"
	"github.com/amora-project/amora-go/internal/discovery"
	"github.com/amora-project/amora-go/internal/mpd"
	"github.com/amora-project/amora-go/internal/version"
	"github.com/amora-project/amora-go/pkg/bridge"
	"github.com/rs/zerolog"
)

var (
	configPath = flag.String("config", "", "Path to YAML config file")
	brokerURL  = flag.String("broker", "", "MQTT broker host (overrides config)")
	deviceID   = flag.String("device", "", "Device ID (overrides config)")
	prefix     = flag.String("prefix", "", "Topic prefix (overrides config)")
	mpdAddr    = flag.String("mpd", "", "MPD address (overrides config)")
	discover   = flag.Bool("discover", false, "Advertise this bridge via mDNS")
	logLevel   = flag.String("log-level", "info", "Log level: trace, debug, info, warn, error")
	logJSON    = flag.Bool("log-json", false, "Emit JSON logs instead of console output")
)

func main() {
	flag.Parse()

	logger, err := buildLogger(*logLevel, *logJSON)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	cfg := config.Default()
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
		if err != nil {
			logger.Fatal().Err(err).Msg("loading config")
		}
	}
	if *brokerURL != "" {
		cfg.Broker.URL = *brokerURL
	}
	if *deviceID != "" {
		cfg.Device.ID = *deviceID
	}
	if *prefix != "" {
		cfg.Device.TopicPrefix = *prefix
	}
	if *mpdAddr != "" {
		cfg.MPD.Address = *mpdAddr
	}
	if *discover {
		cfg.Discovery.Enabled = true
	}

	logger.Info().
		Str("version", version.Version).
		Str("device", cfg.Device.ID).
		Str("broker", cfg.Broker.URL).
		Msg("starting amora bridge")

	daemon := mpd.New(mpd.Config{
		Address:  cfg.MPD.Address,
		Password: cfg.MPD.Password,
		Logger:   logger,
	})
	if err := daemon.Connect(); err != nil {
		// The bridge keeps running; the adapter redials per call and
		// the publisher skips ticks until the daemon appears.
		logger.Warn().Err(err).Msg("mpd not reachable yet")
	}
	defer daemon.Close()

	b, err := bridge.New(bridge.Config{
		DeviceID:         cfg.Device.ID,
		TopicPrefix:      cfg.Device.TopicPrefix,
		Player:           daemon,
		TransportOptions: cfg.TransportOptions(),
		Publisher:        cfg.PublisherConfig(),
		QoS:              byte(cfg.Broker.DefaultQoS),
		Logger:           logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("building bridge")
	}

	if cfg.Discovery.Enabled {
		disc := discovery.NewManager(discovery.Config{
			DeviceID:    cfg.Device.ID,
			TopicPrefix: cfg.Device.TopicPrefix,
			Port:        cfg.Broker.Port,
			Logger:      logger,
		})
		if err := disc.Advertise(); err != nil {
			logger.Warn().Err(err).Msg("mdns advertisement failed")
		} else {
			defer disc.Stop()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := b.Run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("bridge stopped")
	}
	logger.Info().Msg("bridge shut down")
}

func buildLogger(level string, jsonOut bool) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var logger zerolog.Logger
	if jsonOut {
		logger = zerolog.New(os.Stderr)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	return logger.Level(lvl).With().Timestamp().Logger(), nil
}
