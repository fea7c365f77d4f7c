// ABOUTME: YAML configuration for the amora binaries
// ABOUTME: Maps config files onto transport, bridge, and player settings
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/amora-project/amora-go/internal/mpd"
	"github.com/amora-project/amora-go/pkg/bridge"
	"github.com/amora-project/amora-go/pkg/topics"
	"github.com/amora-project/amora-go/pkg/transport"
	"gopkg.in/yaml.v3"
)

// Config is the file layout. Interval and timeout fields are seconds,
// fractional where noted.
type Config struct {
	Broker struct {
		URL                string  `yaml:"url"`
		Port               int     `yaml:"port"`
		ClientID           string  `yaml:"client_id"`
		Username           string  `yaml:"username"`
		Password           string  `yaml:"password"`
		UseTLS             bool    `yaml:"use_tls"`
		CAFile             string  `yaml:"ca_file"`
		CertFile           string  `yaml:"cert_file"`
		KeyFile            string  `yaml:"key_file"`
		KeepAlive          int     `yaml:"keep_alive"`
		CleanSession       *bool   `yaml:"clean_session"`
		ReconnectOnFailure *bool   `yaml:"reconnect_on_failure"`
		MaxReconnectDelay  int     `yaml:"max_reconnect_delay"`
		DefaultQoS         int     `yaml:"default_qos"`
	} `yaml:"broker"`

	Device struct {
		ID          string `yaml:"id"`
		TopicPrefix string `yaml:"topic_prefix"`
	} `yaml:"device"`

	MPD struct {
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
	} `yaml:"mpd"`

	Status struct {
		UpdateInterval         float64 `yaml:"update_interval"`
		PositionUpdateInterval float64 `yaml:"position_update_interval"`
		FullUpdateInterval     float64 `yaml:"full_update_interval"`
	} `yaml:"status"`

	// CommandTimeout bounds client command round trips, in seconds.
	CommandTimeout float64 `yaml:"command_timeout"`

	Discovery struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"discovery"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.Broker.URL = "localhost"
	cfg.Device.ID = "amora-player-001"
	cfg.applyDefaults()
	return cfg
}

// Load reads and validates a config file. Identity fields (broker.url,
// device.id) must be present; everything else has defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Device.TopicPrefix == "" {
		c.Device.TopicPrefix = topics.DefaultPrefix
	}
	if c.MPD.Address == "" {
		c.MPD.Address = "localhost:6600"
	}
}

func (c *Config) validate() error {
	if c.Broker.URL == "" {
		return fmt.Errorf("broker.url is required")
	}
	if c.Device.ID == "" {
		return fmt.Errorf("device.id is required")
	}
	if q := c.Broker.DefaultQoS; q < 0 || q > 2 {
		return fmt.Errorf("broker.default_qos %d outside 0..2", q)
	}
	return nil
}

// TransportOptions converts the broker section.
func (c *Config) TransportOptions() transport.Options {
	opts := transport.Options{
		BrokerURL:          c.Broker.URL,
		Port:               c.Broker.Port,
		ClientID:           c.Broker.ClientID,
		Username:           c.Broker.Username,
		Password:           c.Broker.Password,
		UseTLS:             c.Broker.UseTLS,
		CAPath:             c.Broker.CAFile,
		CertPath:           c.Broker.CertFile,
		KeyPath:            c.Broker.KeyFile,
		KeepAlive:          time.Duration(c.Broker.KeepAlive) * time.Second,
		MaxReconnectDelay:  time.Duration(c.Broker.MaxReconnectDelay) * time.Second,
		DefaultQoS:         byte(c.Broker.DefaultQoS),
		CleanSession:       true,
		ReconnectOnFailure: true,
	}
	if c.Broker.CleanSession != nil {
		opts.CleanSession = *c.Broker.CleanSession
	}
	if c.Broker.ReconnectOnFailure != nil {
		opts.ReconnectOnFailure = *c.Broker.ReconnectOnFailure
	}
	return opts
}

// PublisherConfig converts the status section.
func (c *Config) PublisherConfig() bridge.PublisherConfig {
	return bridge.PublisherConfig{
		UpdateInterval:         secondsToDuration(c.Status.UpdateInterval),
		PositionUpdateInterval: secondsToDuration(c.Status.PositionUpdateInterval),
		FullUpdateInterval:     secondsToDuration(c.Status.FullUpdateInterval),
	}
}

// MPDConfig converts the mpd section.
func (c *Config) MPDConfig() mpd.Config {
	return mpd.Config{
		Address:  c.MPD.Address,
		Password: c.MPD.Password,
	}
}

// CommandTimeoutDuration converts the command timeout, zero when
// unset so the session default applies.
func (c *Config) CommandTimeoutDuration() time.Duration {
	return secondsToDuration(c.CommandTimeout)
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
