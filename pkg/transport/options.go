// ABOUTME: Connection options for the MQTT transport
// ABOUTME: Covers endpoint, credentials, TLS, keepalive, reconnect, and last-will
package transport

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// LastWill configures the message the broker publishes on behalf of
// this session when it disconnects ungracefully.
type LastWill struct {
	Topic   string
	Payload []byte
	QoS     byte
	Retain  bool
}

// Options configures a transport connection. The zero value is not
// usable; BrokerURL and ClientID are required.
type Options struct {
	// BrokerURL is the broker host name or address, without scheme or
	// port: the endpoint is built as tcp:// (ssl:// with UseTLS), then
	// BrokerURL, then Port.
	BrokerURL string
	Port      int

	// ClientID is the per-session transport identity. Must be unique
	// per active connection.
	ClientID string

	// Username and Password enable credential authentication when set.
	Username string
	Password string

	// UseTLS switches to a TLS endpoint. CAPath adds a custom root;
	// CertPath/KeyPath enable mutual TLS.
	UseTLS   bool
	CAPath   string
	CertPath string
	KeyPath  string

	// KeepAlive is the heartbeat interval. Default 60s.
	KeepAlive time.Duration

	// CleanSession controls whether server-side subscription state
	// persists across reconnects; true discards it. withDefaults leaves
	// it as given, so the zero value asks for a persistent session.
	CleanSession bool

	// ReconnectOnFailure enables the automatic reconnect loop.
	ReconnectOnFailure bool

	// MaxReconnectDelay caps the exponential backoff. Default 300s.
	MaxReconnectDelay time.Duration

	// ConnectTimeout bounds the single connect attempt. Default 10s.
	ConnectTimeout time.Duration

	// DefaultQoS defaults to 1. The transport itself does not read it:
	// Subscribe and Publish always take an explicit QoS.
	DefaultQoS byte

	// Will, when set, is registered as the session's last-will.
	Will *LastWill

	// Logger for connection lifecycle events. Defaults to a disabled
	// logger.
	Logger zerolog.Logger
}

// withDefaults fills unset fields with their documented defaults.
func (o Options) withDefaults() Options {
	if o.KeepAlive == 0 {
		o.KeepAlive = 60 * time.Second
	}
	if o.MaxReconnectDelay == 0 {
		o.MaxReconnectDelay = 300 * time.Second
	}
	if o.ConnectTimeout == 0 {
		o.ConnectTimeout = 10 * time.Second
	}
	if o.DefaultQoS == 0 {
		o.DefaultQoS = 1
	}
	if o.Port == 0 {
		if o.UseTLS {
			o.Port = 8883
		} else {
			o.Port = 1883
		}
	}
	return o
}

// brokerAddr renders the endpoint URL for the MQTT client.
func (o Options) brokerAddr() string {
	scheme := "tcp"
	if o.UseTLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, o.BrokerURL, o.Port)
}

// tlsConfig builds the TLS configuration from the option paths.
func (o Options) tlsConfig() (*tls.Config, error) {
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}

	if o.CAPath != "" {
		pem, err := os.ReadFile(o.CAPath)
		if err != nil {
			return nil, fmt.Errorf("read CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", o.CAPath)
		}
		cfg.RootCAs = pool
	}

	if o.CertPath != "" && o.KeyPath != "" {
		cert, err := tls.LoadX509KeyPair(o.CertPath, o.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("load client keypair: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}

	return cfg, nil
}
