// ABOUTME: mDNS discovery of amora bridges on the local network
// ABOUTME: Bridges advertise their device namespace; monitors browse for it
package discovery

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/hashicorp/mdns"
	"github.com/rs/zerolog"
)

const serviceType = "_amora-bridge._tcp"

// Config holds discovery configuration.
type Config struct {
	// DeviceID is advertised so clients can address the bridge
	// without out-of-band configuration.
	DeviceID string

	// TopicPrefix completes the namespace in the TXT record.
	TopicPrefix string

	// Port is advertised alongside; bridges have no listener of their
	// own, so this is conventionally the broker port.
	Port int

	Logger zerolog.Logger
}

// BridgeInfo describes a discovered bridge.
type BridgeInfo struct {
	Name        string
	Host        string
	Port        int
	DeviceID    string
	TopicPrefix string
}

// Manager handles mDNS advertisement and browsing.
type Manager struct {
	config  Config
	log     zerolog.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	bridges chan *BridgeInfo
}

// NewManager creates a discovery manager.
func NewManager(config Config) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		config:  config,
		log:     config.Logger.With().Str("component", "discovery").Logger(),
		ctx:     ctx,
		cancel:  cancel,
		bridges: make(chan *BridgeInfo, 10),
	}
}

// Advertise announces this bridge via mDNS until Stop.
func (m *Manager) Advertise() error {
	ips, err := getLocalIPs()
	if err != nil {
		return fmt.Errorf("failed to get local IPs: %w", err)
	}

	service, err := mdns.NewMDNSService(
		m.config.DeviceID,
		serviceType,
		"",
		"",
		m.config.Port,
		ips,
		txtRecords(m.config.DeviceID, m.config.TopicPrefix),
	)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return fmt.Errorf("failed to create mdns server: %w", err)
	}

	m.log.Info().Str("device", m.config.DeviceID).Int("port", m.config.Port).Msg("advertising bridge")

	go func() {
		<-m.ctx.Done()
		server.Shutdown()
	}()

	return nil
}

// Browse searches for bridges in the background; results arrive on
// Bridges.
func (m *Manager) Browse() {
	go m.browseLoop()
}

func (m *Manager) browseLoop() {
	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}

		entries := make(chan *mdns.ServiceEntry, 10)

		go func() {
			for entry := range entries {
				if entry.AddrV4 == nil {
					continue
				}
				info := &BridgeInfo{
					Name: entry.Name,
					Host: entry.AddrV4.String(),
					Port: entry.Port,
				}
				info.DeviceID, info.TopicPrefix = parseTxtRecords(entry.InfoFields)

				m.log.Debug().Str("device", info.DeviceID).Str("host", info.Host).Msg("discovered bridge")

				select {
				case m.bridges <- info:
				case <-m.ctx.Done():
					return
				}
			}
		}()

		params := &mdns.QueryParam{
			Service: serviceType,
			Domain:  "local",
			Timeout: 3 * time.Second,
			Entries: entries,
		}

		mdns.Query(params)
		close(entries)
	}
}

// Bridges returns the channel of discovered bridges.
func (m *Manager) Bridges() <-chan *BridgeInfo {
	return m.bridges
}

// Stop stops advertisement and browsing.
func (m *Manager) Stop() {
	m.cancel()
}

func txtRecords(deviceID, prefix string) []string {
	return []string{"device=" + deviceID, "prefix=" + prefix}
}

func parseTxtRecords(fields []string) (deviceID, prefix string) {
	for _, field := range fields {
		if v, ok := strings.CutPrefix(field, "device="); ok {
			deviceID = v
		}
		if v, ok := strings.CutPrefix(field, "prefix="); ok {
			prefix = v
		}
	}
	return deviceID, prefix
}

// getLocalIPs returns the addresses of up, non-loopback interfaces.
func getLocalIPs() ([]net.IP, error) {
	var ips []net.IP

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
				if ipnet.IP.To4() != nil {
					ips = append(ips, ipnet.IP)
				}
			}
		}
	}

	if len(ips) == 0 {
		return nil, fmt.Errorf("no usable network interfaces")
	}
	return ips, nil
}
