// ABOUTME: Tests for mDNS discovery
// ABOUTME: TXT record round trips and manager construction
package discovery

import (
	"testing"
)

func TestNewManager(t *testing.T) {
	mgr := NewManager(Config{
		DeviceID:    "amora-player-001",
		TopicPrefix: "amora/devices",
		Port:        1883,
	})
	if mgr == nil {
		t.Fatal("expected manager to be created")
	}
	mgr.Stop()
}

func TestTxtRecordRoundTrip(t *testing.T) {
	fields := txtRecords("dev-1", "amora/devices")

	device, prefix := parseTxtRecords(fields)
	if device != "dev-1" {
		t.Errorf("expected device dev-1, got %s", device)
	}
	if prefix != "amora/devices" {
		t.Errorf("expected prefix amora/devices, got %s", prefix)
	}
}

func TestParseTxtRecordsIgnoresUnknownFields(t *testing.T) {
	device, prefix := parseTxtRecords([]string{"path=/x", "device=d", "prefix=p"})
	if device != "d" || prefix != "p" {
		t.Errorf("got device=%s prefix=%s", device, prefix)
	}
}
