// ABOUTME: Topic computation and parsing for device namespaces
// ABOUTME: Maps (prefix, deviceId, kind) triples to concrete MQTT topics
package topics

import (
	"fmt"
	"strings"
)

// DefaultPrefix is the topic prefix used when none is configured.
const DefaultPrefix = "amora/devices"

// Kind identifies one of the four per-device topics.
type Kind string

const (
	KindState      Kind = "state"
	KindCommands   Kind = "commands"
	KindResponses  Kind = "responses"
	KindConnection Kind = "connection"
)

// Kinds lists every topic kind in publication order.
var Kinds = []Kind{KindState, KindCommands, KindResponses, KindConnection}

// Set computes topics for one device namespace. The zero value is not
// usable; construct with New.
type Set struct {
	prefix   string
	deviceID string
}

// New returns a topic set for the given namespace. An empty prefix
// falls back to DefaultPrefix.
func New(prefix, deviceID string) Set {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return Set{prefix: strings.TrimSuffix(prefix, "/"), deviceID: deviceID}
}

// Prefix returns the namespace prefix.
func (s Set) Prefix() string { return s.prefix }

// DeviceID returns the device identifier.
func (s Set) DeviceID() string { return s.deviceID }

// Topic returns the concrete topic string for a kind.
func (s Set) Topic(k Kind) string {
	return fmt.Sprintf("%s/%s/%s", s.prefix, s.deviceID, k)
}

// State returns the retained player-state topic.
func (s Set) State() string { return s.Topic(KindState) }

// Commands returns the client-to-device command topic.
func (s Set) Commands() string { return s.Topic(KindCommands) }

// Responses returns the device-to-client response topic.
func (s Set) Responses() string { return s.Topic(KindResponses) }

// Connection returns the retained presence topic.
func (s Set) Connection() string { return s.Topic(KindConnection) }

// Parse classifies a concrete topic against this namespace. It returns
// the kind and true when the topic is one of the four canonical topics
// for this (prefix, deviceId) pair, and false otherwise. No wildcards
// are accepted.
func (s Set) Parse(topic string) (Kind, bool) {
	rest, ok := strings.CutPrefix(topic, s.prefix+"/")
	if !ok {
		return "", false
	}
	device, leaf, ok := strings.Cut(rest, "/")
	if !ok || device != s.deviceID {
		return "", false
	}
	switch Kind(leaf) {
	case KindState, KindCommands, KindResponses, KindConnection:
		return Kind(leaf), true
	}
	return "", false
}

// ParseAny classifies a topic without a namespace in hand. It accepts
// any topic of the shape {prefix}/{deviceId}/{kind} where prefix itself
// may contain slashes, and returns the namespace it belongs to.
func ParseAny(topic string) (Set, Kind, bool) {
	i := strings.LastIndexByte(topic, '/')
	if i < 0 {
		return Set{}, "", false
	}
	leaf := Kind(topic[i+1:])
	switch leaf {
	case KindState, KindCommands, KindResponses, KindConnection:
	default:
		return Set{}, "", false
	}
	rest := topic[:i]
	j := strings.LastIndexByte(rest, '/')
	if j < 0 {
		return Set{}, "", false
	}
	prefix, device := rest[:j], rest[j+1:]
	if prefix == "" || device == "" {
		return Set{}, "", false
	}
	return Set{prefix: prefix, deviceID: device}, leaf, true
}
