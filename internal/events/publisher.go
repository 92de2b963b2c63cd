// Package events fans device and health events from the Device Service
// out to external subscribers over NATS. It is an optional sink: when
// disabled, Publisher is a no-op so the gateway runs unchanged without a
// NATS deployment nearby. Enabling it with no servers configured makes
// Connect return an error.
package events

import "time"

// Publisher is the event fan-out contract the Device Service's callbacks
// drive.
type Publisher interface {
	Connect() error
	Disconnect() error
	IsConnected() bool

	PublishDeviceEvent(deviceID, eventType, data string) error
	PublishHealthEvent(deviceID, status, details string) error

	Metrics() Metrics
}

// Metrics is a point-in-time snapshot of the publisher's counters.
type Metrics struct {
	Published  uint64
	Errors     uint64
	LastUpdate time.Time
}

// Config holds NATS connection settings for Publisher.
type Config struct {
	Enabled bool
	Servers []string

	ClientID string
	Username string
	Password string
	Token    string

	MaxReconnects  int
	ReconnectWait  time.Duration
	ConnectTimeout time.Duration
	DrainTimeout   time.Duration
}

// DefaultConfig returns a disabled configuration — safe to pass straight
// to New without a NATS deployment present.
func DefaultConfig() Config {
	return Config{
		ClientID:       "hydrogen-gateway",
		MaxReconnects:  10,
		ReconnectWait:  2 * time.Second,
		ConnectTimeout: 5 * time.Second,
		DrainTimeout:   5 * time.Second,
	}
}
