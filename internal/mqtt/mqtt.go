// mqtt.go: Package mqtt provides remote control of the speaker over MQTT.
//
// The service subscribes to <topic>/play and <topic>/stop and publishes a status
// document to <topic>/status after every session transition.
package mqtt

import (
	"context"
	"time"

	"github.com/Tenemo/bob/internal/audiocore"
)

// Topic suffixes below the configured base topic
const (
	TopicPlay   = "play"
	TopicStop   = "stop"
	TopicStatus = "status"
)

// Status events carried in StatusDTO.Event
const (
	EventStarted   = "started"
	EventEnded     = "ended"
	EventRequested = "requested" // explicit PublishStatus call
	EventFailed    = "failed"    // a control command was rejected
)

// Player is the part of the playback controller the service drives
type Player interface {
	StartFile(path string) error
	Stop()
	Status() audiocore.Status
}

// Client defines the MQTT remote control operations.
type Client interface {
	// Connect attempts to connect to the MQTT broker and subscribe to the control topics.
	Connect(ctx context.Context) error

	// PublishStatus publishes the current playback status.
	PublishStatus(ctx context.Context) error

	// IsConnected returns true if the client is currently connected to the MQTT broker.
	IsConnected() bool

	// Disconnect closes the connection to the MQTT broker.
	Disconnect()
}

// Config holds the configuration for the MQTT client.
type Config struct {
	Broker            string
	ClientID          string
	Username          string
	Password          string
	Topic             string // base topic, e.g. "bob/audio"
	Retain            bool   // true to retain status messages at the broker
	ReconnectCooldown time.Duration
	// Connection timeouts
	ConnectTimeout    time.Duration
	PublishTimeout    time.Duration
	DisconnectTimeout time.Duration
}

// DefaultConfig returns a Config with reasonable default values
func DefaultConfig() Config {
	return Config{
		Topic:             "bob/audio",
		ReconnectCooldown: 5 * time.Second,
		ConnectTimeout:    30 * time.Second,
		PublishTimeout:    10 * time.Second,
		DisconnectTimeout: 250 * time.Millisecond,
	}
}

func (c Config) topic(suffix string) string {
	return c.Topic + "/" + suffix
}
