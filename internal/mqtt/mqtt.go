// Package mqtt publishes terminal job status messages to an MQTT broker.
package mqtt

import (
	"context"
	"time"

	"github.com/rsamf/mink/internal/conf"
	"github.com/rsamf/mink/internal/logger"
)

// DefaultTopicPrefix is used when no topic is configured. The job id is
// appended as the last topic level.
const DefaultTopicPrefix = "mink/jobs"

// Client defines the interface for MQTT client operations.
type Client interface {
	// Connect attempts to connect to the MQTT broker.
	// It returns an error if the connection fails.
	Connect(ctx context.Context) error

	// Publish sends a message to the specified topic on the MQTT broker.
	// It returns an error if the publish operation fails.
	Publish(ctx context.Context, topic string, payload []byte) error

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
	Topic             string // prefix for job topics
	QoS               byte
	Retain            bool // true to retain messages at the broker
	ReconnectCooldown time.Duration
	MaxReconnectDelay time.Duration
	// Connection timeouts
	ConnectTimeout    time.Duration
	PublishTimeout    time.Duration
	DisconnectTimeout time.Duration
}

var log = logger.Global().Module("mqtt")

// DefaultConfig returns a Config with reasonable default values
func DefaultConfig() Config {
	return Config{
		ClientID:          "mink",
		Topic:             DefaultTopicPrefix,
		ReconnectCooldown: 5 * time.Second,
		MaxReconnectDelay: 5 * time.Minute,
		ConnectTimeout:    30 * time.Second,
		PublishTimeout:    10 * time.Second,
		DisconnectTimeout: 250 * time.Millisecond,
	}
}

// ConfigFromSettings overlays the configured broker settings on DefaultConfig.
func ConfigFromSettings(settings *conf.MQTTSettings) Config {
	cfg := DefaultConfig()
	cfg.Broker = settings.Broker
	if settings.ClientID != "" {
		cfg.ClientID = settings.ClientID
	}
	cfg.Username = settings.Username
	cfg.Password = settings.Password
	if settings.Topic != "" {
		cfg.Topic = settings.Topic
	}
	if settings.QoS > 0 && settings.QoS <= 2 {
		cfg.QoS = byte(settings.QoS)
	}
	cfg.Retain = settings.Retain
	return cfg
}
