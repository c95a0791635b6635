// Package mqtt wraps the paho client for publishing disease alerts and
// receiving image record events.
package mqtt

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/leafnet/leafnet-go/internal/conf"
)

// MessageHandler receives the payload of a subscribed message.
type MessageHandler func(topic string, payload []byte)

// Client defines the MQTT operations used by the pipeline and triggers.
type Client interface {
	// Connect dials the broker. Paho reconnects automatically afterwards.
	Connect(ctx context.Context) error

	// Publish sends payload to topic and waits for the broker ack.
	Publish(ctx context.Context, topic string, payload []byte) error

	// Subscribe registers handler for topic. Subscriptions survive reconnects.
	Subscribe(ctx context.Context, topic string, handler MessageHandler) error

	IsConnected() bool

	// Disconnect closes the connection to the broker.
	Disconnect()
}

// Config holds the configuration for the MQTT client.
type Config struct {
	Broker            string
	ClientID          string
	Username          string
	Password          string
	QoS               byte
	Retain            bool
	ReconnectCooldown time.Duration
	ConnectTimeout    time.Duration
	PublishTimeout    time.Duration
	DisconnectTimeout time.Duration
}

// DefaultConfig returns a Config with default timeouts.
func DefaultConfig() Config {
	return Config{
		QoS:               1,
		ReconnectCooldown: 5 * time.Second,
		ConnectTimeout:    30 * time.Second,
		PublishTimeout:    10 * time.Second,
		DisconnectTimeout: 250 * time.Millisecond,
	}
}

// ConfigFromSettings builds a Config from the mqtt settings section.
func ConfigFromSettings(settings *conf.MQTTSettings) Config {
	cfg := DefaultConfig()
	cfg.Broker = settings.Broker
	cfg.ClientID = settings.ClientID
	cfg.Username = settings.Username
	cfg.Password = settings.Password
	cfg.QoS = settings.QoS
	cfg.Retain = settings.Retain
	if cfg.ClientID == "" {
		cfg.ClientID = "leafnet-" + uuid.NewString()[:8]
	}
	return cfg
}
