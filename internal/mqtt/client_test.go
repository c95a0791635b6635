package mqtt

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/leafnet/leafnet-go/internal/conf"
	"github.com/leafnet/leafnet-go/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigFromSettings(t *testing.T) {
	t.Parallel()

	cfg := ConfigFromSettings(&conf.MQTTSettings{
		Broker: "tcp://localhost:1883", Username: "leaf", Password: "pw", QoS: 2, Retain: true,
	})
	assert.Equal(t, "tcp://localhost:1883", cfg.Broker)
	assert.Equal(t, byte(2), cfg.QoS)
	assert.True(t, cfg.Retain)
	assert.Regexp(t, `^leafnet-[0-9a-f]{8}$`, cfg.ClientID)
	assert.Equal(t, 10*time.Second, cfg.PublishTimeout)
}

func TestPublishWhileDisconnected(t *testing.T) {
	t.Parallel()

	c := NewClient(DefaultConfig(), nil)
	err := c.Publish(context.Background(), "leafnet/alerts", []byte("{}"))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryMQTTPublish))
	assert.False(t, c.IsConnected())
}

func TestSubscribeWhileDisconnectedIsDeferred(t *testing.T) {
	t.Parallel()

	c := NewClient(DefaultConfig(), nil)
	require.NoError(t, c.Subscribe(context.Background(), "leafnet/images", func(string, []byte) {}))
	assert.Len(t, c.(*client).subscriptions, 1)
}

func TestConnectInvalidBroker(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Broker = "://nope"
	c := NewClient(cfg, nil)

	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryMQTTConnection))
}

func TestConnectCooldown(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Broker = "not a url"
	cfg.ReconnectCooldown = time.Hour
	c := NewClient(cfg, nil)

	_ = c.Connect(context.Background())
	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too recent")
}

func TestDisconnectWithoutConnect(t *testing.T) {
	t.Parallel()
	NewClient(DefaultConfig(), nil).Disconnect()
}

// TestBrokerRoundTrip needs a broker; set LEAFNET_TEST_MQTT_BROKER to run it.
func TestBrokerRoundTrip(t *testing.T) {
	broker := os.Getenv("LEAFNET_TEST_MQTT_BROKER")
	if broker == "" {
		t.Skip("LEAFNET_TEST_MQTT_BROKER not set")
	}

	cfg := ConfigFromSettings(&conf.MQTTSettings{Broker: broker, QoS: 1})
	c := NewClient(cfg, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	require.NoError(t, c.Connect(ctx))
	defer c.Disconnect()

	got := make(chan []byte, 1)
	topic := "leafnet/test/" + cfg.ClientID
	require.NoError(t, c.Subscribe(ctx, topic, func(_ string, p []byte) { got <- p }))
	require.NoError(t, c.Publish(ctx, topic, []byte(`{"id":"x"}`)))

	select {
	case p := <-got:
		assert.JSONEq(t, `{"id":"x"}`, string(p))
	case <-ctx.Done():
		t.Fatal("message not received")
	}
}
