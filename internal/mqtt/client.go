package mqtt

import (
	"context"
	"net"
	"net/url"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/leafnet/leafnet-go/internal/errors"
	"github.com/leafnet/leafnet-go/internal/logger"
	"github.com/leafnet/leafnet-go/internal/observability/metrics"
	"github.com/leafnet/leafnet-go/internal/privacy"
)

// client implements the Client interface.
type client struct {
	config          Config
	internalClient  pahomqtt.Client
	lastConnAttempt time.Time
	mu              sync.Mutex
	subsMu          sync.Mutex
	subscriptions   map[string]MessageHandler
	metrics         *metrics.MQTTMetrics
	log             logger.Logger
}

// NewClient creates an MQTT client. m may be nil.
func NewClient(config Config, m *metrics.MQTTMetrics) Client {
	return &client{
		config:        config,
		subscriptions: make(map[string]MessageHandler),
		metrics:       m,
		log:           GetLogger().With(logger.String("broker", privacy.RedactURL(config.Broker))),
	}
}

// Connect resolves the broker host and then connects.
func (c *client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if since := time.Since(c.lastConnAttempt); since < c.config.ReconnectCooldown {
		return connectionError(errors.Newf("connection attempt too recent, last attempt was %v ago", since.Round(time.Millisecond)).Build(), "cooldown")
	}
	c.lastConnAttempt = time.Now()

	u, err := url.Parse(c.config.Broker)
	if err != nil || u.Host == "" {
		if err == nil {
			err = errors.NewStd("missing host")
		}
		return connectionError(err, "parse_broker_url")
	}

	host := u.Hostname()
	if net.ParseIP(host) == nil {
		if _, err := net.DefaultResolver.LookupHost(ctx, host); err != nil {
			return connectionError(err, "resolve_host")
		}
	}

	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(c.config.Broker)
	opts.SetClientID(c.config.ClientID)
	opts.SetUsername(c.config.Username)
	opts.SetPassword(c.config.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(c.config.ConnectTimeout)
	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)
	opts.SetReconnectingHandler(c.onReconnecting)

	c.internalClient = pahomqtt.NewClient(opts)

	token := c.internalClient.Connect()
	if err := waitToken(ctx, token, c.config.ConnectTimeout); err != nil {
		c.metrics.IncrementErrors()
		return connectionError(err, "connect")
	}

	c.metrics.UpdateConnectionStatus(true)
	return nil
}

// Publish sends a message to the specified topic.
func (c *client) Publish(ctx context.Context, topic string, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.IsConnected() {
		return publishError(errors.NewStd("not connected to MQTT broker"), topic)
	}

	start := time.Now()
	token := c.internalClient.Publish(topic, c.config.QoS, c.config.Retain, payload)
	if err := waitToken(ctx, token, c.config.PublishTimeout); err != nil {
		c.metrics.IncrementErrors()
		return publishError(err, topic)
	}

	c.metrics.IncrementMessagesDelivered()
	c.metrics.ObservePublishLatency(time.Since(start))
	c.log.Debug("published", logger.String("topic", topic), logger.Int("bytes", len(payload)))
	return nil
}

// Subscribe registers handler and subscribes when connected. Handlers are
// re-subscribed on every reconnect.
func (c *client) Subscribe(ctx context.Context, topic string, handler MessageHandler) error {
	c.subsMu.Lock()
	c.subscriptions[topic] = handler
	c.subsMu.Unlock()

	if !c.IsConnected() {
		return nil
	}

	token := c.internalClient.Subscribe(topic, c.config.QoS, c.wrap(handler))
	if err := waitToken(ctx, token, c.config.PublishTimeout); err != nil {
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryMQTTConnection).
			Context("operation", "subscribe").
			Context("topic", topic).
			Build()
	}
	c.log.Info("subscribed", logger.String("topic", topic))
	return nil
}

// IsConnected returns true if the client is currently connected.
func (c *client) IsConnected() bool {
	return c.internalClient != nil && c.internalClient.IsConnected()
}

// Disconnect closes the connection to the broker.
func (c *client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.internalClient != nil && c.internalClient.IsConnected() {
		c.internalClient.Disconnect(uint(c.config.DisconnectTimeout.Milliseconds()))
		c.metrics.UpdateConnectionStatus(false)
		c.log.Info("disconnected")
	}
}

func (c *client) wrap(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		c.metrics.IncrementMessagesReceived()
		handler(msg.Topic(), msg.Payload())
	}
}

func (c *client) onConnect(pc pahomqtt.Client) {
	c.metrics.UpdateConnectionStatus(true)
	c.log.Info("connected")

	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	for topic, handler := range c.subscriptions {
		token := pc.Subscribe(topic, c.config.QoS, c.wrap(handler))
		if token.WaitTimeout(c.config.PublishTimeout) && token.Error() != nil {
			c.log.Warn("resubscribe failed", logger.String("topic", topic), logger.Error(token.Error()))
		}
	}
}

func (c *client) onConnectionLost(_ pahomqtt.Client, err error) {
	c.metrics.UpdateConnectionStatus(false)
	c.metrics.IncrementErrors()
	c.log.Warn("connection lost", logger.Error(privacy.ScrubError(err)))
}

func (c *client) onReconnecting(_ pahomqtt.Client, _ *pahomqtt.ClientOptions) {
	c.metrics.IncrementReconnectAttempts()
}

// waitToken waits for token completion, ctx cancellation or timeout.
func waitToken(ctx context.Context, token pahomqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return errors.NewStd("operation timed out")
	}
}

func connectionError(err error, operation string) error {
	return errors.New(privacy.ScrubError(err)).
		Component("mqtt").
		Category(errors.CategoryMQTTConnection).
		Context("operation", operation).
		Build()
}

func publishError(err error, topic string) error {
	return errors.New(err).
		Component("mqtt").
		Category(errors.CategoryMQTTPublish).
		Context("topic", topic).
		Build()
}
