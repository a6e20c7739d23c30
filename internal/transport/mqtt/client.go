// Package mqtt subscribes to the inbound facility-status and
// crowd-density topics and forwards decoded payloads to the facility
// state broker, and publishes outbound events such as hazard alerts.
package mqtt

import (
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

const (
	topicFacilityStatus  = "facility/status/+"
	topicFacilityDensity = "facility/density/+"

	qosLevel             = 1
	maxConnectRetries    = 5
	retryBackoffInterval = 3 * time.Second
)

// Config configures the MQTT connection to the facility message broker.
type Config struct {
	BrokerURL      string
	ClientID       string
	Username       string
	Password       string
	ConnectTimeout time.Duration
	KeepAlive      time.Duration
}

// MessageHandler decodes and applies one inbound message's payload.
type MessageHandler func(payload []byte) error

// Client wraps a paho MQTT client with a manual reconnect-with-backoff
// loop, matching the teacher's preference for explicit retry logic over
// the library's built-in auto-reconnect.
type Client struct {
	client paho.Client
	logger *zap.Logger
}

// NewClient builds a paho client configured per cfg, but does not
// connect yet.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	opts := paho.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetKeepAlive(cfg.KeepAlive).
		SetAutoReconnect(false).
		SetConnectionLostHandler(func(c paho.Client, err error) {
			logger.Warn("mqtt connection lost", zap.Error(err))
		})
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	return &Client{client: paho.NewClient(opts), logger: logger}
}

// Connect attempts to connect with exponential backoff, up to
// maxConnectRetries times.
func (c *Client) Connect() error {
	var lastErr error
	for attempt := 1; attempt <= maxConnectRetries; attempt++ {
		token := c.client.Connect()
		if token.WaitTimeout(10*time.Second) && token.Error() == nil {
			c.logger.Info("connected to mqtt broker", zap.Int("attempt", attempt))
			return nil
		}
		lastErr = token.Error()
		c.logger.Warn("mqtt connect attempt failed", zap.Int("attempt", attempt), zap.Error(lastErr))
		time.Sleep(retryBackoffInterval * time.Duration(1<<(attempt-1)))
	}
	return fmt.Errorf("mqtt: failed to connect after %d attempts: %w", maxConnectRetries, lastErr)
}

// SubscribeStatus subscribes to the facility-status topic.
func (c *Client) SubscribeStatus(handler MessageHandler) error {
	return c.subscribe(topicFacilityStatus, handler)
}

// SubscribeDensity subscribes to the crowd-density topic.
func (c *Client) SubscribeDensity(handler MessageHandler) error {
	return c.subscribe(topicFacilityDensity, handler)
}

func (c *Client) subscribe(topic string, handler MessageHandler) error {
	token := c.client.Subscribe(topic, qosLevel, func(_ paho.Client, msg paho.Message) {
		if err := handler(msg.Payload()); err != nil {
			c.logger.Warn("failed to handle mqtt message", zap.String("topic", msg.Topic()), zap.Error(err))
		}
	})
	token.Wait()
	return token.Error()
}

// Publish publishes payload to topic. Implements ports.MQTTPublisher.
func (c *Client) Publish(topic string, payload []byte) error {
	token := c.client.Publish(topic, qosLevel, false, payload)
	token.Wait()
	return token.Error()
}

// Disconnect cleanly disconnects from the broker.
func (c *Client) Disconnect() {
	c.client.Disconnect(250)
}
