// Package mqtt publishes door events to an MQTT broker.
package mqtt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/kozaktomas/facegate/internal/config"
	"github.com/kozaktomas/facegate/internal/metrics"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 10 * time.Second
	disconnectMs   = 250
)

// ErrNotConnected is returned by Publish before Connect succeeds.
var ErrNotConnected = errors.New("not connected to MQTT broker")

// Client is a thin wrapper around the paho client.
type Client struct {
	cfg      config.MQTTConfig
	deviceID string
	metrics  *metrics.Metrics

	mu     sync.Mutex
	client paho.Client
}

// NewClient creates an unconnected client.
func NewClient(cfg *config.MQTTConfig, deviceID string, m *metrics.Metrics) *Client {
	return &Client{cfg: *cfg, deviceID: deviceID, metrics: m}
}

func (c *Client) options() *paho.ClientOptions {
	opts := paho.NewClientOptions()
	opts.AddBroker(c.cfg.Broker)
	opts.SetClientID("facegate-" + c.deviceID)
	opts.SetUsername(c.cfg.Username)
	opts.SetPassword(c.cfg.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetWill(Topic(c.cfg.TopicPrefix, c.deviceID, TopicOnline), "false", 1, true)
	opts.SetOnConnectHandler(func(client paho.Client) {
		slog.Info("mqtt: connected", "broker", c.cfg.Broker)
		c.metrics.SetMQTT(true)
		client.Publish(Topic(c.cfg.TopicPrefix, c.deviceID, TopicOnline), 1, true, "true")
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		slog.Warn("mqtt: connection lost", "broker", c.cfg.Broker, "error", err)
		c.metrics.SetMQTT(false)
	})
	return opts
}

// Connect starts the connection. On timeout the client keeps retrying in the background.
func (c *Client) Connect(ctx context.Context) error {
	client := paho.NewClient(c.options())

	c.mu.Lock()
	if c.client != nil {
		c.mu.Unlock()
		return errors.New("already connecting")
	}
	c.client = client
	c.mu.Unlock()

	token := client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(connectTimeout):
		return errors.New("connection timeout, retrying in background")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connection error: %w", err)
	}
	return nil
}

// Publish sends payload to topic at QoS 1 and waits for the broker acknowledgement.
func (c *Client) Publish(ctx context.Context, topic string, payload []byte, retain bool) error {
	c.mu.Lock()
	client := c.client
	c.mu.Unlock()

	if client == nil || !client.IsConnected() {
		return ErrNotConnected
	}

	token := client.Publish(topic, 1, retain, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(publishTimeout):
		return fmt.Errorf("publish timeout for topic %s", topic)
	}
	return token.Error()
}

// Disconnect announces the device offline and closes the connection or stops retrying.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil {
		return
	}
	if c.client.IsConnected() {
		c.client.Publish(Topic(c.cfg.TopicPrefix, c.deviceID, TopicOnline), 1, true, "false").WaitTimeout(time.Second)
	}
	c.client.Disconnect(disconnectMs)
	c.client = nil
	c.metrics.SetMQTT(false)
}
