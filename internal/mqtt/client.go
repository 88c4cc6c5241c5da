// Package mqtt publishes decoded sensor readings and the current auto-detected
// context to an MQTT broker.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/david-ria/pmscanv2-sub007/internal/config"
	"github.com/david-ria/pmscanv2-sub007/internal/sensor"
)

type Client struct {
	client    mqtt.Client
	cfg       config.Config
	logger    *slog.Logger
	mu        sync.RWMutex
	connected bool

	stopCh   chan struct{}
	stopOnce sync.Once
}

// ContextUpdate is the retained payload on context/current.
type ContextUpdate struct {
	Context   string    `json:"context"`
	Timestamp time.Time `json:"timestamp"`
}

func NewClient(cfg config.Config, logger *slog.Logger) (*Client, error) {
	c := &Client{
		cfg:    cfg,
		logger: logger,
		stopCh: make(chan struct{}),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.MQTTBroker, cfg.MQTTPort))
	opts.SetClientID(cfg.MQTTClientID)

	// Session settings
	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)

	// Keepalive / timeouts
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	// Callbacks keep internal state accurate
	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		c.setConnected(true)
		logger.Info("mqtt connected", "broker", cfg.MQTTBroker, "port", cfg.MQTTPort)
	})

	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		c.setConnected(false)
		logger.Warn("mqtt connection lost", "error", err)
	})

	c.client = mqtt.NewClient(opts)
	return c, nil
}

// Connect establishes connection to the MQTT broker.
// This function waits for the initial connection, and respects ctx and Disconnect().
func (c *Client) Connect(ctx context.Context) error {
	// Fail fast if already stopped.
	select {
	case <-c.stopCh:
		return fmt.Errorf("client stopped")
	default:
	}

	// Fast path.
	if c.IsConnected() {
		return nil
	}

	// Start connect attempt. With ConnectRetry(true), it may keep retrying internally.
	token := c.client.Connect()

	// Wait in a ctx/stop-aware loop.
	const poll = 200 * time.Millisecond
	for {
		if token.WaitTimeout(poll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}
			// OnConnectHandler sets connected=true.
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.stopCh:
			return fmt.Errorf("client stopped")
		default:
		}
	}
}

// PublishReading publishes one decoded sensor reading to the source's topic.
func (c *Client) PublishReading(reading sensor.Reading) error {
	if !c.IsConnected() {
		return fmt.Errorf("mqtt client not connected")
	}

	label := topicLabel(reading.SourceLabel)
	topic := fmt.Sprintf("sensors/%s/readings", label)

	if reading.Timestamp.IsZero() {
		reading.Timestamp = time.Now()
	}

	data, err := json.Marshal(reading)
	if err != nil {
		return fmt.Errorf("marshal reading: %w", err)
	}

	token := c.client.Publish(topic, 1, false, data)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish timeout for topic %s", topic)
	}
	if token.Error() != nil {
		c.logger.Error("failed to publish reading", "topic", topic, "error", token.Error())
		return fmt.Errorf("publish reading: %w", token.Error())
	}

	c.logger.Debug("published reading", "topic", topic, "source", label)
	return nil
}

// PublishContext publishes the current auto-detected context, retained so
// late subscribers see the latest value immediately.
func (c *Client) PublishContext(name string) error {
	if !c.IsConnected() {
		return fmt.Errorf("mqtt client not connected")
	}

	const topic = "context/current"

	data, err := json.Marshal(ContextUpdate{Context: name, Timestamp: time.Now()})
	if err != nil {
		return fmt.Errorf("marshal context update: %w", err)
	}

	token := c.client.Publish(topic, 1, true, data) // retained
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish timeout for topic %s", topic)
	}
	if token.Error() != nil {
		c.logger.Error("failed to publish context", "topic", topic, "error", token.Error())
		return fmt.Errorf("publish context: %w", token.Error())
	}

	c.logger.Debug("published context", "topic", topic, "context", name)
	return nil
}

// topicLabel turns a device name into a single safe topic level. MQTT
// separators and wildcards ('/', '+', '#') would splice extra levels or make
// the topic unpublishable, so they are replaced, and an empty or all-invalid
// name falls back to "unknown".
func topicLabel(name string) string {
	label := strings.Map(func(r rune) rune {
		switch r {
		case '/', '+', '#', 0:
			return '_'
		}
		if unicode.IsSpace(r) {
			return '_'
		}
		return r
	}, name)
	if strings.Trim(label, "_") == "" {
		return "unknown"
	}
	return label
}

// IsConnected returns whether the client is connected.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	connected := c.connected
	c.mu.RUnlock()
	return connected && c.client.IsConnected()
}

// Disconnect stops the client and closes the MQTT connection.
// Idempotent and safe to call multiple times.
// After Disconnect, Connect() will return "client stopped".
func (c *Client) Disconnect() {
	// Signal shutdown once (unblocks any Connect loops).
	c.stopOnce.Do(func() { close(c.stopCh) })

	// Even if already disconnected, this is safe.
	if c.client != nil {
		c.client.Disconnect(250)
	}

	c.setConnected(false)
	c.logger.Info("mqtt disconnected")
}

func (c *Client) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}
