package transport

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// MQTTConfig holds the broker connection settings
type MQTTConfig struct {
	Broker    string // host, host:port or tcp://host:port
	Port      int
	ClientID  string
	Username  string
	Password  string
	QoS       byte
	KeepAlive time.Duration
}

// BrokerURL returns the broker address in paho form
func (c MQTTConfig) BrokerURL() string {
	if strings.Contains(c.Broker, "://") {
		return c.Broker
	}
	if strings.Contains(c.Broker, ":") {
		return "tcp://" + c.Broker
	}
	port := c.Port
	if port == 0 {
		port = 1883
	}
	return fmt.Sprintf("tcp://%s:%d", c.Broker, port)
}

// MQTTBus is a Bus backed by an MQTT broker (mosquitto in the testbed).
// Subscriptions are restored by the on-connect handler after a reconnect.
type MQTTBus struct {
	cfg    MQTTConfig
	logger zerolog.Logger

	mu     sync.Mutex
	client mqtt.Client
	subs   map[string]Handler
}

// NewMQTTBus creates an unconnected MQTT bus
func NewMQTTBus(cfg MQTTConfig, logger zerolog.Logger) *MQTTBus {
	if cfg.QoS > 2 {
		cfg.QoS = 1
	}
	if cfg.KeepAlive == 0 {
		cfg.KeepAlive = 60 * time.Second
	}
	return &MQTTBus{
		cfg:    cfg,
		logger: logger.With().Str("component", "mqtt").Logger(),
		subs:   make(map[string]Handler),
	}
}

// Connect makes one connection attempt. Use ConnectWithRetry for the startup loop.
func (b *MQTTBus) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions().
		AddBroker(b.cfg.BrokerURL()).
		SetClientID(b.cfg.ClientID).
		SetKeepAlive(b.cfg.KeepAlive).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(30 * time.Second).
		SetOrderMatters(true).
		SetOnConnectHandler(b.onConnect).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			b.logger.Warn().Err(err).Msg("MQTT connection lost")
		})
	if b.cfg.Username != "" {
		opts.SetUsername(b.cfg.Username)
		opts.SetPassword(b.cfg.Password)
	}

	client := mqtt.NewClient(opts)
	if err := wait(ctx, client.Connect()); err != nil {
		return fmt.Errorf("failed to connect to MQTT broker %s: %w", b.cfg.BrokerURL(), err)
	}

	b.mu.Lock()
	b.client = client
	b.mu.Unlock()

	b.logger.Info().Str("broker", b.cfg.BrokerURL()).Msg("Connected to MQTT broker")
	return nil
}

// onConnect re-issues subscriptions after an automatic reconnect
func (b *MQTTBus) onConnect(c mqtt.Client) {
	b.mu.Lock()
	subs := make(map[string]Handler, len(b.subs))
	for f, h := range b.subs {
		subs[f] = h
	}
	b.mu.Unlock()

	for filter, h := range subs {
		token := c.Subscribe(filter, b.cfg.QoS, b.callback(h))
		if token.WaitTimeout(10*time.Second) && token.Error() != nil {
			b.logger.Error().Err(token.Error()).Str("filter", filter).Msg("Failed to resubscribe")
		}
	}
}

func (b *MQTTBus) callback(h Handler) mqtt.MessageHandler {
	return func(_ mqtt.Client, m mqtt.Message) {
		h(Message{Topic: m.Topic(), Payload: m.Payload(), Retained: m.Retained()})
	}
}

func (b *MQTTBus) conn() (mqtt.Client, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.client == nil {
		return nil, ErrNotConnected
	}
	return b.client, nil
}

// Publish sends a payload with the configured QoS
func (b *MQTTBus) Publish(ctx context.Context, topic string, payload []byte, retained bool) error {
	c, err := b.conn()
	if err != nil {
		return err
	}
	if err := wait(ctx, c.Publish(topic, b.cfg.QoS, retained, payload)); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

// Subscribe registers h for filter. The broker replays retained values with
// the retained flag set.
func (b *MQTTBus) Subscribe(ctx context.Context, filter string, h Handler) error {
	c, err := b.conn()
	if err != nil {
		return err
	}

	b.mu.Lock()
	b.subs[filter] = h
	b.mu.Unlock()

	if err := wait(ctx, c.Subscribe(filter, b.cfg.QoS, b.callback(h))); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", filter, err)
	}
	b.logger.Info().Str("filter", filter).Msg("Subscribed")
	return nil
}

// IsConnected reports the client connection state
func (b *MQTTBus) IsConnected() bool {
	c, err := b.conn()
	return err == nil && c.IsConnected()
}

// Close disconnects from the broker
func (b *MQTTBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.client != nil {
		b.client.Disconnect(250)
		b.client = nil
	}
	return nil
}

// wait blocks until the token completes or ctx is done
func wait(ctx context.Context, token mqtt.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
