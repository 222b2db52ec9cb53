package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/nerrad567/cloud4rpi-go/internal/infrastructure/config"
	"github.com/nerrad567/cloud4rpi-go/internal/infrastructure/mqtt"
)

// commandQoS is the subscription level for the commands topic.
const commandQoS = 1

// mqttClient is the part of *mqtt.Client used by the MQTT conn.
type mqttClient interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	IsConnected() bool
	Reconnects() int
	Close() error
}

// MQTT is a Conn publishing to devices/{token}/{kind} and listening on
// devices/{token}/commands.
type MQTT struct {
	client mqttClient
	topics mqtt.Topics

	mu      sync.RWMutex
	handler func(cmd map[string]any)
	closed  bool

	logger Logger
}

var _ Conn = (*MQTT)(nil)

// DialMQTT validates token, connects to the broker once and subscribes to
// the commands topic. Wrap it in ConnectWithRetry for retries.
func DialMQTT(cfg config.MQTTConfig, token string, logger Logger) (*MQTT, error) {
	if err := ValidateToken(token); err != nil {
		return nil, err
	}

	client, err := mqtt.Connect(cfg, token)
	if err != nil {
		return nil, err
	}
	if logger != nil {
		client.SetLogger(logger)
	}

	m := newMQTT(client, token, logger)
	if err := m.subscribe(); err != nil {
		client.Close()
		return nil, err
	}

	client.SetOnConnect(func() {
		m.logger.Info("mqtt connected")
	})
	client.SetOnDisconnect(func(err error) {
		m.logger.Warn("mqtt connection lost", "error", err)
	})

	return m, nil
}

func newMQTT(client mqttClient, token string, logger Logger) *MQTT {
	if logger == nil {
		logger = noopLogger{}
	}
	return &MQTT{
		client: client,
		topics: mqtt.Topics{Token: token},
		logger: logger,
	}
}

func (m *MQTT) subscribe() error {
	topic := m.topics.Commands()
	m.logger.Debug("listening for commands", "topic", topic)
	if err := m.client.Subscribe(topic, commandQoS, m.handleMessage); err != nil {
		return fmt.Errorf("subscribing to commands: %w", err)
	}
	return nil
}

// Send publishes msg wrapped in the {"ts","payload"} envelope.
func (m *MQTT) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	topic, err := m.topicFor(msg.Kind)
	if err != nil {
		return err
	}

	payload, err := msg.Envelope()
	if err != nil {
		return err
	}

	m.logger.Info("publishing", "topic", topic, "kind", msg.Kind)
	if err := m.client.Publish(ctx, topic, payload); err != nil {
		return fmt.Errorf("publishing %s: %w", msg.Kind, err)
	}
	return nil
}

func (m *MQTT) topicFor(kind Kind) (string, error) {
	switch kind {
	case KindConfig:
		return m.topics.Config(), nil
	case KindData:
		return m.topics.Data(), nil
	case KindDiagnostics:
		return m.topics.Diagnostics(), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

// OnCommand implements Conn.
func (m *MQTT) OnCommand(handler func(cmd map[string]any)) {
	m.mu.Lock()
	m.handler = handler
	m.mu.Unlock()
}

// handleMessage decodes a command and hands it to the registered handler.
// Returned errors are logged by the mqtt client.
func (m *MQTT) handleMessage(topic string, payload []byte) error {
	m.logger.Info("command received", "topic", topic, "payload", string(payload))

	cmd, err := decodeCommand(payload)
	if err != nil {
		return err
	}

	m.mu.RLock()
	handler := m.handler
	m.mu.RUnlock()

	if handler != nil {
		handler(cmd)
	}
	return nil
}

// IsConnected reports whether the broker link is up.
func (m *MQTT) IsConnected() bool {
	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	return !closed && m.client.IsConnected()
}

// Reconnects returns how often the broker link came back after a loss.
func (m *MQTT) Reconnects() int {
	return m.client.Reconnects()
}

// Close disconnects from the broker. Further sends fail with ErrClosed.
func (m *MQTT) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	return m.client.Close()
}
