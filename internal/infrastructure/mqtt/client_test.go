package mqtt

import (
	"context"
	"crypto/tls"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/cloud4rpi-go/internal/infrastructure/config"
)

const testToken = "3kDzXbEw4bGsn1oYhMi3bn8Pw"

// testConfig returns a valid MQTT configuration for testing.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host: "127.0.0.1",
			Port: 1883,
		},
		QoS:       1,
		KeepAlive: 30,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// mockLogger implements Logger interface for testing.
type mockLogger struct {
	errors []string
	warns  []string
	mu     sync.Mutex
}

func (l *mockLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	l.errors = append(l.errors, msg)
	l.mu.Unlock()
}

func (l *mockLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}

// =============================================================================
// Topic Tests
// =============================================================================

func TestTopics(t *testing.T) {
	topics := Topics{Token: testToken}

	tests := []struct {
		name     string
		got      string
		expected string
	}{
		{name: "config", got: topics.Config(), expected: "devices/" + testToken + "/config"},
		{name: "data", got: topics.Data(), expected: "devices/" + testToken + "/data"},
		{name: "diagnostics", got: topics.Diagnostics(), expected: "devices/" + testToken + "/diagnostics"},
		{name: "commands", got: topics.Commands(), expected: "devices/" + testToken + "/commands"},
		{name: "all", got: topics.All(), expected: "devices/" + testToken + "/#"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("got %q, want %q", tt.got, tt.expected)
			}
		})
	}
}

// =============================================================================
// Options Tests
// =============================================================================

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Username = "user"
	cfg.Auth.Password = "pass"

	opts := buildClientOptions(cfg, testToken)

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://127.0.0.1:1883" {
		t.Errorf("Servers = %v, want tcp://127.0.0.1:1883", opts.Servers)
	}
	if opts.ClientID != testToken {
		t.Errorf("ClientID = %q, want token", opts.ClientID)
	}
	if opts.Username != "user" || opts.Password != "pass" {
		t.Errorf("credentials = %q/%q, want user/pass", opts.Username, opts.Password)
	}
	if opts.CleanSession {
		t.Error("CleanSession = true, want persistent session")
	}
	if opts.KeepAlive != 30 {
		t.Errorf("KeepAlive = %d, want 30", opts.KeepAlive)
	}
	if !opts.AutoReconnect {
		t.Error("AutoReconnect = false, want true")
	}
	if opts.MaxReconnectInterval != 5*time.Second {
		t.Errorf("MaxReconnectInterval = %v, want 5s", opts.MaxReconnectInterval)
	}
}

func TestBuildClientOptions_TLSAndOverrides(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.TLS = true
	cfg.Broker.Port = 8883
	cfg.Broker.ClientID = "custom-id"
	cfg.KeepAlive = 0

	opts := buildClientOptions(cfg, testToken)

	if !strings.HasPrefix(opts.Servers[0].String(), "ssl://") {
		t.Errorf("Servers[0] = %v, want ssl scheme", opts.Servers[0])
	}
	if opts.TLSConfig == nil || opts.TLSConfig.MinVersion != tls.VersionTLS12 || opts.TLSConfig.ServerName != "127.0.0.1" {
		t.Errorf("TLSConfig = %+v, want TLS 1.2 minimum for the broker host", opts.TLSConfig)
	}
	if opts.ClientID != "custom-id" {
		t.Errorf("ClientID = %q, want configured override", opts.ClientID)
	}
	if opts.KeepAlive != int64(defaultKeepAlive.Seconds()) {
		t.Errorf("KeepAlive = %d, want default %v", opts.KeepAlive, defaultKeepAlive)
	}
}

func TestBrokerURL(t *testing.T) {
	tests := []struct {
		broker config.MQTTBrokerConfig
		want   string
	}{
		{config.MQTTBrokerConfig{Host: "mq.cloud4rpi.io", Port: 1883}, "tcp://mq.cloud4rpi.io:1883"},
		{config.MQTTBrokerConfig{Host: "mq.cloud4rpi.io", Port: 8883, TLS: true}, "ssl://mq.cloud4rpi.io:8883"},
		{config.MQTTBrokerConfig{Host: "::1", Port: 1883}, "tcp://[::1]:1883"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := brokerURL(tt.broker); got != tt.want {
				t.Errorf("brokerURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

// =============================================================================
// Disconnected Client Tests
// =============================================================================

func TestCloseNil(t *testing.T) {
	client := &Client{}
	if err := client.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v, want nil", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true for empty client")
	}
}

func TestPublish_Validation(t *testing.T) {
	client := newClient(testConfig(), testToken)
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name    string
		ctx     context.Context
		topic   string
		payload []byte
		wantErr error
	}{
		{name: "empty topic", ctx: context.Background(), topic: "", payload: []byte("x"), wantErr: ErrInvalidTopic},
		{name: "oversized payload", ctx: context.Background(), topic: "t", payload: make([]byte, maxPayloadSize+1), wantErr: ErrPublishFailed},
		{name: "cancelled", ctx: cancelled, topic: "t", payload: []byte("x"), wantErr: context.Canceled},
		{name: "not connected", ctx: context.Background(), topic: "t", payload: []byte("x"), wantErr: ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := client.Publish(tt.ctx, tt.topic, tt.payload)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Publish() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSubscribe_Validation(t *testing.T) {
	client := newClient(testConfig(), testToken)
	handler := func(string, []byte) error { return nil }

	tests := []struct {
		name    string
		topic   string
		qos     byte
		handler MessageHandler
		wantErr error
	}{
		{name: "empty topic", topic: "", qos: 1, handler: handler, wantErr: ErrInvalidTopic},
		{name: "invalid qos", topic: "t", qos: 5, handler: handler, wantErr: ErrInvalidQoS},
		{name: "nil handler", topic: "t", qos: 1, handler: nil, wantErr: ErrSubscribeFailed},
		{name: "not connected", topic: "t", qos: 1, handler: handler, wantErr: ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := client.Subscribe(tt.topic, tt.qos, tt.handler)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Subscribe() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if client.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d after failed subscribes, want 0", client.SubscriptionCount())
	}
}

func TestConnectInvalidBroker(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.Port = 19999

	_, err := Connect(cfg, testToken)
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

// =============================================================================
// Handler Wrapping Tests
// =============================================================================

func TestDispatch_RecoversPanic(t *testing.T) {
	client := newClient(testConfig(), testToken)
	logger := &mockLogger{}
	client.SetLogger(logger)

	client.dispatch(func(string, []byte) error {
		panic("boom")
	}, "devices/x/commands", nil)

	if len(logger.errors) != 1 {
		t.Errorf("logged errors = %d, want 1", len(logger.errors))
	}
}

func TestDispatch_LogsHandlerError(t *testing.T) {
	client := newClient(testConfig(), testToken)
	logger := &mockLogger{}
	client.SetLogger(logger)

	client.dispatch(func(string, []byte) error {
		return errors.New("bad payload")
	}, "devices/x/commands", []byte("{"))

	if len(logger.warns) != 1 {
		t.Errorf("logged warnings = %d, want 1", len(logger.warns))
	}
}

func TestDispatch_NoLogger(t *testing.T) {
	client := newClient(testConfig(), testToken)

	// Must not panic without a logger.
	client.dispatch(func(string, []byte) error {
		panic("boom")
	}, "t", nil)
}

func TestConnectionCallbacks(t *testing.T) {
	client := newClient(testConfig(), testToken)

	var connected, disconnected int
	var lostErr error
	client.SetOnConnect(func() { connected++ })
	client.SetOnDisconnect(func(err error) {
		disconnected++
		lostErr = err
	})

	client.handleConnect()
	client.handleDisconnect(errors.New("network down"))

	if connected != 1 || disconnected != 1 {
		t.Errorf("callbacks = %d connect / %d disconnect, want 1 / 1", connected, disconnected)
	}
	if lostErr == nil || lostErr.Error() != "network down" {
		t.Errorf("disconnect error = %v", lostErr)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after disconnect")
	}
}

func TestReconnects(t *testing.T) {
	client := newClient(testConfig(), testToken)
	if client.Reconnects() != 0 {
		t.Fatalf("Reconnects() = %d before connecting", client.Reconnects())
	}

	client.handleConnect()
	if client.Reconnects() != 0 {
		t.Errorf("Reconnects() = %d after first connect, want 0", client.Reconnects())
	}

	for i := 0; i < 2; i++ {
		client.handleDisconnect(errors.New("wifi dropped"))
		client.handleConnect()
	}
	if client.Reconnects() != 2 {
		t.Errorf("Reconnects() = %d, want 2", client.Reconnects())
	}
}
