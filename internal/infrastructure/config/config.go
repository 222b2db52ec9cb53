package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the configuration file used when C4R_CONFIG is not set.
const DefaultPath = "configs/config.yaml"

// Transport kinds.
const (
	TransportMQTT = "mqtt"
	TransportHTTP = "http"
)

// Config is everything the daemon reads at startup: config.yaml, with
// C4R_* environment variables on top.
type Config struct {
	Device      DeviceConfig       `yaml:"device"`
	Transport   TransportConfig    `yaml:"transport"`
	MQTT        MQTTConfig         `yaml:"mqtt"`
	HTTP        HTTPConfig         `yaml:"http"`
	Intervals   IntervalsConfig    `yaml:"intervals"`
	Variables   []VariableConfig   `yaml:"variables"`
	Diagnostics []DiagnosticConfig `yaml:"diagnostics"`
	Database    DatabaseConfig     `yaml:"database"`
	Spool       SpoolConfig        `yaml:"spool"`
	InfluxDB    InfluxDBConfig     `yaml:"influxdb"`
	API         APIConfig          `yaml:"api"`
	Logging     LoggingConfig      `yaml:"logging"`
}

// DeviceConfig identifies the device on the cloud side.
type DeviceConfig struct {
	Token string `yaml:"token"`
}

// TransportConfig selects the cloud link.
type TransportConfig struct {
	// Kind is "mqtt" or "http".
	Kind string `yaml:"kind"`

	// ConnectAttempts bounds the initial connection attempts.
	ConnectAttempts int `yaml:"connect_attempts"`

	// RetryInterval is the first delay between connection attempts (in seconds).
	RetryInterval int `yaml:"retry_interval"`

	// MaxRetryInterval caps the backoff between attempts (in seconds).
	MaxRetryInterval int `yaml:"max_retry_interval"`
}

// MQTTConfig is the cloud4rpi broker link.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	KeepAlive int                 `yaml:"keep_alive"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig locates the broker. ClientID defaults to the device token.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig holds optional broker credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig bounds the reconnect backoff, in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// HTTPConfig contains settings for the HTTP transport.
type HTTPConfig struct {
	BaseURL string `yaml:"base_url"`
	Timeout int    `yaml:"timeout"`
}

// IntervalsConfig holds the driver loop cadence (in seconds).
type IntervalsConfig struct {
	Data        int `yaml:"data"`
	Diagnostics int `yaml:"diagnostics"`
	Poll        int `yaml:"poll"`
}

// VariableConfig declares one device variable.
type VariableConfig struct {
	Name  string     `yaml:"name"`
	Title string     `yaml:"title"`
	Type  string     `yaml:"type"`
	Value any        `yaml:"value"`
	Bind  BindConfig `yaml:"bind"`
}

// DiagnosticConfig declares one diagnostic entry.
type DiagnosticConfig struct {
	Name string     `yaml:"name"`
	Bind BindConfig `yaml:"bind"`
}

// BindConfig describes where a variable or diagnostic gets its value.
//
// Only the fields relevant to Kind are read:
//
//	constant  value
//	state     value (initial)
//	gpio_in   pin, pull, active_low
//	gpio_out  pin, active_low
//	file      path, scale
//	command   command, scale, timeout
//	sysinfo   source (hostname, ip_address, os_name, uptime, cpu_temperature)
type BindConfig struct {
	Kind      string  `yaml:"kind"`
	Value     any     `yaml:"value"`
	Pin       int     `yaml:"pin"`
	Pull      string  `yaml:"pull"`
	ActiveLow bool    `yaml:"active_low"`
	Path      string  `yaml:"path"`
	Scale     float64 `yaml:"scale"`
	Command   string  `yaml:"command"`
	Timeout   int     `yaml:"timeout"`
	Source    string  `yaml:"source"`
}

// DatabaseConfig is the local SQLite file backing the spool.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// SpoolConfig contains offline spool settings.
type SpoolConfig struct {
	Enabled     bool `yaml:"enabled"`
	MaxMessages int  `yaml:"max_messages"`
}

// InfluxDBConfig configures the optional telemetry mirror.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// APIConfig contains local HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	WS       WebSocketConfig  `yaml:"websocket"`
}

// APITimeoutConfig holds the HTTP server timeouts in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains settings for the live feed at /api/v1/ws.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// LoggingConfig selects level, format and destination of the log.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"` // stdout, stderr or file
	File   string `yaml:"file"`   // path used when output is "file"
}

// envOverrides lists the environment variables that take precedence over
// file values. Unset variables leave the file value untouched.
type envOverrides struct {
	DeviceToken   string `env:"C4R_DEVICE_TOKEN"`
	MQTTHost      string `env:"C4R_MQTT_HOST"`
	MQTTUsername  string `env:"C4R_MQTT_USERNAME"`
	MQTTPassword  string `env:"C4R_MQTT_PASSWORD"`
	HTTPBaseURL   string `env:"C4R_HTTP_BASE_URL"`
	InfluxDBToken string `env:"C4R_INFLUXDB_TOKEN"`
	DatabasePath  string `env:"C4R_DATABASE_PATH"`
	LogLevel      string `env:"C4R_LOG_LEVEL"`
}

type pathEnv struct {
	Path string `env:"C4R_CONFIG" envDefault:"configs/config.yaml"`
}

// Path returns the configuration file path from C4R_CONFIG, or DefaultPath.
func Path() string {
	var p pathEnv
	if err := env.Parse(&p); err != nil || p.Path == "" {
		return DefaultPath
	}
	return p.Path
}

// Load starts from Default, overlays the YAML file at path, then the C4R_*
// environment (C4R_DEVICE_TOKEN, C4R_MQTT_HOST, ...), and validates the
// result.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// FromEnv builds a configuration from defaults and environment variables only.
// It is meant for code-declared daemons that have no config file.
func FromEnv() (*Config, error) {
	cfg := Default()
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Transport: TransportConfig{
			Kind:             TransportMQTT,
			ConnectAttempts:  10,
			RetryInterval:    5,
			MaxRetryInterval: 60,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host: "mq.cloud4rpi.io",
				Port: 1883,
			},
			QoS:       1,
			KeepAlive: 600,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		HTTP: HTTPConfig{
			BaseURL: "https://cloud.cloud4rpi.io/api",
			Timeout: 30,
		},
		Intervals: IntervalsConfig{
			Data:        60,
			Diagnostics: 3600,
			Poll:        1,
		},
		Database: DatabaseConfig{
			Path:        "./data/cloud4rpi.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Spool: SpoolConfig{
			MaxMessages: 10000,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8420,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
			WS: WebSocketConfig{
				MaxMessageSize: 8192,
				PingInterval:   30,
				PongTimeout:    10,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides copies set C4R_* variables over file values.
func applyEnvOverrides(cfg *Config) error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("parsing environment: %w", err)
	}

	if o.DeviceToken != "" {
		cfg.Device.Token = o.DeviceToken
	}
	if o.MQTTHost != "" {
		cfg.MQTT.Broker.Host = o.MQTTHost
	}
	if o.MQTTUsername != "" {
		cfg.MQTT.Auth.Username = o.MQTTUsername
	}
	if o.MQTTPassword != "" {
		cfg.MQTT.Auth.Password = o.MQTTPassword
	}
	if o.HTTPBaseURL != "" {
		cfg.HTTP.BaseURL = o.HTTPBaseURL
	}
	if o.InfluxDBToken != "" {
		cfg.InfluxDB.Token = o.InfluxDBToken
	}
	if o.DatabasePath != "" {
		cfg.Database.Path = o.DatabasePath
	}
	if o.LogLevel != "" {
		cfg.Logging.Level = o.LogLevel
	}
	return nil
}

// Validate checks the configuration for errors.
//
// All problems are collected and reported together.
func (c *Config) Validate() error {
	var errs []string

	if c.Device.Token == "" {
		errs = append(errs, "device.token is required (set C4R_DEVICE_TOKEN environment variable)")
	}

	switch c.Transport.Kind {
	case TransportMQTT:
		if c.MQTT.Broker.Host == "" {
			errs = append(errs, "mqtt.broker.host is required")
		}
		if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
			errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
		}
	case TransportHTTP:
		if c.HTTP.BaseURL == "" {
			errs = append(errs, "http.base_url is required")
		}
	default:
		errs = append(errs, fmt.Sprintf("transport.kind must be %q or %q", TransportMQTT, TransportHTTP))
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.Intervals.Data < 1 {
		errs = append(errs, "intervals.data must be at least 1 second")
	}
	if c.Intervals.Diagnostics < 1 {
		errs = append(errs, "intervals.diagnostics must be at least 1 second")
	}
	if c.Intervals.Poll < 1 {
		errs = append(errs, "intervals.poll must be at least 1 second")
	}

	seen := make(map[string]struct{}, len(c.Variables))
	for i, v := range c.Variables {
		if v.Name == "" {
			errs = append(errs, fmt.Sprintf("variables[%d].name is required", i))
			continue
		}
		if _, dup := seen[v.Name]; dup {
			errs = append(errs, fmt.Sprintf("variables[%d].name %q is duplicated", i, v.Name))
		}
		seen[v.Name] = struct{}{}
	}

	if c.Spool.Enabled {
		if c.Database.Path == "" {
			errs = append(errs, "database.path is required when spool is enabled")
		}
		if c.Spool.MaxMessages < 1 {
			errs = append(errs, "spool.max_messages must be positive")
		}
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if strings.EqualFold(c.Logging.Output, "file") && c.Logging.File == "" {
		errs = append(errs, "logging.file is required when logging.output is file")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// DataInterval returns the data publishing interval as a Duration.
func (c *Config) DataInterval() time.Duration {
	return time.Duration(c.Intervals.Data) * time.Second
}

// DiagnosticsInterval returns the diagnostics publishing interval as a Duration.
func (c *Config) DiagnosticsInterval() time.Duration {
	return time.Duration(c.Intervals.Diagnostics) * time.Second
}

// PollInterval returns the driver loop tick as a Duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Intervals.Poll) * time.Second
}

// ReadDuration, WriteDuration and IdleDuration convert the configured
// seconds for http.Server.
func (t APITimeoutConfig) ReadDuration() time.Duration { return time.Duration(t.Read) * time.Second }
func (t APITimeoutConfig) WriteDuration() time.Duration { return time.Duration(t.Write) * time.Second }
func (t APITimeoutConfig) IdleDuration() time.Duration { return time.Duration(t.Idle) * time.Second }
