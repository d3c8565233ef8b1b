package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the sequencer.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Events    EventsConfig    `yaml:"events"`
	Sequencer SequencerConfig `yaml:"sequencer"`
	Database  DatabaseConfig  `yaml:"database"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// SiteConfig identifies the installation.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// Event bus backends.
const (
	BusMQTT   = "mqtt"
	BusMemory = "memory"
)

// EventsConfig selects and tunes the event bus.
type EventsConfig struct {
	// Bus is the backend: "mqtt" (default) or "memory" for standalone runs.
	Bus string `yaml:"bus"`

	// TopicPrefix is the MQTT topic root for event keys.
	// Events are published on {prefix}/{source}/{name}.
	TopicPrefix string `yaml:"topic_prefix"`

	// ReadyTimeout bounds how long a push-mode variable waits for its
	// subscription to be acknowledged.
	ReadyTimeout time.Duration `yaml:"ready_timeout"`
}

// Poll failure policies.
const (
	PollFailureContinue = "continue"
	PollFailureStop     = "stop"
)

// SequencerConfig contains process variable settings.
type SequencerConfig struct {
	// PollFailurePolicy decides what a poll-mode variable does when a
	// scheduled fetch fails: "continue" (report and keep polling) or
	// "stop" (report and disarm the timer).
	PollFailurePolicy string `yaml:"poll_failure_policy"`

	// Variables declares process variables instantiated at startup.
	Variables []VariableConfig `yaml:"variables"`
}

// VariableConfig declares one process variable.
type VariableConfig struct {
	// Name is a unique label used in logs and history.
	Name string `yaml:"name"`

	// EventKey is the bound event stream, "source.name" (e.g. "esw.test.temp").
	EventKey string `yaml:"event_key"`

	// Param is the parameter name inside the event.
	Param string `yaml:"param"`

	// Type is the parameter type: int, long, double, string, boolean.
	Type string `yaml:"type"`

	// Initial is the initial value, parsed according to Type.
	Initial string `yaml:"initial"`

	// PollInterval selects poll mode when positive; zero selects push mode.
	PollInterval time.Duration `yaml:"poll_interval"`
}

// DatabaseConfig contains SQLite settings for refresh history.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`

	// Retention is how long refresh history is kept. Zero keeps everything.
	Retention time.Duration `yaml:"retention"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// MetricsConfig toggles OpenTelemetry instrumentation.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GRAYLOGIC_SECTION_KEY
// For example: GRAYLOGIC_MQTT_HOST, GRAYLOGIC_DATABASE_PATH
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "site-001",
			Name: "Gray Logic Sequencer",
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "graylogic-sequencer",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Events: EventsConfig{
			Bus:          BusMQTT,
			TopicPrefix:  "graylogic/event",
			ReadyTimeout: 10 * time.Second,
		},
		Sequencer: SequencerConfig{
			PollFailurePolicy: PollFailureContinue,
		},
		Database: DatabaseConfig{
			Path:        "./data/sequencer.db",
			WALMode:     true,
			BusyTimeout: 5,
			Retention:   7 * 24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GRAYLOGIC_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}
	if v := os.Getenv("GRAYLOGIC_EVENTS_BUS"); v != "" {
		cfg.Events.Bus = v
	}
	if v := os.Getenv("GRAYLOGIC_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("GRAYLOGIC_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
	if v := os.Getenv("GRAYLOGIC_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// validVariableTypes lists the parameter types a declared variable may use.
var validVariableTypes = map[string]bool{
	"int": true, "long": true, "double": true, "string": true, "boolean": true,
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	switch c.Events.Bus {
	case BusMQTT:
		if c.Events.TopicPrefix == "" {
			errs = append(errs, "events.topic_prefix is required for the mqtt bus")
		}
	case BusMemory:
	default:
		errs = append(errs, fmt.Sprintf("events.bus must be %q or %q", BusMQTT, BusMemory))
	}
	if c.Events.ReadyTimeout < 0 {
		errs = append(errs, "events.ready_timeout must not be negative")
	}

	switch c.Sequencer.PollFailurePolicy {
	case PollFailureContinue, PollFailureStop:
	default:
		errs = append(errs, fmt.Sprintf("sequencer.poll_failure_policy must be %q or %q", PollFailureContinue, PollFailureStop))
	}

	errs = append(errs, c.validateVariables()...)

	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when database is enabled")
	}
	if c.Database.Retention < 0 {
		errs = append(errs, "database.retention must not be negative")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (c *Config) validateVariables() []string {
	var errs []string
	seen := make(map[string]bool)

	for i, v := range c.Sequencer.Variables {
		field := fmt.Sprintf("sequencer.variables[%d]", i)
		if v.Name == "" {
			errs = append(errs, field+".name is required")
		} else if seen[v.Name] {
			errs = append(errs, fmt.Sprintf("%s.name %q is duplicated", field, v.Name))
		}
		seen[v.Name] = true

		if !strings.Contains(v.EventKey, ".") {
			errs = append(errs, field+".event_key must look like source.name")
		}
		if v.Param == "" {
			errs = append(errs, field+".param is required")
		}
		if !validVariableTypes[v.Type] {
			errs = append(errs, fmt.Sprintf("%s.type %q is not supported", field, v.Type))
		}
		if v.PollInterval < 0 {
			errs = append(errs, field+".poll_interval must not be negative")
		}
	}

	return errs
}

// MQTTBrokerAddress returns the broker "host:port" for logs.
func (c *Config) MQTTBrokerAddress() string {
	return fmt.Sprintf("%s:%d", c.MQTT.Broker.Host, c.MQTT.Broker.Port)
}
