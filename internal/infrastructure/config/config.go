package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the court rotation service.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	CourtAPI CourtAPIConfig `yaml:"courtapi"`
	Store    StoreConfig    `yaml:"store"`
	Rotation RotationConfig `yaml:"rotation"`
	API      APIConfig      `yaml:"api"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	History  HistoryConfig  `yaml:"history"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// CourtAPIConfig contains connection settings for the external reservation service.
type CourtAPIConfig struct {
	BaseURL       string `yaml:"base_url"`
	AdminPassword string `yaml:"admin_password"`
	Referer       string `yaml:"referer"`
	Timeout       int    `yaml:"timeout"` // seconds, per request
}

// StoreConfig selects and configures the session state store backend.
//
// Backend is one of:
//   - "redis": direct Redis connection (production default)
//   - "rest":  managed key-value service over HTTPS (Upstash-compatible)
//   - "memory": in-process store, for tests and local development
type StoreConfig struct {
	Backend  string          `yaml:"backend"`
	TTLHours int             `yaml:"ttl_hours"`
	Redis    RedisConfig     `yaml:"redis"`
	REST     RESTStoreConfig `yaml:"rest"`
}

// RedisConfig contains direct-connection Redis settings.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// RESTStoreConfig contains managed key-value service settings.
type RESTStoreConfig struct {
	URL     string `yaml:"url"`
	Token   string `yaml:"token"`
	Timeout int    `yaml:"timeout"` // seconds, per request
}

// RotationConfig contains rotation engine timing settings.
type RotationConfig struct {
	// IntervalMinutes is the rotation window: a court rotates at most once
	// per interval, and the scheduler ticks at this period.
	IntervalMinutes int `yaml:"interval_minutes"`

	// SettleDelayMS is the pause before each rotation reserve call.
	SettleDelayMS int `yaml:"settle_delay_ms"`

	// InitialSettleDelayMS is the pause between the three group reservations
	// made when a session starts.
	InitialSettleDelayMS int `yaml:"initial_settle_delay_ms"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// MQTTConfig contains settings for the optional event notifier.
type MQTTConfig struct {
	Enabled bool             `yaml:"enabled"`
	Broker  MQTTBrokerConfig `yaml:"broker"`
	Auth    MQTTAuthConfig   `yaml:"auth"`
	QoS     int              `yaml:"qos"`
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

// HistoryConfig contains settings for the SQLite rotation audit log.
type HistoryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"` // seconds
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: COURTROTATION_SECTION_KEY
// For example: COURTROTATION_STORE_REDIS_URL, COURTROTATION_API_PORT
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

// Default returns the built-in defaults with environment overrides applied,
// for running without a config file.
func Default() *Config {
	cfg := defaultConfig()
	applyEnvOverrides(cfg)
	return cfg
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		CourtAPI: CourtAPIConfig{
			BaseURL: "https://queuesystem-be.onrender.com/api",
			Referer: "https://can-am.vercel.app/",
			Timeout: 15,
		},
		Store: StoreConfig{
			Backend:  "redis",
			TTLHours: 6,
			Redis: RedisConfig{
				URL: "redis://localhost:6379",
			},
			REST: RESTStoreConfig{
				Timeout: 10,
			},
		},
		Rotation: RotationConfig{
			IntervalMinutes:      30,
			SettleDelayMS:        500,
			InitialSettleDelayMS: 1000,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 60,
				Idle:  60,
			},
		},
		MQTT: MQTTConfig{
			Enabled: false,
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "court-rotation",
			},
			QoS: 1,
		},
		History: HistoryConfig{
			Enabled:     true,
			Path:        "./data/history.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: COURTROTATION_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Court API
	if v := os.Getenv("COURTROTATION_COURTAPI_BASE_URL"); v != "" {
		cfg.CourtAPI.BaseURL = v
	}
	if v := os.Getenv("COURTROTATION_COURTAPI_ADMIN_PASSWORD"); v != "" {
		cfg.CourtAPI.AdminPassword = v
	}

	// Store
	if v := os.Getenv("COURTROTATION_STORE_BACKEND"); v != "" {
		cfg.Store.Backend = v
	}
	if v := os.Getenv("COURTROTATION_STORE_REDIS_URL"); v != "" {
		cfg.Store.Redis.URL = v
	}
	// Plain REDIS_URL is also honoured so managed platforms work out of the box.
	if v := os.Getenv("REDIS_URL"); v != "" && os.Getenv("COURTROTATION_STORE_REDIS_URL") == "" {
		cfg.Store.Redis.URL = v
	}
	if v := os.Getenv("COURTROTATION_STORE_REST_URL"); v != "" {
		cfg.Store.REST.URL = v
	}
	if v := os.Getenv("COURTROTATION_STORE_REST_TOKEN"); v != "" {
		cfg.Store.REST.Token = v
	}

	// API
	if v := os.Getenv("COURTROTATION_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("COURTROTATION_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// MQTT
	if v := os.Getenv("COURTROTATION_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("COURTROTATION_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("COURTROTATION_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// History
	if v := os.Getenv("COURTROTATION_HISTORY_PATH"); v != "" {
		cfg.History.Path = v
	}

	// Logging
	if v := os.Getenv("COURTROTATION_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	// Court API validation
	if c.CourtAPI.BaseURL == "" {
		errs = append(errs, "courtapi.base_url is required")
	}
	if c.CourtAPI.Timeout <= 0 {
		errs = append(errs, "courtapi.timeout must be positive")
	}

	// Store validation
	switch c.Store.Backend {
	case "redis", "rest", "memory":
	default:
		errs = append(errs, "store.backend must be one of: redis, rest, memory")
	}
	if c.Store.Backend == "rest" && c.Store.REST.URL == "" {
		errs = append(errs, "store.rest.url is required when store.backend is rest")
	}
	if c.Store.TTLHours <= 0 {
		errs = append(errs, "store.ttl_hours must be positive")
	}

	// Rotation validation
	if c.Rotation.IntervalMinutes <= 0 {
		errs = append(errs, "rotation.interval_minutes must be positive")
	}
	if c.Rotation.SettleDelayMS < 0 {
		errs = append(errs, "rotation.settle_delay_ms must not be negative")
	}
	if c.Rotation.InitialSettleDelayMS < 0 {
		errs = append(errs, "rotation.initial_settle_delay_ms must not be negative")
	}

	// API validation
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// History validation
	if c.History.Enabled && c.History.Path == "" {
		errs = append(errs, "history.path is required when history is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// CourtAPITimeout returns the external reservation service request timeout.
func (c *Config) CourtAPITimeout() time.Duration {
	return time.Duration(c.CourtAPI.Timeout) * time.Second
}

// StoreTTL returns the session record time-to-live.
func (c *Config) StoreTTL() time.Duration {
	return time.Duration(c.Store.TTLHours) * time.Hour
}

// RESTStoreTimeout returns the managed key-value service request timeout.
func (c *Config) RESTStoreTimeout() time.Duration {
	return time.Duration(c.Store.REST.Timeout) * time.Second
}

// RotationInterval returns the rotation window duration.
func (c *Config) RotationInterval() time.Duration {
	return time.Duration(c.Rotation.IntervalMinutes) * time.Minute
}

// SettleDelay returns the pause applied before each rotation reserve call.
func (c *Config) SettleDelay() time.Duration {
	return time.Duration(c.Rotation.SettleDelayMS) * time.Millisecond
}

// InitialSettleDelay returns the pause between initial group reservations.
func (c *Config) InitialSettleDelay() time.Duration {
	return time.Duration(c.Rotation.InitialSettleDelayMS) * time.Millisecond
}

// ReadTimeout returns the HTTP read timeout as a Duration.
func (c APIConfig) ReadTimeout() time.Duration {
	return time.Duration(c.Timeouts.Read) * time.Second
}

// WriteTimeout returns the HTTP write timeout as a Duration.
func (c APIConfig) WriteTimeout() time.Duration {
	return time.Duration(c.Timeouts.Write) * time.Second
}

// IdleTimeout returns the HTTP idle timeout as a Duration.
func (c APIConfig) IdleTimeout() time.Duration {
	return time.Duration(c.Timeouts.Idle) * time.Second
}
