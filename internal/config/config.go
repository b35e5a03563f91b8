// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP API listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// GRPCAddr is the address of the gRPC health server; empty disables it.
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// DatabaseURL is the Postgres DSN. Empty selects the in-memory store (not allowed when APP_ENV=production).
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// MigrateOnStart applies pending migrations before the server starts.
	MigrateOnStart bool `mapstructure:"MIGRATE_ON_START"`

	// DeviceValidityDays is the validity window granted to a record with nothing to inherit (default 30).
	DeviceValidityDays int `mapstructure:"DEVICE_VALIDITY_DAYS"`
	// LoginCooldown is how long a superseded device is blocked from logging back in (e.g. "60s").
	LoginCooldown string `mapstructure:"LOGIN_COOLDOWN"`
	// LoginMaxAttempts bounds login retries after concurrent writes (1-10).
	LoginMaxAttempts int `mapstructure:"LOGIN_MAX_ATTEMPTS"`
	// StoreTimeout bounds each repository call (e.g. "5s").
	StoreTimeout string `mapstructure:"STORE_TIMEOUT"`

	// RedisAddr enables the cross-replica login lock when set (e.g. "localhost:6379").
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`

	// AdminJWTSecret is the HS256 secret for admin bearer tokens. Empty disables the admin routes.
	AdminJWTSecret   string `mapstructure:"ADMIN_JWT_SECRET"`
	AdminJWTIssuer   string `mapstructure:"ADMIN_JWT_ISSUER"`
	AdminJWTAudience string `mapstructure:"ADMIN_JWT_AUDIENCE"`

	// Session events (optional). When Kafka brokers are set, the server publishes session events to Kafka.
	// KafkaBrokers is a comma-separated list of Kafka broker addresses (e.g. "localhost:9092").
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// SessionEventsTopic is the Kafka topic for session events.
	SessionEventsTopic string `mapstructure:"SESSION_EVENTS_TOPIC"`
	// Worker-only: Loki URL for the session events worker to push logs (e.g. http://localhost:3100).
	LokiURL string `mapstructure:"LOKI_URL"`
	// KafkaGroupID is the consumer group ID for the session events worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`

	// OTelEndpoint is the OTLP gRPC collector endpoint; empty disables OTel export.
	OTelEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTelInsecure forces plaintext to the collector even for https endpoints.
	OTelInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`

	// LogLevel is the zap level (debug, info, warn, error).
	LogLevel string `mapstructure:"LOG_LEVEL"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	// Unmarshal only sees keys viper knows about, so every key gets a default.
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("GRPC_ADDR", ":9090")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("MIGRATE_ON_START", false)
	v.SetDefault("DEVICE_VALIDITY_DAYS", 30)
	v.SetDefault("LOGIN_COOLDOWN", "60s")
	v.SetDefault("LOGIN_MAX_ATTEMPTS", 3)
	v.SetDefault("STORE_TIMEOUT", "5s")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("ADMIN_JWT_SECRET", "")
	v.SetDefault("ADMIN_JWT_ISSUER", "device-session-gate")
	v.SetDefault("ADMIN_JWT_AUDIENCE", "device-session-gate-admin")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("SESSION_EVENTS_TOPIC", "device-session-events")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("KAFKA_GROUP_ID", "device-session-events-worker")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("APP_ENV", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.HTTPAddr == "" {
		return errors.New("config: HTTP_ADDR must be set")
	}
	if c.DatabaseURL == "" && c.Env == "production" {
		return errors.New("config: DATABASE_URL must be set when APP_ENV=production")
	}
	if c.DeviceValidityDays < 1 {
		return errors.New("config: DEVICE_VALIDITY_DAYS must be at least 1")
	}
	if c.LoginMaxAttempts < 1 || c.LoginMaxAttempts > 10 {
		return errors.New("config: LOGIN_MAX_ATTEMPTS must be between 1 and 10")
	}
	for key, value := range map[string]string{"LOGIN_COOLDOWN": c.LoginCooldown, "STORE_TIMEOUT": c.StoreTimeout} {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("config: %s: %w", key, err)
		}
		if d <= 0 {
			return fmt.Errorf("config: %s must be positive", key)
		}
	}
	return nil
}

// DeviceValidity returns the default validity window as a duration.
func (c *Config) DeviceValidity() time.Duration {
	return time.Duration(c.DeviceValidityDays) * 24 * time.Hour
}

// Cooldown parses LoginCooldown as a time.Duration. Returns 60s if unset or invalid.
func (c *Config) Cooldown() time.Duration {
	d, err := time.ParseDuration(c.LoginCooldown)
	if err != nil || d <= 0 {
		return 60 * time.Second
	}
	return d
}

// StoreCallTimeout parses StoreTimeout as a time.Duration. Returns 5s if unset or invalid.
func (c *Config) StoreCallTimeout() time.Duration {
	d, err := time.ParseDuration(c.StoreTimeout)
	if err != nil || d <= 0 {
		return 5 * time.Second
	}
	return d
}

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Used to decide if event publishing is enabled (non-empty list) and to create the producer.
func (c *Config) KafkaBrokersList() []string {
	if c == nil || c.KafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.KafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
