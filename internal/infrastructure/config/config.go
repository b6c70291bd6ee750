package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Runtime   RuntimeConfig
	Server    ServerConfig
	Keystore  KeystoreConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// RuntimeConfig holds the blockchain runtime process configuration.
type RuntimeConfig struct {
	// Address is a unix socket path ("unix:///...") or host:port
	Address         string        `envconfig:"RUNTIME_ADDR" default:"unix:///tmp/walletbridge-runtime.sock"`
	AppsDir         string        `envconfig:"APPS_DIR" default:"./apps"`
	CallbackTimeout time.Duration `envconfig:"CALLBACK_TIMEOUT" default:"30s"`
	ScriptTimeout   time.Duration `envconfig:"SCRIPT_TIMEOUT" default:"5s"`
	DialTimeout     time.Duration `envconfig:"RUNTIME_DIAL_TIMEOUT" default:"5s"`
	// MetricsAddr serves the runtime's /metrics when set
	MetricsAddr string `envconfig:"RUNTIME_METRICS_ADDR" default:""`
}

// ServerConfig holds HTTP server configuration for the browser adapter.
type ServerConfig struct {
	Port           string   `envconfig:"PORT" default:"8000"`
	Host           string   `envconfig:"HOST" default:"127.0.0.1"`
	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

// KeystoreConfig holds keystore and unlock secret configuration.
type KeystoreConfig struct {
	Light            bool   `envconfig:"KEYSTORE_LIGHT" default:"false"`
	UnlockSecretPath string `envconfig:"UNLOCK_SECRET_PATH" default:"./unlock.json"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"20"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"40"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Runtime: RuntimeConfig{
			Address:         "unix:///tmp/walletbridge-runtime.sock",
			AppsDir:         "./apps",
			CallbackTimeout: 30 * time.Second,
			ScriptTimeout:   5 * time.Second,
			DialTimeout:     5 * time.Second,
		},
		Server: ServerConfig{
			Port:           "8000",
			Host:           "127.0.0.1",
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		Keystore: KeystoreConfig{
			Light:            false,
			UnlockSecretPath: "./unlock.json",
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 20,
			Burst:             40,
			Enabled:           true,
		},
	}
}
