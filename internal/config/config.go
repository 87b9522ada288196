// Package config loads orchestrator process configuration from environment
// variables (spec.md §6.4), following the pack's caarlos0/env struct-tag
// pattern rather than flags or a config file parser.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/sandboxforge/orchestrator/internal/sandbox"
)

// Config holds every recognized orchestrator process setting.
type Config struct {
	Host string `env:"ORCHESTRATOR_HOST" envDefault:"0.0.0.0"`
	Port int    `env:"ORCHESTRATOR_PORT" envDefault:"8080"`

	APIKey           string `env:"ORCHESTRATOR_API_KEY"`
	APIKeyHeaderName string `env:"ORCHESTRATOR_API_KEY_HEADER_NAME" envDefault:"X-API-Key"`

	SandboxImageRef string `env:"SANDBOX_IMAGE_REF" envDefault:"sandboxforge/base:latest"`

	ObjectStoreBucket string `env:"OBJECT_STORE_BUCKET" envDefault:"sandboxforge"`
	ObjectStoreRegion string `env:"OBJECT_STORE_REGION" envDefault:"us-east-1"`

	SandboxStoreBackend string `env:"SANDBOX_STORE_BACKEND" envDefault:"memory"`
	DatabaseURL         string `env:"DATABASE_URL"`

	DefaultTTLSeconds         int64 `env:"DEFAULT_TTL_SECONDS" envDefault:"7200"`
	ExecDefaultTimeoutSeconds int64 `env:"EXEC_DEFAULT_TIMEOUT_SECONDS" envDefault:"300"`
	ShutdownTimeoutSeconds    int64 `env:"SHUTDOWN_TIMEOUT_SECONDS" envDefault:"30"`
	ReconcileIntervalSeconds  int64 `env:"RECONCILE_INTERVAL_SECONDS" envDefault:"45"`
	ExpiryIntervalSeconds     int64 `env:"EXPIRY_INTERVAL_SECONDS" envDefault:"60"`
	ReadinessDeadlineSeconds  int64 `env:"READINESS_DEADLINE_SECONDS" envDefault:"60"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

// Load reads and validates configuration from the process environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config from env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints that struct tags cannot express.
func (c *Config) Validate() error {
	switch c.SandboxStoreBackend {
	case "memory":
	case "postgres":
		if c.DatabaseURL == "" {
			return sandbox.New(sandbox.KindValidation, "database_url is required when sandbox_store_backend=postgres")
		}
	default:
		return sandbox.New(sandbox.KindValidation, "sandbox_store_backend must be one of memory, postgres")
	}

	switch c.LogFormat {
	case "json", "text":
	default:
		return sandbox.New(sandbox.KindValidation, "log_format must be one of json, text")
	}
	return nil
}

// ListenAddr returns the address the HTTP server should bind.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c *Config) DefaultTTL() time.Duration {
	return time.Duration(c.DefaultTTLSeconds) * time.Second
}

func (c *Config) ExecDefaultTimeout() time.Duration {
	return time.Duration(c.ExecDefaultTimeoutSeconds) * time.Second
}

func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}

func (c *Config) ReconcileInterval() time.Duration {
	return time.Duration(c.ReconcileIntervalSeconds) * time.Second
}

func (c *Config) ExpiryInterval() time.Duration {
	return time.Duration(c.ExpiryIntervalSeconds) * time.Second
}

func (c *Config) ReadinessDeadline() time.Duration {
	return time.Duration(c.ReadinessDeadlineSeconds) * time.Second
}
