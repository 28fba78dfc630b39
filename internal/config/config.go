package config

import (
	"fmt"

	"github.com/caarlos0/env/v9"

	"github.com/keyauthd/keyauthd/internal/domain"
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Admin    AdminConfig
	Keys     KeyConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	Port int    `env:"SERVER_PORT" envDefault:"8080"`
}

// DatabaseConfig holds storage backend configuration.
//
// The "memory" driver keeps all keys in process memory: every key is lost
// on restart. That is an explicit deployment choice, not a failure mode;
// use sqlite3 or postgres for durability.
type DatabaseConfig struct {
	Driver string `env:"DB_DRIVER" envDefault:"memory"`
	DSN    string `env:"DB_DSN" envDefault:"data/keyauthd.db"`
}

// AdminConfig holds the shared admin credential.
type AdminConfig struct {
	Secret string `env:"ADMIN_SECRET"`
}

// KeyConfig selects the key policy mode.
type KeyConfig struct {
	Mode domain.PolicyMode `env:"KEY_MODE" envDefault:"fixed"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(&cfg.Server); err != nil {
		return nil, fmt.Errorf("parsing server config: %w", err)
	}
	if err := env.Parse(&cfg.Database); err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}
	if err := env.Parse(&cfg.Admin); err != nil {
		return nil, fmt.Errorf("parsing admin config: %w", err)
	}
	if err := env.Parse(&cfg.Keys); err != nil {
		return nil, fmt.Errorf("parsing key config: %w", err)
	}

	return cfg, nil
}

// Addr returns the server address in host:port format.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Admin.Secret == "" {
		return fmt.Errorf("ADMIN_SECRET is required")
	}
	if len(c.Admin.Secret) < 16 {
		return fmt.Errorf("ADMIN_SECRET must be at least 16 characters")
	}
	if !c.Keys.Mode.Valid() {
		return fmt.Errorf("KEY_MODE must be %q or %q", domain.PolicyFixed, domain.PolicyDevice)
	}
	switch c.Database.Driver {
	case "memory":
	case "sqlite3", "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("DB_DSN is required for driver %q", c.Database.Driver)
		}
	default:
		return fmt.Errorf("unknown DB_DRIVER %q", c.Database.Driver)
	}
	return nil
}
