// Package config loads service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v9"
	"github.com/joho/godotenv"

	"marketplace-pricing/db/clickhouse"
	"marketplace-pricing/db/formstate"
)

type Config struct {
	Port        int      `env:"PORT" envDefault:"3000"`
	LogLevel    string   `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat   string   `env:"LOG_FORMAT" envDefault:"console"`
	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"*"`
	StaticDir   string   `env:"STATIC_DIR"`

	TinyToken      string        `env:"TINY_TOKEN"`
	TinyBaseURL    string        `env:"TINY_BASE_URL" envDefault:"https://api.tiny.com.br/api2"`
	TinyTimeout    time.Duration `env:"TINY_TIMEOUT" envDefault:"15s"`
	TinyMaxRetries uint64        `env:"TINY_MAX_RETRIES" envDefault:"2"`

	ClickHouseHost     string `env:"CLICKHOUSE_HOST"`
	ClickHousePort     int    `env:"CLICKHOUSE_PORT" envDefault:"9000"`
	ClickHouseDatabase string `env:"CLICKHOUSE_DATABASE" envDefault:"precifica"`
	ClickHouseUser     string `env:"CLICKHOUSE_USER" envDefault:"default"`
	ClickHousePassword string `env:"CLICKHOUSE_PASSWORD"`

	FormStateBackend string        `env:"FORM_STATE_BACKEND" envDefault:"memory"`
	FormStateTTL     time.Duration `env:"FORM_STATE_TTL" envDefault:"720h"`
	RedisAddr        string        `env:"REDIS_ADDR"`
	RedisPassword    string        `env:"REDIS_PASSWORD"`
	RedisDB          int           `env:"REDIS_DB" envDefault:"0"`
	PostgresDSN      string        `env:"POSTGRES_DSN"`
}

// Load reads an optional .env file and then the environment. Variables
// already set in the environment win over the file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// Validate checks settings that depend on each other.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT %d", c.Port)
	}

	switch c.FormStateBackend {
	case "", formstate.BackendMemory:
	case formstate.BackendRedis:
		if c.RedisAddr == "" {
			return errors.New("REDIS_ADDR is required for the redis form state backend")
		}
	case formstate.BackendPostgres:
		if c.PostgresDSN == "" {
			return errors.New("POSTGRES_DSN is required for the postgres form state backend")
		}
	default:
		return fmt.Errorf("%w: %q", formstate.ErrUnknownBackend, c.FormStateBackend)
	}

	if c.FormStateTTL < 0 {
		return fmt.Errorf("invalid FORM_STATE_TTL %s", c.FormStateTTL)
	}
	return nil
}

// FormState returns the form state store options.
func (c *Config) FormState() formstate.Options {
	return formstate.Options{
		Backend:       c.FormStateBackend,
		TTL:           c.FormStateTTL,
		RedisAddr:     c.RedisAddr,
		RedisPassword: c.RedisPassword,
		RedisDB:       c.RedisDB,
		PostgresDSN:   c.PostgresDSN,
	}
}

// ClickHouse returns the fee schedule store connection settings.
func (c *Config) ClickHouse() *clickhouse.Config {
	return &clickhouse.Config{
		Host:     c.ClickHouseHost,
		Port:     c.ClickHousePort,
		Database: c.ClickHouseDatabase,
		Username: c.ClickHouseUser,
		Password: c.ClickHousePassword,
	}
}

// ClickHouseEnabled reports whether a fee schedule store is configured.
func (c *Config) ClickHouseEnabled() bool {
	return c.ClickHouseHost != ""
}
