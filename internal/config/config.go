package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr    string `env:"HTTP_ADDR" envDefault:":8080"`
	MetricsAddr string `env:"METRICS_ADDR" envDefault:":9090"`

	DatabaseURL     string        `env:"DATABASE_URL"`
	DatabaseReadURL string        `env:"DATABASE_READ_URL"`
	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"20"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"30m"`

	PartitionMaxOpenConns int           `env:"PARTITION_MAX_OPEN_CONNS" envDefault:"20"`
	PartitionMaxIdleConns int           `env:"PARTITION_MAX_IDLE_CONNS" envDefault:"10"`
	PartitionResetTimeout time.Duration `env:"PARTITION_RESET_TIMEOUT" envDefault:"5s"`

	PublicPaths  []string `env:"PUBLIC_PATHS" envSeparator:","`
	CORSDevHosts []string `env:"CORS_DEV_HOSTS" envSeparator:"," envDefault:"localhost,127.0.0.1"`
	AdminToken   string   `env:"ADMIN_TOKEN"`

	DefaultKeyTTL time.Duration `env:"API_KEY_DEFAULT_TTL" envDefault:"8760h"`

	UsageFlushInterval time.Duration `env:"USAGE_FLUSH_INTERVAL" envDefault:"2s"`
	UsageMaxPending    int           `env:"USAGE_MAX_PENDING" envDefault:"1024"`

	OutboxInterval  time.Duration `env:"OUTBOX_INTERVAL" envDefault:"2s"`
	OutboxBatchSize int           `env:"OUTBOX_BATCH_SIZE" envDefault:"50"`

	WebhookURL     string        `env:"WEBHOOK_URL"`
	WebhookSecret  string        `env:"WEBHOOK_SECRET"`
	WebhookTimeout time.Duration `env:"WEBHOOK_TIMEOUT" envDefault:"5s"`

	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat   string `env:"LOG_FORMAT" envDefault:"json"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"storefront"`
}

// Load reads an optional .env file and then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	return Parse()
}

// Parse reads the process environment only.
func Parse() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch strings.ToLower(c.LogFormat) {
	case "json", "console":
	default:
		return fmt.Errorf("invalid LOG_FORMAT %q: want json or console", c.LogFormat)
	}
	if c.UsageMaxPending <= 0 {
		return fmt.Errorf("USAGE_MAX_PENDING must be positive")
	}
	if c.OutboxBatchSize <= 0 {
		return fmt.Errorf("OUTBOX_BATCH_SIZE must be positive")
	}
	if c.DefaultKeyTTL < 0 {
		return fmt.Errorf("API_KEY_DEFAULT_TTL must not be negative")
	}
	return nil
}

// RequireDatabase reports whether a writer DSN is configured.
func (c Config) RequireDatabase() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	return nil
}
