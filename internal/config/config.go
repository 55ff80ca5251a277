package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/sheikh-saqib/token-ledger/internal/logger"
	"github.com/sheikh-saqib/token-ledger/internal/models"
)

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverBadger   = "badger"
)

type Config struct {
	HTTPAddr string `env:"HTTP_ADDR,default=:8080"`

	StoreDriver string `env:"STORE_DRIVER,default=memory"` // memory / postgres / badger
	DatabaseURL string `env:"DATABASE_URL"`
	BadgerDir   string `env:"BADGER_DIR,default=./data/badger"`

	KafkaBrokers string `env:"KAFKA_BROKERS"` // comma separated, empty disables events
	KafkaTopic   string `env:"KAFKA_TOPIC,default=transaction_completed"`

	SessionSecret string        `env:"SESSION_SECRET"`
	SessionTTL    time.Duration `env:"SESSION_TTL,default=24h"`
	CORSOrigins   string        `env:"CORS_ORIGINS,default=http://localhost:3000"` // comma separated

	AirdropTokens string `env:"AIRDROP_TOKENS,default=100"`

	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=json"`
}

// Load reads an optional .env file and then decodes the environment.
// Variables already set in the environment win over the file.
func Load(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil && len(files) > 0 {
		return nil, fmt.Errorf("load env files: %w", err)
	}

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.StoreDriver {
	case DriverMemory, DriverBadger:
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return errors.New("config: DATABASE_URL is required for the postgres driver")
		}
	default:
		return fmt.Errorf("config: unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.SessionSecret == "" {
		return errors.New("config: SESSION_SECRET is required")
	}
	if _, err := c.AirdropZennies(); err != nil {
		return fmt.Errorf("config: AIRDROP_TOKENS: %w", err)
	}
	return nil
}

// AirdropZennies is the one-time grant converted to ledger units.
func (c *Config) AirdropZennies() (int64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(c.AirdropTokens))
	if err != nil {
		return 0, models.ErrInvalidAmount
	}
	return models.ParseTokens(d)
}

func (c *Config) LogOptions() logger.Options {
	return logger.Options{Level: c.LogLevel, Format: c.LogFormat}
}

func (c *Config) Brokers() []string {
	return splitList(c.KafkaBrokers)
}

func (c *Config) AllowedOrigins() []string {
	return splitList(c.CORSOrigins)
}

// splitList splits a comma separated value, dropping blanks left by trailing commas.
func splitList(s string) []string {
	items := make([]string, 0)
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
