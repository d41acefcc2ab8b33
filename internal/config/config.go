package config

import (
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"

	"github.com/example/cscsync/internal/merge"
)

// LogConfig controls the zap logger.
type LogConfig struct {
	Level string `env:"LOG_LEVEL" envDefault:"info"`
	JSON  bool   `env:"LOG_JSON" envDefault:"false"`
}

// ServerConfig is the configuration of the sync server.
type ServerConfig struct {
	Addr           string `env:"CSCS_ADDR" envDefault:":8080"`
	DBType         string `env:"DB_TYPE" envDefault:"sqlite"`
	DBDSN          string `env:"DB_DSN" envDefault:"data/cscs.db"`
	IdentityHeader string `env:"CSCS_IDENTITY_HEADER" envDefault:"X-Auth-Request-Email"`
	Timezone       string `env:"CSCS_TIMEZONE" envDefault:"Asia/Tokyo"`
	MaxPolicy      string `env:"CSCS_MAX_POLICY" envDefault:"replace"`
	// Per-identity token bucket on the merge endpoint. Zero disables limiting.
	MergeRate        float64       `env:"CSCS_MERGE_RATE" envDefault:"5"`
	MergeBurst       int           `env:"CSCS_MERGE_BURST" envDefault:"20"`
	ReceiptRetention time.Duration `env:"CSCS_RECEIPT_RETENTION" envDefault:"720h"`
	TelegramToken    string        `env:"TELEGRAM_BOT_TOKEN"`
	DigestChatID     int64         `env:"CSCS_DIGEST_CHAT_ID"`
	DigestHour       int           `env:"CSCS_DIGEST_HOUR" envDefault:"21"`
	Log              LogConfig
}

// ClientConfig is the configuration of the client-side engine and CLI.
type ClientConfig struct {
	ServerURL      string        `env:"CSCS_SERVER_URL" envDefault:"http://localhost:8080"`
	Identity       string        `env:"CSCS_IDENTITY"`
	IdentityHeader string        `env:"CSCS_IDENTITY_HEADER" envDefault:"X-Auth-Request-Email"`
	LocalDB        string        `env:"CSCS_LOCAL_DB" envDefault:"data/local.db"`
	Timezone       string        `env:"CSCS_TIMEZONE" envDefault:"Asia/Tokyo"`
	HTTPTimeout    time.Duration `env:"CSCS_HTTP_TIMEOUT" envDefault:"10s"`
	Log            LogConfig
}

// loadDotEnv reads .env when present. Variables already set in the
// environment win over the file.
func loadDotEnv() error {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "failed to load .env")
	}
	return nil
}

// LoadServer reads the server configuration from .env and the environment.
func LoadServer() (*ServerConfig, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}
	cfg := &ServerConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse server config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks enumerated settings.
func (c *ServerConfig) Validate() error {
	switch c.DBType {
	case "sqlite", "postgres":
	default:
		return errors.Newf("unsupported DB_TYPE %q", c.DBType)
	}
	if _, err := c.Policy(); err != nil {
		return err
	}
	if c.IdentityHeader == "" {
		return errors.New("CSCS_IDENTITY_HEADER must not be empty")
	}
	if c.DigestHour < 0 || c.DigestHour > 23 {
		return errors.Newf("CSCS_DIGEST_HOUR out of range: %d", c.DigestHour)
	}
	_, err := c.Location()
	return err
}

// Policy resolves CSCS_MAX_POLICY.
func (c *ServerConfig) Policy() (merge.Policy, error) {
	p, err := merge.ParsePolicy(c.MaxPolicy)
	if err != nil {
		return "", errors.WithHint(
			errors.Wrap(err, "unsupported CSCS_MAX_POLICY"),
			"use \"replace\" or \"monotonic\"",
		)
	}
	return p, nil
}

// Location resolves the configured timezone.
func (c *ServerConfig) Location() (*time.Location, error) {
	return loadLocation(c.Timezone)
}

// LoadClient reads the client configuration from .env and the environment.
func LoadClient() (*ClientConfig, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}
	cfg := &ClientConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse client config")
	}
	if _, err := cfg.Location(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Location resolves the configured timezone.
func (c *ClientConfig) Location() (*time.Location, error) {
	return loadLocation(c.Timezone)
}

func loadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid timezone %q", name)
	}
	return loc, nil
}
