package config

import (
	"fmt"
	"time"

	"github.com/dmitrijs2005/peerlearn/internal/validation"
)

const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

// Config holds runtime settings for the PeerLearn client.
//
// Fields:
//   - ServerURL: base URL of the HTTP API.
//   - GRPCAddr: host:port of the gRPC endpoint used for the session probe.
//   - RequestTimeout / BulkTimeout: per-request budget of the interactive
//     and bulk pipelines.
//   - RefreshTimeout: budget of one token refresh.
//   - StoreDriver: where credentials persist (memory, sqlite, redis).
//   - StorePath: SQLite database file.
//   - RedisAddr / RedisKeyPrefix: Redis location and key namespace.
//   - OnlineCheckInterval: how often the gRPC endpoint is probed.
//   - LogLevel: debug, info, warn or error.
type Config struct {
	ServerURL      string        `validate:"required,url"`
	GRPCAddr       string        `validate:"required,hostname_port"`
	RequestTimeout time.Duration `validate:"gt=0"`
	BulkTimeout    time.Duration `validate:"gt=0"`
	RefreshTimeout time.Duration `validate:"gt=0"`
	StoreDriver    string        `validate:"oneof=memory sqlite redis"`
	StorePath      string        `validate:"required_if=StoreDriver sqlite"`
	RedisAddr      string        `validate:"required_if=StoreDriver redis"`
	RedisKeyPrefix string

	OnlineCheckInterval time.Duration `validate:"gt=0"`

	LogLevel string `validate:"oneof=debug info warn error"`
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://127.0.0.1:8000"
	c.GRPCAddr = "127.0.0.1:50051"
	c.RequestTimeout = 30 * time.Second
	c.BulkTimeout = 5 * time.Minute
	c.RefreshTimeout = 15 * time.Second
	c.StoreDriver = DriverSQLite
	c.StorePath = "session.db"
	c.RedisAddr = "127.0.0.1:6379"
	c.RedisKeyPrefix = "peerlearn:session:"
	c.OnlineCheckInterval = 30 * time.Second
	c.LogLevel = "info"
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if err := validation.Struct(c); err != nil {
		if fields := validation.Fields(err); len(fields) > 0 {
			return fmt.Errorf("invalid config: %s", validation.Message(fields))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// LoadConfig applies defaults, then the JSON file named by -c/-config (if
// any), then flags. Later sources take precedence.
func LoadConfig(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseJson(cfg, args); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
