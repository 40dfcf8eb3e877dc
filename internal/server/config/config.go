// Package config handles configuration for the development server,
// including defaults, .env/environment overlay, JSON overlay, and
// command-line flags.
package config

import (
	"time"
)

// Config holds runtime settings for the PeerLearn development server.
//
// Fields:
//   - HTTPAddr: bind address of the /auth HTTP API.
//   - GRPCAddr: bind address of the gRPC health endpoint.
//   - DatabaseDSN: PostgreSQL DSN (pgx). Empty keeps users in memory.
//   - SecretKey: HMAC secret for signing JWTs (HS256). Do not use the default in prod.
//   - AccessTokenValidityDuration / RefreshTokenValidityDuration: token lifetimes.
//   - VerificationCodeValidityDuration: lifetime of an emailed sign-up code.
//   - AllowedOrigins: CORS origins.
//   - LogLevel: debug, info, warn or error.
type Config struct {
	HTTPAddr                         string
	GRPCAddr                         string
	DatabaseDSN                      string
	SecretKey                        string
	AccessTokenValidityDuration      time.Duration
	RefreshTokenValidityDuration     time.Duration
	VerificationCodeValidityDuration time.Duration
	AllowedOrigins                   []string
	LogLevel                         string
}

// LoadDefaults populates Config with development defaults.
// NOTE: These values are insecure for production and should be overridden.
func (c *Config) LoadDefaults() {
	c.HTTPAddr = ":8000"
	c.GRPCAddr = ":50051"
	c.DatabaseDSN = ""
	c.SecretKey = "your-secret-key-change-this-in-production"
	c.AccessTokenValidityDuration = 30 * time.Minute
	c.RefreshTokenValidityDuration = 7 * 24 * time.Hour
	c.VerificationCodeValidityDuration = 10 * time.Minute
	c.AllowedOrigins = []string{"*"}
	c.LogLevel = "info"
}

// LoadConfig builds a Config by applying defaults, then the .env file and
// process environment, then an optional JSON file and finally command-line
// flags.
func LoadConfig(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseEnv(cfg, envFileFlag(args)); err != nil {
		return nil, err
	}
	if err := parseJson(cfg, args); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	return cfg, nil
}
