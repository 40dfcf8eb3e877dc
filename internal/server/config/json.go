package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/peerlearn/internal/flagx"
	"github.com/dmitrijs2005/peerlearn/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON unmarshalling.
// It uses timex.Duration for interval fields, which allows parsing both
// string values such as "1s" and integer nanoseconds.
//
// This struct is an intermediate DTO (Data Transfer Object) used only for
// reading JSON configuration files. Values that are present are copied into
// the runtime Config; absent ones leave it untouched.
type JsonConfig struct {
	HTTPAddr                         string         `json:"http_addr"`
	GRPCAddr                         string         `json:"grpc_addr"`
	DatabaseDSN                      string         `json:"database_dsn"`
	SecretKey                        string         `json:"secret_key"`
	AccessTokenValidityDuration      timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration     timex.Duration `json:"refresh_token_validity_duration"`
	VerificationCodeValidityDuration timex.Duration `json:"verification_code_validity_duration"`
	AllowedOrigins                   []string       `json:"allowed_origins"`
	LogLevel                         string         `json:"log_level"`
}

// parseJson loads configuration values from the JSON file named by the -c
// or -config flag. No flag, no change.
func parseJson(config *Config, args []string) error {
	jsonConfigFile := flagx.ConfigFileFlag(args)
	if jsonConfigFile == "" {
		return nil
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		return fmt.Errorf("read config %s: %w", jsonConfigFile, err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		return fmt.Errorf("parse config %s: %w", jsonConfigFile, err)
	}

	for dst, v := range map[*string]string{
		&config.HTTPAddr:    c.HTTPAddr,
		&config.GRPCAddr:    c.GRPCAddr,
		&config.DatabaseDSN: c.DatabaseDSN,
		&config.SecretKey:   c.SecretKey,
		&config.LogLevel:    c.LogLevel,
	} {
		if v != "" {
			*dst = v
		}
	}
	for dst, v := range map[*time.Duration]timex.Duration{
		&config.AccessTokenValidityDuration:      c.AccessTokenValidityDuration,
		&config.RefreshTokenValidityDuration:     c.RefreshTokenValidityDuration,
		&config.VerificationCodeValidityDuration: c.VerificationCodeValidityDuration,
	} {
		if v.Duration > 0 {
			*dst = v.Duration
		}
	}
	if len(c.AllowedOrigins) > 0 {
		config.AllowedOrigins = c.AllowedOrigins
	}
	return nil
}
