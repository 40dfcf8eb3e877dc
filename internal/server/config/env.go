package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/dmitrijs2005/peerlearn/internal/flagx"
)

// Environment variable names.
const (
	EnvSecretKey         = "SECRET_KEY"
	EnvAccessExpireMin   = "ACCESS_TOKEN_EXPIRE_MINUTES"
	EnvRefreshExpireDays = "REFRESH_TOKEN_EXPIRE_DAYS"
	EnvDatabaseURL       = "DATABASE_URL"
	EnvCORSOrigins       = "CORS_ORIGINS"
	defaultEnvFile       = ".env"
)

// envFileFlag returns the file named by -env, or ".env".
func envFileFlag(args []string) string {
	path := defaultEnvFile
	set := flag.NewFlagSet("env", flag.ContinueOnError)
	set.SetOutput(io.Discard)
	set.StringVar(&path, "env", path, "path to .env file")
	_ = set.Parse(flagx.FilterArgs(args, []string{"-env", "--env"}))
	return path
}

// parseEnv loads envFile into the process environment (existing variables
// win; a missing file is fine) and overlays the recognised variables.
func parseEnv(cfg *Config, envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	if v := os.Getenv(EnvSecretKey); v != "" {
		cfg.SecretKey = v
	}
	if v := os.Getenv(EnvDatabaseURL); v != "" {
		cfg.DatabaseDSN = v
	}
	if v := os.Getenv(EnvAccessExpireMin); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("%s: want a positive integer, got %q", EnvAccessExpireMin, v)
		}
		cfg.AccessTokenValidityDuration = time.Duration(n) * time.Minute
	}
	if v := os.Getenv(EnvRefreshExpireDays); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("%s: want a positive integer, got %q", EnvRefreshExpireDays, v)
		}
		cfg.RefreshTokenValidityDuration = time.Duration(n) * 24 * time.Hour
	}
	if v := os.Getenv(EnvCORSOrigins); v != "" {
		cfg.AllowedOrigins = splitList(v)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
