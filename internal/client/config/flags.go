package config

import (
	"flag"
	"io"

	"github.com/dmitrijs2005/peerlearn/internal/flagx"
)

var knownFlags = []string{"-a", "-g", "-t", "-b", "-r", "-d", "-f", "-redis", "-redis-prefix", "-i", "-l"}

// parseFlags populates Config fields from command-line flags.
//
//	-a string          API base URL
//	-g string          gRPC address for the session probe
//	-t duration        interactive request timeout
//	-b duration        bulk request timeout
//	-r duration        token refresh timeout
//	-d string          credential store driver: memory, sqlite, redis
//	-f string          SQLite file
//	-redis string      Redis address
//	-redis-prefix str  Redis key prefix
//	-i duration        online check interval
//	-l string          log level
//
// Only these flags are looked at (flagx.FilterArgs), so other components
// may define their own.
func parseFlags(cfg *Config, args []string) error {
	args = flagx.FilterArgs(args, knownFlags)

	fs := flag.NewFlagSet("client", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.ServerURL, "a", cfg.ServerURL, "API base URL")
	fs.StringVar(&cfg.GRPCAddr, "g", cfg.GRPCAddr, "gRPC address")
	fs.DurationVar(&cfg.RequestTimeout, "t", cfg.RequestTimeout, "interactive request timeout")
	fs.DurationVar(&cfg.BulkTimeout, "b", cfg.BulkTimeout, "bulk request timeout")
	fs.DurationVar(&cfg.RefreshTimeout, "r", cfg.RefreshTimeout, "token refresh timeout")
	fs.StringVar(&cfg.StoreDriver, "d", cfg.StoreDriver, "credential store driver")
	fs.StringVar(&cfg.StorePath, "f", cfg.StorePath, "SQLite credential file")
	fs.StringVar(&cfg.RedisAddr, "redis", cfg.RedisAddr, "Redis address")
	fs.StringVar(&cfg.RedisKeyPrefix, "redis-prefix", cfg.RedisKeyPrefix, "Redis key prefix")
	fs.DurationVar(&cfg.OnlineCheckInterval, "i", cfg.OnlineCheckInterval, "online check interval")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level")

	return fs.Parse(args)
}
