// Package config loads runtime configuration for the PeerLearn client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected via -c or -config.
//  3. Command-line flags, which override earlier values.
//
// # JSON schema
//
// Durations are strings like "30s" or integer nanoseconds:
//
//	{
//	  "server_url": "http://127.0.0.1:8000",
//	  "grpc_addr": "127.0.0.1:50051",
//	  "request_timeout": "30s",
//	  "bulk_timeout": "5m",
//	  "refresh_timeout": "15s",
//	  "store_driver": "sqlite",
//	  "store_path": "session.db",
//	  "redis_addr": "127.0.0.1:6379",
//	  "redis_key_prefix": "peerlearn:session:",
//	  "online_check_interval": "30s",
//	  "log_level": "info"
//	}
//
// The result is checked with (*Config).Validate before use.
package config
