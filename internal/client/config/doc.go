// Package config loads runtime configuration for the fieldsync CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected via -c or -config.
//  3. Command-line flags, which override earlier values.
//
// # JSON schema
//
// Durations are strings like "3s" or integer nanoseconds:
//
//	{
//	  "server_endpoint_addr": "127.0.0.1:50051",
//	  "database_path": "fieldsync.db",
//	  "sync_timeout": "30s",
//	  "auto_sync_interval": "5m",
//	  "online_check_interval": "3s",
//	  "search_debounce": "300ms",
//	  "log_file": "fieldsync.log",
//	  "debug": false
//	}
package config
