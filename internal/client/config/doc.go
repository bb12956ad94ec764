// Package config loads runtime configuration for the intake CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJson) selected via flags: -c or -config.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-a string   address:port of the backend gRPC endpoint
//	-i int      online status check interval (seconds)
//	-t string   access token
//	-f string   local database file
//	-k string   draft key
//	-n string   server draft id
//	-w int      autosave debounce (seconds)
//	-b int      safety backup interval (seconds)
//	-r int      transient retry delay (seconds)
//	-encrypt    encrypt the local cache
//
// # JSON schema
//
// The JSON loader uses timex.Duration for intervals, so values can be either
// strings like "3s" or integer nanoseconds:
//
//	{
//	  "server_endpoint_addr": "127.0.0.1:50051",
//	  "online_check_interval": "3s",
//	  "access_token": "...",
//	  "local_db_path": "intake.db",
//	  "draft_key": "intake-draft",
//	  "debounce": "2s",
//	  "backup_interval": "5m",
//	  "retry_delay": "5s",
//	  "encrypt": true
//	}
package config
