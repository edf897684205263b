// Package config loads runtime configuration for the OpenTrace console.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Environment variables prefixed OT_, with an optional .env file.
//  3. Optional JSON file selected via -c / -config or $OT_CONFIG.
//  4. Command-line flags, which override everything else.
//
// # JSON schema
//
//	{
//	  "api_url": "https://analytics.example.com/api",
//	  "database_path": "/var/lib/opentrace/console.db",
//	  "live_interval": "3s",
//	  "analytics_interval": "10s",
//	  "log_level": "debug"
//	}
package config
