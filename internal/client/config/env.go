package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

// parseEnv overlays values from the process environment. A .env file in the
// working directory is loaded first if present; variables already set in
// the environment take precedence over it.
//
//	OT_API_URL, OT_COLLECT_URL, OT_DB_PATH, OT_REQUEST_TIMEOUT,
//	OT_LIVE_INTERVAL, OT_ANALYTICS_INTERVAL, OT_MONITOR_INTERVAL,
//	OT_ONLINE_CHECK_INTERVAL, OT_LOG_LEVEL, OT_LOG_FORMAT
//
// Durations use Go syntax ("3s"). Unparseable durations are ignored.
func parseEnv(cfg *Config) {
	_ = godotenv.Load() // .env is optional

	cfg.APIURL = getEnv("OT_API_URL", cfg.APIURL)
	cfg.CollectURL = getEnv("OT_COLLECT_URL", cfg.CollectURL)
	cfg.DatabasePath = getEnv("OT_DB_PATH", cfg.DatabasePath)
	cfg.LogLevel = getEnv("OT_LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnv("OT_LOG_FORMAT", cfg.LogFormat)

	cfg.RequestTimeout = getEnvDuration("OT_REQUEST_TIMEOUT", cfg.RequestTimeout)
	cfg.LiveInterval = getEnvDuration("OT_LIVE_INTERVAL", cfg.LiveInterval)
	cfg.AnalyticsInterval = getEnvDuration("OT_ANALYTICS_INTERVAL", cfg.AnalyticsInterval)
	cfg.MonitorInterval = getEnvDuration("OT_MONITOR_INTERVAL", cfg.MonitorInterval)
	cfg.OnlineCheckInterval = getEnvDuration("OT_ONLINE_CHECK_INTERVAL", cfg.OnlineCheckInterval)
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
