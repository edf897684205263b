package config

import "time"

// Config holds runtime settings for the OpenTrace console.
//
// Fields:
//   - APIURL: base URL of the REST backend, including the /api prefix.
//   - CollectURL: tracking endpoint; derived from APIURL when empty.
//   - DatabasePath: SQLite file holding the persisted client state.
//   - RequestTimeout: per-request timeout of the HTTP client.
//   - LiveInterval / AnalyticsInterval / MonitorInterval: view polling
//     periods.
//   - OnlineCheckInterval: how often the console checks backend health.
//   - LogLevel / LogFormat: slog level and handler ("text" or "json").
type Config struct {
	APIURL              string
	CollectURL          string
	DatabasePath        string
	RequestTimeout      time.Duration
	LiveInterval        time.Duration
	AnalyticsInterval   time.Duration
	MonitorInterval     time.Duration
	OnlineCheckInterval time.Duration
	LogLevel            string
	LogFormat           string
}

// LoadDefaults populates c with defaults suitable for a local backend.
func (c *Config) LoadDefaults() {
	c.APIURL = "http://localhost:8000/api"
	c.CollectURL = ""
	c.DatabasePath = "opentrace.db"
	c.RequestTimeout = 15 * time.Second
	c.LiveInterval = 3 * time.Second
	c.AnalyticsInterval = 10 * time.Second
	c.MonitorInterval = 5 * time.Second
	c.OnlineCheckInterval = 5 * time.Second
	c.LogLevel = "info"
	c.LogFormat = "text"
}

// TrackingEndpoint returns CollectURL, or APIURL + "/v1/collect".
func (c *Config) TrackingEndpoint() string {
	if c.CollectURL != "" {
		return c.CollectURL
	}
	return c.APIURL + "/v1/collect"
}

// LoadConfig applies defaults, then the environment (.env included), then
// an optional JSON file, then command-line flags. Later sources win.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseEnv(cfg)
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
