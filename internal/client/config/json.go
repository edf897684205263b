package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dmitrijs2005/opentrace-console/internal/flagx"
	"github.com/dmitrijs2005/opentrace-console/internal/timex"
	"gopkg.in/yaml.v3"
)

// JsonConfig is the on-disk shape of the config file, JSON or YAML. Duration
// fields accept "3s"-style strings or integer nanoseconds. Absent fields
// leave the current value untouched.
type JsonConfig struct {
	APIURL              *string         `json:"api_url" yaml:"api_url"`
	CollectURL          *string         `json:"collect_url" yaml:"collect_url"`
	DatabasePath        *string         `json:"database_path" yaml:"database_path"`
	RequestTimeout      *timex.Duration `json:"request_timeout" yaml:"request_timeout"`
	LiveInterval        *timex.Duration `json:"live_interval" yaml:"live_interval"`
	AnalyticsInterval   *timex.Duration `json:"analytics_interval" yaml:"analytics_interval"`
	MonitorInterval     *timex.Duration `json:"monitor_interval" yaml:"monitor_interval"`
	OnlineCheckInterval *timex.Duration `json:"online_check_interval" yaml:"online_check_interval"`
	LogLevel            *string         `json:"log_level" yaml:"log_level"`
	LogFormat           *string         `json:"log_format" yaml:"log_format"`
}

// parseJson overlays cfg with the file named by -c/-config (or $OT_CONFIG).
// Files ending in .yaml or .yml are read as YAML. It panics on read or
// decode errors.
func parseJson(cfg *Config) {
	path := flagx.ConfigFile()
	if path == "" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	var jc JsonConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &jc)
	default:
		err = json.Unmarshal(data, &jc)
	}
	if err != nil {
		panic(err)
	}

	setString(&cfg.APIURL, jc.APIURL)
	setString(&cfg.CollectURL, jc.CollectURL)
	setString(&cfg.DatabasePath, jc.DatabasePath)
	setString(&cfg.LogLevel, jc.LogLevel)
	setString(&cfg.LogFormat, jc.LogFormat)

	setDuration(&cfg.RequestTimeout, jc.RequestTimeout)
	setDuration(&cfg.LiveInterval, jc.LiveInterval)
	setDuration(&cfg.AnalyticsInterval, jc.AnalyticsInterval)
	setDuration(&cfg.MonitorInterval, jc.MonitorInterval)
	setDuration(&cfg.OnlineCheckInterval, jc.OnlineCheckInterval)
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *timex.Duration) {
	if v != nil {
		*dst = v.Duration
	}
}
