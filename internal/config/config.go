// Package config loads decisioncore's runtime configuration: YAML file
// plus .env/environment overrides, grounded on
// AlejandroRuiz99-polybot/config/config.go's Load/applyEnvOverrides/
// setDefaults shape and on original_source/agent/config.py's field set.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is decisioncore's full runtime configuration.
type Config struct {
	Bridge  BridgeConfig  `yaml:"bridge"`
	Storage StorageConfig `yaml:"storage"`
	Risk    RiskDefaults  `yaml:"risk"`
	Log     LogConfig     `yaml:"log"`
	Obs     ObsConfig     `yaml:"obs"`
}

// BridgeConfig points at the broker bridge sidecar HTTP endpoint.
type BridgeConfig struct {
	BaseURL       string `yaml:"base_url"`
	TimeoutMS     int    `yaml:"timeout_ms"`
	RateLimitRPS  int    `yaml:"rate_limit_rps"`
}

// StorageConfig names where bar cache and playbooks live.
type StorageConfig struct {
	BarCachePath     string `yaml:"bar_cache_path"`
	BarRetentionDays int    `yaml:"bar_retention_days"` // 0 = keep forever
	PlaybooksDir     string `yaml:"playbooks_dir"`
	ArchiveDSN       string `yaml:"archive_dsn"` // empty = no durable archive fallback
}

// RiskDefaults are account-level risk limits. The live command uses
// MaxLot as the risk manager's total-lot cap and MaxDrawdownPct as its
// account drawdown limit; a playbook's own RiskConfig is not filled
// from them.
type RiskDefaults struct {
	MaxLot           float64 `yaml:"default_max_lot"`
	MaxDailyTrades   int     `yaml:"default_max_daily_trades"`
	MaxDrawdownPct   float64 `yaml:"default_max_drawdown_pct"`
	MaxOpenPositions int     `yaml:"default_max_open_positions"`
}

// LogConfig controls log level/format, mirroring internal/obs's
// level/pretty split.
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// ObsConfig controls the Prometheus metrics listener.
type ObsConfig struct {
	MetricsAddr string `yaml:"metrics_addr"`
}

// Load reads path as YAML, loads .env if present, applies environment
// overrides, then fills in defaults for anything left unset.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse YAML: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DECISIONCORE_BRIDGE_URL"); v != "" {
		cfg.Bridge.BaseURL = v
	}
	if v := os.Getenv("DECISIONCORE_BAR_CACHE_PATH"); v != "" {
		cfg.Storage.BarCachePath = v
	}
	if v := os.Getenv("DECISIONCORE_PLAYBOOKS_DIR"); v != "" {
		cfg.Storage.PlaybooksDir = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("DECISIONCORE_METRICS_ADDR"); v != "" {
		cfg.Obs.MetricsAddr = v
	}
	if v := os.Getenv("DECISIONCORE_BAR_RETENTION_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Storage.BarRetentionDays = n
		}
	}
	if v := os.Getenv("DECISIONCORE_ARCHIVE_DSN"); v != "" {
		cfg.Storage.ArchiveDSN = v
	}
}

func setDefaults(cfg *Config) {
	if cfg.Bridge.BaseURL == "" {
		cfg.Bridge.BaseURL = "http://127.0.0.1:8787"
	}
	if cfg.Bridge.TimeoutMS <= 0 {
		cfg.Bridge.TimeoutMS = 5000
	}
	if cfg.Bridge.RateLimitRPS <= 0 {
		cfg.Bridge.RateLimitRPS = 20
	}
	if cfg.Storage.BarCachePath == "" {
		cfg.Storage.BarCachePath = "data/bars.db"
	}
	if cfg.Storage.PlaybooksDir == "" {
		cfg.Storage.PlaybooksDir = "data/playbooks"
	}
	if cfg.Risk.MaxLot <= 0 {
		cfg.Risk.MaxLot = 0.1
	}
	if cfg.Risk.MaxDailyTrades <= 0 {
		cfg.Risk.MaxDailyTrades = 10
	}
	if cfg.Risk.MaxDrawdownPct <= 0 {
		cfg.Risk.MaxDrawdownPct = 5.0
	}
	if cfg.Risk.MaxOpenPositions <= 0 {
		cfg.Risk.MaxOpenPositions = 5
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Obs.MetricsAddr == "" {
		cfg.Obs.MetricsAddr = ":9090"
	}
}
