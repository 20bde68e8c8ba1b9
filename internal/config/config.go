// Package config loads the YAML configuration file and applies environment
// variable overrides. A missing provider token is a startup error: the engine
// refuses to dispatch any work without credentials.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"amarket/internal/domain"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the amarket sync engine.
type Config struct {
	Storage  Storage        `yaml:"storage"`
	Tushare  Tushare        `yaml:"tushare"`
	Sync     SyncConfig     `yaml:"sync"`
	Universe UniverseConfig `yaml:"universe"`
	Logging  Logging        `yaml:"logging"`
}

// Storage holds paths for data persistence.
type Storage struct {
	SQLitePath string `yaml:"sqlite_path"`
	ExportDir  string `yaml:"export_dir"`
}

// Tushare holds credentials and quota settings for the tushare data API.
type Tushare struct {
	Token    string `yaml:"token"`
	BaseURL  string `yaml:"base_url"`
	MaxCalls int    `yaml:"max_calls"`   // calls allowed per window
	WindowS  int    `yaml:"window_secs"` // trailing window length
}

// SyncConfig controls the reconciliation and retry policy.
type SyncConfig struct {
	StartDate      string `yaml:"start_date"` // oldest supported date floor
	MaxSpanDays    int    `yaml:"max_span_days"`
	Workers        int    `yaml:"workers"`
	MaxAttempts    int    `yaml:"max_attempts"`
	CooldownSecs   int    `yaml:"cooldown_secs"`
	RetryDelaySecs int    `yaml:"retry_delay_secs"`
}

// UniverseConfig controls stock-universe loading.
type UniverseConfig struct {
	CSVPath       string   `yaml:"csv_path"`
	ExcludeBoards []string `yaml:"exclude_boards"` // subset of: gem, star, bj
}

// Logging configures the application logger.
type Logging struct {
	Level string `yaml:"level"`
}

// Window returns the rate-limit window as a duration.
func (t Tushare) Window() time.Duration {
	return time.Duration(t.WindowS) * time.Second
}

// Cooldown returns the ban cooldown as a duration.
func (s SyncConfig) Cooldown() time.Duration {
	return time.Duration(s.CooldownSecs) * time.Second
}

// RetryDelay returns the linear backoff step as a duration.
func (s SyncConfig) RetryDelay() time.Duration {
	return time.Duration(s.RetryDelaySecs) * time.Second
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, applies defaults, and then applies environment variable
// overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	return cfg, nil
}

// Default returns a Config carrying only defaults and env overrides, for
// entrypoints run without a config file.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	applyEnvOverrides(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Storage.SQLitePath == "" {
		cfg.Storage.SQLitePath = "amarket.db"
	}
	if cfg.Storage.ExportDir == "" {
		cfg.Storage.ExportDir = "export"
	}
	if cfg.Tushare.BaseURL == "" {
		cfg.Tushare.BaseURL = "https://api.waditu.com"
	}
	if cfg.Tushare.MaxCalls == 0 {
		cfg.Tushare.MaxCalls = 200
	}
	if cfg.Tushare.WindowS == 0 {
		cfg.Tushare.WindowS = 60
	}
	if cfg.Sync.StartDate == "" {
		cfg.Sync.StartDate = "2024-01-01"
	}
	if cfg.Sync.MaxSpanDays == 0 {
		cfg.Sync.MaxSpanDays = 365
	}
	if cfg.Sync.Workers == 0 {
		cfg.Sync.Workers = 8
	}
	if cfg.Sync.MaxAttempts == 0 {
		cfg.Sync.MaxAttempts = 3
	}
	if cfg.Sync.CooldownSecs == 0 {
		cfg.Sync.CooldownSecs = 600
	}
	if cfg.Sync.RetryDelaySecs == 0 {
		cfg.Sync.RetryDelaySecs = 15
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TUSHARE_TOKEN"); v != "" {
		cfg.Tushare.Token = v
	}
	if v := os.Getenv("TUSHARE_BASE_URL"); v != "" {
		cfg.Tushare.BaseURL = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("EXPORT_DIR"); v != "" {
		cfg.Storage.ExportDir = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate reports configuration problems that must abort the run before any
// work is dispatched.
func (cfg *Config) Validate() error {
	if cfg.Tushare.Token == "" {
		return fmt.Errorf("tushare token not configured: set tushare.token or the TUSHARE_TOKEN environment variable")
	}
	if _, err := domain.ParseDate(cfg.Sync.StartDate); err != nil {
		return fmt.Errorf("invalid sync.start_date: %w", err)
	}
	if cfg.Sync.Workers < 1 {
		return fmt.Errorf("sync.workers must be at least 1, got %d", cfg.Sync.Workers)
	}
	if cfg.Sync.MaxAttempts < 1 {
		return fmt.Errorf("sync.max_attempts must be at least 1, got %d", cfg.Sync.MaxAttempts)
	}
	if cfg.Tushare.MaxCalls < 1 || cfg.Tushare.WindowS < 1 {
		return fmt.Errorf("tushare quota must be positive, got %d calls per %ds", cfg.Tushare.MaxCalls, cfg.Tushare.WindowS)
	}
	return nil
}
