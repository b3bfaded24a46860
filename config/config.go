package config

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Policy     PolicyConfig     `yaml:"policy"`
	Reminder   ReminderConfig   `yaml:"reminder"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
	Log        LogConfig        `yaml:"log"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// PushConfig holds the VAPID keys for web push notifications. Push is
// disabled when either key is empty.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// Enabled reports whether both VAPID keys are configured.
func (p PushConfig) Enabled() bool {
	return p.PublicKey != "" && p.PrivateKey != ""
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
	Timezone        string  `yaml:"timezone"`
}

// Location resolves Timezone, falling back to UTC.
func (s ServerConfig) Location() *time.Location {
	if s.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"` // "sqlite" or "postgres"
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
	LogLevel               string `yaml:"log_level"`
}

// ReminderConfig controls the background overdue sweep.
type ReminderConfig struct {
	Enabled         bool          `yaml:"enabled"`
	IntervalMinutes int           `yaml:"interval_minutes"`
	Interval        time.Duration `yaml:"-"`
}

// LogConfig selects the zap preset.
type LogConfig struct {
	Env string `yaml:"env"` // "production" or "development"
}

// PolicyConfig holds every tunable threshold of the PM engine.
type PolicyConfig struct {
	IntervalDays       int        `yaml:"interval_days"`
	UpcomingWindowDays int        `yaml:"upcoming_window_days"`
	RepeatThreshold    int        `yaml:"repeat_threshold"`
	Risk               RiskConfig `yaml:"risk"`
}

// RiskConfig holds the risk tier boundaries.
type RiskConfig struct {
	HighFailureCount   int    `yaml:"high_failure_count"`
	RecentDays         int    `yaml:"recent_days"`
	WindowDays         int    `yaml:"window_days"`
	WindowFailureCount int    `yaml:"window_failure_count"`
	CostCeiling        string `yaml:"cost_ceiling"`
}

// Ceiling parses CostCeiling. Zero disables the cost rule.
func (r RiskConfig) Ceiling() (decimal.Decimal, error) {
	if r.CostCeiling == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(r.CostCeiling)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid policy.risk.cost_ceiling %q: %w", r.CostCeiling, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("policy.risk.cost_ceiling must not be negative, got %s", d)
	}
	return d, nil
}

// DefaultPolicy returns the policy the plant ran with: 90 day PM interval,
// 7 day reminder window and an alert after 3 failures.
func DefaultPolicy() PolicyConfig {
	return PolicyConfig{
		IntervalDays:       90,
		UpcomingWindowDays: 7,
		RepeatThreshold:    3,
		Risk: RiskConfig{
			HighFailureCount:   3,
			RecentDays:         30,
			WindowDays:         90,
			WindowFailureCount: 3,
			CostCeiling:        "0",
		},
	}
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) applyDefaults() error {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 300
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.Driver != "sqlite" && cfg.Database.Driver != "postgres" {
		return fmt.Errorf("unsupported database.driver %q", cfg.Database.Driver)
	}
	if cfg.Database.DSN == "" && cfg.Database.Driver == "sqlite" {
		cfg.Database.DSN = "pm.db"
	}

	def := DefaultPolicy()
	p := &cfg.Policy
	if p.IntervalDays <= 0 {
		p.IntervalDays = def.IntervalDays
	}
	if p.UpcomingWindowDays <= 0 {
		p.UpcomingWindowDays = def.UpcomingWindowDays
	}
	if p.RepeatThreshold <= 0 {
		p.RepeatThreshold = def.RepeatThreshold
	}
	if p.Risk.HighFailureCount <= 0 {
		p.Risk.HighFailureCount = def.Risk.HighFailureCount
	}
	if p.Risk.RecentDays <= 0 {
		p.Risk.RecentDays = def.Risk.RecentDays
	}
	if p.Risk.WindowDays <= 0 {
		p.Risk.WindowDays = def.Risk.WindowDays
	}
	if p.Risk.WindowFailureCount <= 0 {
		p.Risk.WindowFailureCount = def.Risk.WindowFailureCount
	}
	if p.Risk.CostCeiling == "" {
		p.Risk.CostCeiling = def.Risk.CostCeiling
	}
	if _, err := p.Risk.Ceiling(); err != nil {
		return err
	}

	if cfg.Reminder.IntervalMinutes <= 0 {
		cfg.Reminder.IntervalMinutes = 60
	}
	cfg.Reminder.Interval = time.Duration(cfg.Reminder.IntervalMinutes) * time.Minute

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		cfg.WorkerPool.Size = 1
	}

	if cfg.Log.Env == "" {
		cfg.Log.Env = "development"
	}
	return nil
}
