package application

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/adpulse/adpulse/internal/domain"
)

// Config is the full runtime configuration. One authoritative value per
// knob; in particular confidence_min lives here and nowhere else.
type Config struct {
	Analysis AnalysisConfig `yaml:"analysis"`
	Reports  ReportsConfig  `yaml:"reports"`
	Storage  StorageConfig  `yaml:"storage"`
	Cache    CacheConfig    `yaml:"cache"`
	Remote   RemoteConfig   `yaml:"remote"`
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
}

// AnalysisConfig drives the core engine.
type AnalysisConfig struct {
	WindowDays       int     `yaml:"window_days"`
	MinDays          int     `yaml:"min_days"`
	CTRZ             float64 `yaml:"ctr_z"`
	ROASZ            float64 `yaml:"roas_z"`
	MinDropThreshold float64 `yaml:"min_drop_threshold"`
	ConfidenceMin    float64 `yaml:"confidence_min"`
	TopKInsights     int     `yaml:"top_k_insights"`
}

// ReportsConfig controls where run artifacts land.
type ReportsConfig struct {
	Dir string `yaml:"dir"`
}

// StorageConfig enables the optional Postgres run store.
type StorageConfig struct {
	Enabled        bool   `yaml:"enabled"`
	DSN            string `yaml:"dsn"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the per-query timeout.
func (c StorageConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// CacheConfig enables the optional Redis baseline cache.
type CacheConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Addr       string `yaml:"addr"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	TTLSeconds int    `yaml:"ttl_seconds"`
}

// TTL returns the snapshot time-to-live.
func (c CacheConfig) TTL() time.Duration {
	if c.TTLSeconds <= 0 {
		return 6 * time.Hour
	}
	return time.Duration(c.TTLSeconds) * time.Second
}

// RemoteConfig points at an HTTP row source.
type RemoteConfig struct {
	Enabled        bool    `yaml:"enabled"`
	BaseURL        string  `yaml:"base_url"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
	RatePerSecond  float64 `yaml:"rate_per_second"`
	Burst          int     `yaml:"burst"`
}

// Timeout returns the per-request timeout.
func (c RemoteConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ServerConfig configures the serve command.
type ServerConfig struct {
	Listen string `yaml:"listen"`
}

// LogConfig selects the log level.
type LogConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Analysis: AnalysisConfig{
			WindowDays:       30,
			MinDays:          7,
			CTRZ:             1.5,
			ROASZ:            1.0,
			MinDropThreshold: 0.08,
			ConfidenceMin:    0.3,
			TopKInsights:     5,
		},
		Reports: ReportsConfig{Dir: "reports"},
		Storage: StorageConfig{TimeoutSeconds: 5},
		Cache:   CacheConfig{TTLSeconds: 21600},
		Remote:  RemoteConfig{TimeoutSeconds: 10, RatePerSecond: 4, Burst: 8},
		Server:  ServerConfig{Listen: ":8080"},
		Log:     LogConfig{Level: "info"},
	}
}

// LoadConfig reads a YAML config file over the defaults. An empty path
// returns the defaults unchanged.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects configurations the engine cannot honor.
func (c Config) Validate() error {
	a := c.Analysis
	if a.WindowDays < 0 || a.MinDays < 0 {
		return fmt.Errorf("analysis windows must be non-negative: window_days=%d min_days=%d", a.WindowDays, a.MinDays)
	}
	if a.WindowDays > 0 && a.MinDays > a.WindowDays {
		return fmt.Errorf("min_days %d exceeds window_days %d", a.MinDays, a.WindowDays)
	}
	if a.ConfidenceMin < 0 || a.ConfidenceMin > 1 {
		return fmt.Errorf("confidence_min %.3f outside [0,1]", a.ConfidenceMin)
	}
	if c.Storage.Enabled && c.Storage.DSN == "" {
		return fmt.Errorf("storage enabled without dsn")
	}
	if c.Cache.Enabled && c.Cache.Addr == "" {
		return fmt.Errorf("cache enabled without addr")
	}
	if c.Remote.Enabled && c.Remote.BaseURL == "" {
		return fmt.Errorf("remote source enabled without base_url")
	}
	return nil
}

// BaselineConfig projects the analysis settings for the baseline estimator.
func (c AnalysisConfig) BaselineConfig() domain.BaselineConfig {
	return domain.BaselineConfig{WindowDays: c.WindowDays, MinDays: c.MinDays}
}

// ThresholdConfig projects the analysis settings for the threshold
// calculator.
func (c AnalysisConfig) ThresholdConfig() domain.ThresholdConfig {
	return domain.ThresholdConfig{
		WindowDays:       c.WindowDays,
		MinDays:          c.MinDays,
		CTRZ:             c.CTRZ,
		ROASZ:            c.ROASZ,
		MinDropThreshold: c.MinDropThreshold,
	}
}

// EvaluatorConfig projects the single pass/fail cutoff.
func (c AnalysisConfig) EvaluatorConfig() domain.EvaluatorConfig {
	return domain.EvaluatorConfig{ConfidenceMin: c.ConfidenceMin}
}
