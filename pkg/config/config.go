package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the service configuration.
type Config struct {
	HTTPAddr       string `yaml:"http_addr"`
	GRPCAddr       string `yaml:"grpc_addr"`
	DisableGRPC    bool   `yaml:"disable_grpc"`
	MetricsAddr    string `yaml:"metrics_addr"`
	DisableMetrics bool   `yaml:"disable_metrics"`

	Store       StoreConfig       `yaml:"store"`
	Limits      LimitsConfig      `yaml:"limits"`
	Reliability ReliabilityConfig `yaml:"reliability"`
	Monitoring  MonitoringConfig  `yaml:"monitoring"`
	Log         LogConfig         `yaml:"log"`
}

// StoreConfig configures the in-memory store.
type StoreConfig struct {
	Shards        int           `yaml:"shards"`         // Default 128
	SweepInterval time.Duration `yaml:"sweep_interval"` // Default 1s, negative disables the janitor
}

// LimitsConfig bounds request sizes and rates.
type LimitsConfig struct {
	MaxValueBytes  int64 `yaml:"max_value_bytes"`  // Default 32MiB
	RateLimitQPS   int   `yaml:"rate_limit_qps"`   // 0 disables rate limiting
	RateLimitBurst int   `yaml:"rate_limit_burst"` // Defaults to RateLimitQPS
}

// ReliabilityConfig configures shutdown behaviour.
type ReliabilityConfig struct {
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // Default 10s
}

// MonitoringConfig configures request logging thresholds.
type MonitoringConfig struct {
	SlowRequestThreshold time.Duration `yaml:"slow_request_threshold"` // Default 100ms
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level       string   `yaml:"level"`        // Default info
	Encoding    string   `yaml:"encoding"`     // json or console, default json
	OutputPaths []string `yaml:"output_paths"` // Default ["stdout"]

	// Rotation applies to file output paths.
	MaxSizeMB  int  `yaml:"max_size_mb"` // Default 100
	MaxBackups int  `yaml:"max_backups"` // Default 10
	MaxAgeDays int  `yaml:"max_age_days"` // Default 7
	Compress   bool `yaml:"compress"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

// LoadConfig loads configuration from a YAML file if path is provided,
// otherwise it starts from defaults. Environment variables override
// either source, and the result is validated.
func LoadConfig(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.SetDefaults()
	if err := cfg.OverrideFromEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// SetDefaults fills every unset field.
func (c *Config) SetDefaults() {
	if c.HTTPAddr == "" {
		c.HTTPAddr = ":8000"
	}
	if c.GRPCAddr == "" {
		c.GRPCAddr = ":9090"
	}
	if c.MetricsAddr == "" {
		c.MetricsAddr = ":9100"
	}

	if c.Store.Shards == 0 {
		c.Store.Shards = 128
	}
	if c.Store.SweepInterval == 0 {
		c.Store.SweepInterval = time.Second
	}

	if c.Limits.MaxValueBytes == 0 {
		c.Limits.MaxValueBytes = 32 << 20
	}
	if c.Limits.RateLimitQPS > 0 && c.Limits.RateLimitBurst == 0 {
		c.Limits.RateLimitBurst = c.Limits.RateLimitQPS
	}

	if c.Reliability.ShutdownTimeout == 0 {
		c.Reliability.ShutdownTimeout = 10 * time.Second
	}
	if c.Monitoring.SlowRequestThreshold == 0 {
		c.Monitoring.SlowRequestThreshold = 100 * time.Millisecond
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Encoding == "" {
		c.Log.Encoding = "json"
	}
	if len(c.Log.OutputPaths) == 0 {
		c.Log.OutputPaths = []string{"stdout"}
	}
	if c.Log.MaxSizeMB == 0 {
		c.Log.MaxSizeMB = 100
	}
	if c.Log.MaxBackups == 0 {
		c.Log.MaxBackups = 10
	}
	if c.Log.MaxAgeDays == 0 {
		c.Log.MaxAgeDays = 7
	}
}

// OverrideFromEnv allows environment variables to override configured values.
// HTTP_ADDR wins over PORT when both are set.
func (c *Config) OverrideFromEnv() error {
	if v := os.Getenv("PORT"); v != "" {
		if _, err := strconv.ParseUint(v, 10, 16); err != nil {
			return fmt.Errorf("invalid PORT value %q: %w", v, err)
		}
		c.HTTPAddr = ":" + v
	}
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		c.HTTPAddr = v
	}
	if v := os.Getenv("GRPC_ADDR"); v != "" {
		c.GRPCAddr = v
	}
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		c.MetricsAddr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Store.Shards < 1 {
		return fmt.Errorf("store.shards must be positive, got %d", c.Store.Shards)
	}
	if c.Limits.MaxValueBytes < 0 {
		return fmt.Errorf("limits.max_value_bytes must not be negative, got %d", c.Limits.MaxValueBytes)
	}
	if c.Limits.RateLimitQPS < 0 || c.Limits.RateLimitBurst < 0 {
		return errors.New("limits.rate_limit_qps and limits.rate_limit_burst must not be negative")
	}
	if c.Reliability.ShutdownTimeout < 0 {
		return errors.New("reliability.shutdown_timeout must not be negative")
	}
	switch c.Log.Encoding {
	case "json", "console":
	default:
		return fmt.Errorf("log.encoding must be json or console, got %q", c.Log.Encoding)
	}
	return nil
}

// JanitorEnabled reports whether expired keys are swept in the background.
func (c *Config) JanitorEnabled() bool {
	return c.Store.SweepInterval > 0
}

// RateLimitEnabled reports whether requests are rate limited.
func (c *Config) RateLimitEnabled() bool {
	return c.Limits.RateLimitQPS > 0
}
