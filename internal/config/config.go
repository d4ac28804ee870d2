// Package config loads and validates the crowdflow application
// configuration from YAML with environment variable overrides.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration.
type Config struct {
	Analysis AnalysisConfig `mapstructure:"analysis"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// AnalysisConfig holds the run tuning defaults handed to the resolver.
// They live here, in one file, and reach the computation only through
// the resolved AnalysisConfig.
type AnalysisConfig struct {
	BinWindow    time.Duration `mapstructure:"bin_window"`
	ZoneLengthKm float64       `mapstructure:"zone_length_km"`
	MinOverlap   time.Duration `mapstructure:"min_overlap"`
	ScanStepKm   float64       `mapstructure:"scan_step_km"`
	Workers      int           `mapstructure:"workers"`
}

// StorageConfig holds run persistence configuration.
type StorageConfig struct {
	Driver      string `mapstructure:"driver"` // sqlite or postgres
	DSN         string `mapstructure:"dsn"`
	ArtifactDir string `mapstructure:"artifact_dir"`
}

// RedisConfig holds the optional latest-run cache configuration.
type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// TelegramConfig holds the optional severity alert configuration.
type TelegramConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	MinSeverity    string        `mapstructure:"min_severity"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)
	v.SetEnvPrefix("CROWDFLOW")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// setDefaults configures default values for all configuration options.
// Computation defaults (bin window, zone length) are deliberately not
// set here: they are operational tuning parameters and must come from
// the config file so every run records where its numbers came from.
func setDefaults(v *viper.Viper) {
	v.SetDefault("analysis.scan_step_km", 0.05)
	v.SetDefault("analysis.workers", 4)

	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.dsn", "./data/crowdflow.db")
	v.SetDefault("storage.artifact_dir", "./data/artifacts")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", "24h")

	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.min_severity", "ALERT")
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Validate checks that all configuration values are valid.
func (c *Config) Validate() error {
	if c.Analysis.BinWindow < time.Second {
		return fmt.Errorf("analysis.bin_window must be at least 1 second")
	}
	if c.Analysis.ZoneLengthKm <= 0 {
		return fmt.Errorf("analysis.zone_length_km must be positive")
	}
	if c.Analysis.MinOverlap < 0 {
		return fmt.Errorf("analysis.min_overlap must not be negative")
	}
	if c.Analysis.ScanStepKm <= 0 {
		return fmt.Errorf("analysis.scan_step_km must be positive")
	}
	if c.Analysis.Workers < 1 {
		return fmt.Errorf("analysis.workers must be at least 1")
	}

	switch c.Storage.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("storage.driver must be one of: sqlite, postgres")
	}
	if c.Storage.DSN == "" {
		return fmt.Errorf("storage.dsn is required")
	}
	if c.Storage.ArtifactDir == "" {
		return fmt.Errorf("storage.artifact_dir is required")
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required when redis is enabled")
		}
		if c.Redis.TTL <= 0 {
			return fmt.Errorf("redis.ttl must be positive when redis is enabled")
		}
	}

	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
		switch c.Telegram.MinSeverity {
		case "WATCH", "ALERT", "CRITICAL":
		default:
			return fmt.Errorf("telegram.min_severity must be one of: WATCH, ALERT, CRITICAL")
		}
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}
	return nil
}
