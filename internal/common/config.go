// Package common provides shared utilities for Vire
package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds all configuration for the option-scan service.
type Config struct {
	Environment string           `toml:"environment"`
	Server      ServerConfig     `toml:"server"`
	Storage     StorageConfig    `toml:"storage"`
	Clients     ClientsConfig    `toml:"clients"`
	Logging     LoggingConfig    `toml:"logging"`
	OptionScan  OptionScanConfig `toml:"option_scan"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// StorageConfig holds the path to the badgerhold database backing the
// option-scan store.
type StorageConfig struct {
	DataPath string `toml:"data_path"`
}

// ClientsConfig holds API client configurations
type ClientsConfig struct {
	EODHD EODHDConfig `toml:"eodhd"`
}

// EODHDConfig holds EODHD API configuration
type EODHDConfig struct {
	BaseURL   string `toml:"base_url"`
	APIKey    string `toml:"api_key"`
	RateLimit int    `toml:"rate_limit"`
	Timeout   string `toml:"timeout"`
}

// GetTimeout parses and returns the timeout duration
func (c *EODHDConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string   `toml:"level" mapstructure:"level"`
	Format     string   `toml:"format" mapstructure:"format"`
	Outputs    []string `toml:"outputs" mapstructure:"outputs"`
	FilePath   string   `toml:"file_path" mapstructure:"file_path"`
	MaxSizeMB  int      `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int      `toml:"max_backups" mapstructure:"max_backups"`
}

// OptionScanConfig holds configuration for the PUT-selling market scanner.
type OptionScanConfig struct {
	ScanTime         string                    `toml:"scan_time"`      // daily wall-clock trigger, "HH:MM" local time, default "04:00"
	Watchlist        []string                  `toml:"watchlist"`      // fallback universe when discovery is disabled or fails
	RetentionDays    int                       `toml:"retention_days"` // default 90
	Strategy         OptionStrategyConfig      `toml:"strategy"`
	OptionsDiscovery OptionsDiscoveryConfig    `toml:"options_discovery"`
	RateLimiting     OptionScanRateLimitConfig `toml:"rate_limiting"`
}

// OptionStrategyConfig bounds the strategy engine's acceptance window.
type OptionStrategyConfig struct {
	MinExpiryDays int     `toml:"min_expiry_days"` // default 14
	MaxExpiryDays int     `toml:"max_expiry_days"` // default 21
	MinConfidence float64 `toml:"min_confidence"`  // default 0.5
}

// OptionsDiscoveryConfig configures universe discovery via the options exchange.
type OptionsDiscoveryConfig struct {
	Enabled                    bool   `toml:"enabled"`
	Exchange                   string `toml:"exchange"` // EODHD exchange code, e.g. "US"
	MinOpenInterest            int    `toml:"min_open_interest"`
	MinVolume                  int    `toml:"min_volume"`
	SampleOptionsPerUnderlying int    `toml:"sample_options_per_underlying"`
	FallbackToWatchlist        bool   `toml:"fallback_to_watchlist"`
	MaxExpiryDays              int    `toml:"max_expiry_days"`
}

// OptionScanRateLimitConfig configures provider retry/backoff behaviour.
type OptionScanRateLimitConfig struct {
	MaxRetries               int  `toml:"max_retries"`                 // default 3
	InitialRetryDelaySeconds int  `toml:"initial_retry_delay_seconds"` // default 1
	UseExponentialBackoff    bool `toml:"use_exponential_backoff"`
	AttemptTimeoutSeconds    int  `toml:"attempt_timeout_seconds"` // default 60
	EnableRetryOn429         bool `toml:"enable_retry_on_429"`
}

// GetScanTime parses ScanTime ("HH:MM") and returns hour, minute. Falls
// back to 04:00 on empty or malformed input.
func (c *OptionScanConfig) GetScanTime() (hour, minute int) {
	parts := strings.SplitN(c.ScanTime, ":", 2)
	if len(parts) == 2 {
		h, errH := strconv.Atoi(parts[0])
		m, errM := strconv.Atoi(parts[1])
		if errH == nil && errM == nil && h >= 0 && h < 24 && m >= 0 && m < 60 {
			return h, m
		}
	}
	return 4, 0
}

// GetRetentionDays returns the configured retention window, defaulting to 90 days.
func (c *OptionScanConfig) GetRetentionDays() int {
	if c.RetentionDays <= 0 {
		return 90
	}
	return c.RetentionDays
}

// GetAttemptTimeout returns the per-provider-attempt timeout, defaulting to 60s.
func (c *OptionScanRateLimitConfig) GetAttemptTimeout() time.Duration {
	if c.AttemptTimeoutSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.AttemptTimeoutSeconds) * time.Second
}

// GetInitialRetryDelay returns the configured initial retry delay, defaulting to 1s.
func (c *OptionScanRateLimitConfig) GetInitialRetryDelay() time.Duration {
	if c.InitialRetryDelaySeconds <= 0 {
		return 1 * time.Second
	}
	return time.Duration(c.InitialRetryDelaySeconds) * time.Second
}

// GetMaxRetries returns the configured retry ceiling, defaulting to 3.
func (c *OptionScanRateLimitConfig) GetMaxRetries() int {
	if c.MaxRetries <= 0 {
		return 3
	}
	return c.MaxRetries
}

// NewDefaultConfig returns a Config with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Storage: StorageConfig{
			DataPath: "data/optionscan",
		},
		Clients: ClientsConfig{
			EODHD: EODHDConfig{
				BaseURL:   "https://eodhd.com/api",
				RateLimit: 10,
				Timeout:   "30s",
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			Outputs:    []string{"console", "file"},
			FilePath:   "./logs/vire.log",
			MaxSizeMB:  100,
			MaxBackups: 3,
		},
		OptionScan: OptionScanConfig{
			ScanTime:      "04:00",
			RetentionDays: 90,
			Strategy: OptionStrategyConfig{
				MinExpiryDays: 14,
				MaxExpiryDays: 21,
				MinConfidence: 0.5,
			},
			OptionsDiscovery: OptionsDiscoveryConfig{
				Enabled:                    false,
				Exchange:                   "US",
				MinOpenInterest:            100,
				MinVolume:                  10,
				SampleOptionsPerUnderlying: 5,
				FallbackToWatchlist:        true,
				MaxExpiryDays:              21,
			},
			RateLimiting: OptionScanRateLimitConfig{
				MaxRetries:               3,
				InitialRetryDelaySeconds: 1,
				UseExponentialBackoff:    true,
				AttemptTimeoutSeconds:    60,
				EnableRetryOn429:         true,
			},
		},
	}
}

// LoadConfig loads configuration from files with environment overrides
func LoadConfig(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	// Load and merge each config file in order (later files override earlier)
	for _, path := range paths {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue // Skip missing files
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("VIRE_ENV"); env != "" {
		config.Environment = env
	}

	if host := os.Getenv("VIRE_HOST"); host != "" {
		config.Server.Host = host
	}

	if port := os.Getenv("VIRE_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if level := os.Getenv("VIRE_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if path := os.Getenv("VIRE_DATA_PATH"); path != "" {
		config.Storage.DataPath = path
	}

	if key := os.Getenv("EODHD_API_KEY"); key != "" {
		config.Clients.EODHD.APIKey = key
	} else if key := os.Getenv("VIRE_EODHD_API_KEY"); key != "" {
		config.Clients.EODHD.APIKey = key
	}
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// ResolveAPIKey resolves an API key from environment, then a config fallback.
func ResolveAPIKey(name string, fallback string) string {
	keyToEnvMapping := map[string][]string{
		"eodhd_api_key": {"EODHD_API_KEY", "VIRE_EODHD_API_KEY"},
	}

	if envVarNames, ok := keyToEnvMapping[name]; ok {
		for _, envVarName := range envVarNames {
			if envValue := os.Getenv(envVarName); envValue != "" {
				return envValue
			}
		}
	}

	return fallback
}
