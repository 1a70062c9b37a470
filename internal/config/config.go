package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chrpow/Wearcast-Pebble/internal/outfit"
	"github.com/chrpow/Wearcast-Pebble/internal/weather"
)

// Config holds service configuration loaded from YAML and env.
type Config struct {
	TestingMode bool

	ServerPort string

	RefreshInterval time.Duration
	RefreshTimeout  time.Duration

	DeliveryTimeout  time.Duration
	RequestTimeout   time.Duration
	InboundRateRPS   int
	InboundRateBurst int

	DegradedWindow    time.Duration
	DegradedRejectPct int

	Clock24h      bool
	CityMaxLength int

	Outfit outfit.Policy

	ShutdownTimeout time.Duration
}

type fileConfig struct {
	TestingMode *bool `yaml:"testing_mode"`

	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Refresh struct {
		Interval string `yaml:"interval"`
		Timeout  string `yaml:"timeout"`
	} `yaml:"refresh"`

	Transport struct {
		DeliveryTimeout  string `yaml:"delivery_timeout"`
		RequestTimeout   string `yaml:"request_timeout"`
		InboundRateRPS   int    `yaml:"inbound_rate_rps"`
		InboundRateBurst int    `yaml:"inbound_rate_burst"`
	} `yaml:"transport"`

	Health struct {
		DegradedWindow    string `yaml:"degraded_window"`
		DegradedRejectPct int    `yaml:"degraded_reject_pct"`
	} `yaml:"health"`

	Display struct {
		Clock24h      *bool `yaml:"clock_24h"`
		CityMaxLength int   `yaml:"city_max_length"`
	} `yaml:"display"`

	// Outfit is seeded with the default policy before decoding, so a
	// threshold that sets only fahrenheit keeps its default inclusivity.
	Outfit outfit.Policy `yaml:"outfit"`

	Shutdown struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"shutdown"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev).
// SERVER_PORT, REFRESH_INTERVAL and CLOCK_24H override the file. Call from project root.
func Load() (*Config, error) {
	configPath, err := Path()
	if err != nil {
		return nil, err
	}
	return LoadFile(configPath)
}

// Path returns the config file Load reads.
func Path() (string, error) {
	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("config: get working directory: %w", err)
	}
	return filepath.Join(cwd, "config", env+".yaml"), nil
}

// LoadFile reads configuration from configPath, applying env overrides and validation.
func LoadFile(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	fc := fileConfig{Outfit: outfit.DefaultPolicy}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg := &Config{
		TestingMode: false,
	}
	if fc.TestingMode != nil {
		cfg.TestingMode = *fc.TestingMode
	}

	cfg.ServerPort = strings.TrimSpace(os.Getenv("SERVER_PORT"))
	if cfg.ServerPort == "" {
		cfg.ServerPort = fc.Server.Port
	}
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}

	interval := fc.Refresh.Interval
	if v := strings.TrimSpace(os.Getenv("REFRESH_INTERVAL")); v != "" {
		interval = v
	}
	cfg.RefreshInterval = parseDuration(interval, 30*time.Minute)
	cfg.RefreshTimeout = parseDuration(fc.Refresh.Timeout, 5*time.Minute)

	cfg.DeliveryTimeout = parseDurationOrZero(fc.Transport.DeliveryTimeout, 30*time.Second)
	cfg.RequestTimeout = parseDuration(fc.Transport.RequestTimeout, 5*time.Second)
	cfg.InboundRateRPS = fc.Transport.InboundRateRPS
	if cfg.InboundRateRPS <= 0 {
		cfg.InboundRateRPS = 2
	}
	cfg.InboundRateBurst = fc.Transport.InboundRateBurst
	if cfg.InboundRateBurst <= 0 {
		cfg.InboundRateBurst = 5
	}

	cfg.DegradedWindow = parseDuration(fc.Health.DegradedWindow, 5*time.Minute)
	cfg.DegradedRejectPct = fc.Health.DegradedRejectPct
	if cfg.DegradedRejectPct == 0 {
		cfg.DegradedRejectPct = 50
	}

	cfg.Clock24h = true
	if fc.Display.Clock24h != nil {
		cfg.Clock24h = *fc.Display.Clock24h
	}
	if v := strings.TrimSpace(os.Getenv("CLOCK_24H")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("CLOCK_24H must be a boolean, got %q", v)
		}
		cfg.Clock24h = b
	}
	cfg.CityMaxLength = fc.Display.CityMaxLength
	if cfg.CityMaxLength == 0 {
		cfg.CityMaxLength = weather.MaxCityLength
	}

	cfg.Outfit = fc.Outfit

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 10*time.Second)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Returns zero or negative durations as-is (caller should handle fallback).
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate performs post-load validation of configuration values.
// The refresh interval must be whole minutes dividing a day, the timeout shorter
// than the interval. DeliveryTimeout is clamped to the refresh timeout.
func validate(cfg *Config) error {
	if cfg.RefreshInterval < time.Minute || cfg.RefreshInterval%time.Minute != 0 {
		return fmt.Errorf("refresh.interval must be a whole number of minutes, got %v", cfg.RefreshInterval)
	}
	if (24*time.Hour)%cfg.RefreshInterval != 0 {
		return fmt.Errorf("refresh.interval must divide 24h evenly, got %v", cfg.RefreshInterval)
	}
	if cfg.RefreshTimeout >= cfg.RefreshInterval {
		return fmt.Errorf("refresh.timeout (%v) must be shorter than refresh.interval (%v)", cfg.RefreshTimeout, cfg.RefreshInterval)
	}
	if cfg.DeliveryTimeout <= 0 {
		return fmt.Errorf("transport.delivery_timeout must be positive")
	}
	if cfg.DeliveryTimeout > cfg.RefreshTimeout {
		cfg.DeliveryTimeout = cfg.RefreshTimeout
	}
	if cfg.DegradedRejectPct < 1 || cfg.DegradedRejectPct > 100 {
		return fmt.Errorf("health.degraded_reject_pct must be between 1 and 100, got %d", cfg.DegradedRejectPct)
	}
	if cfg.DegradedWindow > 30*time.Minute {
		return fmt.Errorf("health.degraded_window must be at most 30m, got %v", cfg.DegradedWindow)
	}
	if cfg.CityMaxLength < 0 || cfg.CityMaxLength > weather.MaxCityLength {
		return fmt.Errorf("display.city_max_length must be between 1 and %d, got %d", weather.MaxCityLength, cfg.CityMaxLength)
	}
	if err := cfg.Outfit.Validate(); err != nil {
		return err
	}
	return nil
}
