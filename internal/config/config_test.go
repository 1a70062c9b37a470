package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/chrpow/Wearcast-Pebble/internal/outfit"
	"github.com/chrpow/Wearcast-Pebble/internal/weather"
)

// clearEnv blanks the overrides Load honours; Load treats empty as unset.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"ENV_NAME", "SERVER_PORT", "REFRESH_INTERVAL", "CLOCK_24H"} {
		t.Setenv(k, "")
	}
}

func loadFrom(t *testing.T, content string) (*Config, error) {
	t.Helper()
	origWd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	dir := t.TempDir()
	writeEnvFile(t, dir, content)
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	defer func() { _ = os.Chdir(origWd) }()
	return Load()
}

func TestLoad_MinimalDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := loadFrom(t, minimalEnvYAML)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ServerPort != "8080" {
		t.Errorf("ServerPort = %q, want 8080", cfg.ServerPort)
	}
	if cfg.RefreshInterval != 30*time.Minute || cfg.RefreshTimeout != 5*time.Minute {
		t.Errorf("refresh = %v/%v, want 30m/5m", cfg.RefreshInterval, cfg.RefreshTimeout)
	}
	if cfg.DeliveryTimeout != 30*time.Second {
		t.Errorf("DeliveryTimeout = %v, want 30s", cfg.DeliveryTimeout)
	}
	if !cfg.Clock24h {
		t.Error("Clock24h = false, want true by default")
	}
	if cfg.CityMaxLength != 32 {
		t.Errorf("CityMaxLength = %d, want 32", cfg.CityMaxLength)
	}
	if cfg.Outfit != outfit.DefaultPolicy {
		t.Errorf("Outfit = %+v, want DefaultPolicy", cfg.Outfit)
	}
	if cfg.InboundRateRPS != 2 || cfg.InboundRateBurst != 5 {
		t.Errorf("inbound rate = %d/%d, want 2/5", cfg.InboundRateRPS, cfg.InboundRateBurst)
	}
	if cfg.RequestTimeout != 5*time.Second {
		t.Errorf("RequestTimeout = %v, want 5s", cfg.RequestTimeout)
	}
	if cfg.DegradedWindow != 5*time.Minute || cfg.DegradedRejectPct != 50 {
		t.Errorf("degraded = %v/%d, want 5m/50", cfg.DegradedWindow, cfg.DegradedRejectPct)
	}
	if cfg.TestingMode {
		t.Error("TestingMode = true, want false when omitted (default)")
	}
}

func TestLoad_EnvFileNotFound(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENV_NAME", "nonexistent")

	origWd, _ := os.Getwd()
	os.Chdir(findProjectRoot(t))
	defer os.Chdir(origWd)

	cfg, err := Load()
	if err == nil {
		t.Fatal("Load() expected error for missing env file, got nil")
	}
	if cfg != nil {
		t.Fatalf("Load() expected nil config on error, got %+v", cfg)
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Errorf("Load() error = %v, want message about config file not found", err)
	}
}

func TestLoad_SucceedsFromProjectConfig(t *testing.T) {
	clearEnv(t)
	origWd, _ := os.Getwd()
	os.Chdir(findProjectRoot(t))
	defer os.Chdir(origWd)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ServerPort == "" || cfg.RefreshInterval == 0 {
		t.Errorf("Load() did not populate config from config/dev.yaml")
	}
	if cfg.Outfit != outfit.DefaultPolicy {
		t.Errorf("config/dev.yaml outfit = %+v, want DefaultPolicy", cfg.Outfit)
	}
}

func TestLoad_InvalidDurationFallsBackToDefault(t *testing.T) {
	clearEnv(t)
	cfg, err := loadFrom(t, `
refresh:
  interval: "soon"
  timeout: ""
shutdown:
  timeout: "-1s"
`)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RefreshInterval != 30*time.Minute {
		t.Errorf("RefreshInterval = %v, want default 30m", cfg.RefreshInterval)
	}
	if cfg.RefreshTimeout != 5*time.Minute {
		t.Errorf("RefreshTimeout = %v, want default 5m", cfg.RefreshTimeout)
	}
	if cfg.ShutdownTimeout != 10*time.Second {
		t.Errorf("ShutdownTimeout = %v, want default 10s", cfg.ShutdownTimeout)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("REFRESH_INTERVAL", "15m")
	t.Setenv("CLOCK_24H", "false")

	cfg, err := loadFrom(t, minimalEnvYAML)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ServerPort != "9090" {
		t.Errorf("ServerPort = %q, want 9090", cfg.ServerPort)
	}
	if cfg.RefreshInterval != 15*time.Minute {
		t.Errorf("RefreshInterval = %v, want 15m", cfg.RefreshInterval)
	}
	if cfg.Clock24h {
		t.Error("Clock24h = true, want false from CLOCK_24H")
	}
}

func TestLoad_InvalidClockOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv("CLOCK_24H", "sometimes")
	cfg, err := loadFrom(t, minimalEnvYAML)
	if err == nil || cfg != nil {
		t.Fatalf("Load() = %+v, %v; want error", cfg, err)
	}
	if !strings.Contains(err.Error(), "CLOCK_24H") {
		t.Errorf("Load() error = %v, want message about CLOCK_24H", err)
	}
}

func TestLoad_OutfitOverridesMergeWithDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := loadFrom(t, minimalEnvYAML+`
outfit:
  coat:
    fahrenheit: 45
    inclusive: true
`)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Outfit.Coat != (outfit.Threshold{Fahrenheit: 45, Inclusive: true}) {
		t.Errorf("Coat = %+v, want 45 inclusive", cfg.Outfit.Coat)
	}
	if cfg.Outfit.Sweater != outfit.DefaultPolicy.Sweater || cfg.Outfit.Hat != outfit.DefaultPolicy.Hat {
		t.Errorf("unset thresholds changed: %+v", cfg.Outfit)
	}
}

func TestLoad_OutfitPartialThresholdKeepsInclusivity(t *testing.T) {
	clearEnv(t)
	cfg, err := loadFrom(t, minimalEnvYAML+`
outfit:
  coat:
    fahrenheit: 45
  hat:
    inclusive: true
`)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Outfit.Coat != (outfit.Threshold{Fahrenheit: 45, Inclusive: true}) {
		t.Errorf("Coat = %+v, want 45 inclusive", cfg.Outfit.Coat)
	}
	if cfg.Outfit.Hat != (outfit.Threshold{Fahrenheit: 42, Inclusive: true}) {
		t.Errorf("Hat = %+v, want 42 inclusive", cfg.Outfit.Hat)
	}
	s := weather.NewState()
	if _, err := s.Apply(weather.Update{Condition: ptr(weather.Sunny), Temperature: ptr(45)}, time.Now()); err != nil {
		t.Fatalf("Apply error = %v", err)
	}
	if got := cfg.Outfit.Resolve(s).Chest; got != outfit.ChestCoat {
		t.Errorf("Resolve(sunny 45).Chest = %v, want coat", got)
	}
}

func ptr[T any](v T) *T { return &v }

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantMsg string
	}{
		{"sub-minute interval", "refresh:\n  interval: \"90s\"\n  timeout: \"30s\"\n", "refresh.interval"},
		{"interval not dividing day", "refresh:\n  interval: \"7m\"\n  timeout: \"1m\"\n", "divide 24h"},
		{"timeout not shorter", "refresh:\n  interval: \"5m\"\n  timeout: \"5m\"\n", "refresh.timeout"},
		{"zero delivery timeout", "transport:\n  delivery_timeout: \"0s\"\n", "delivery_timeout"},
		{"reject pct over 100", "health:\n  degraded_reject_pct: 120\n", "degraded_reject_pct"},
		{"degraded window too long", "health:\n  degraded_window: \"1h\"\n", "degraded_window"},
		{"city too long", "display:\n  city_max_length: 40\n", "city_max_length"},
		{"unordered outfit", "outfit:\n  sweater:\n    fahrenheit: 70\n    inclusive: true\n", "outfit policy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			cfg, err := loadFrom(t, tt.yaml)
			if err == nil {
				t.Fatal("Load() expected validation error, got nil")
			}
			if cfg != nil {
				t.Fatalf("Load() expected nil config on error, got %+v", cfg)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("Load() error = %v, want message containing %q", err, tt.wantMsg)
			}
		})
	}
}

func TestLoad_DeliveryTimeoutClampedToRefreshTimeout(t *testing.T) {
	clearEnv(t)
	cfg, err := loadFrom(t, `
refresh:
  interval: "30m"
  timeout: "1m"
transport:
  delivery_timeout: "2m"
`)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DeliveryTimeout != time.Minute {
		t.Errorf("DeliveryTimeout = %v, want clamped to 1m", cfg.DeliveryTimeout)
	}
}

func TestLoad_InvalidConfigYAML(t *testing.T) {
	clearEnv(t)
	cfg, err := loadFrom(t, "not: valid: yaml: [[[")
	if err == nil {
		t.Fatal("Load() expected error for invalid config YAML, got nil")
	}
	if cfg != nil {
		t.Fatalf("Load() expected nil config on error, got %+v", cfg)
	}
	if !strings.Contains(err.Error(), "parse") {
		t.Errorf("Load() error = %v, want message about parse", err)
	}
}

func TestLoad_TestingModeTrue(t *testing.T) {
	clearEnv(t)
	cfg, err := loadFrom(t, minimalEnvYAML+"\ntesting_mode: true\n")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.TestingMode {
		t.Error("TestingMode = false, want true")
	}
}

const minimalEnvYAML = `
server:
  port: "8080"
refresh:
  interval: "30m"
  timeout: "5m"
shutdown:
  timeout: "10s"
`

func writeEnvFile(t *testing.T, dir, content string) {
	t.Helper()
	configDir := filepath.Join(dir, "config")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("mkdir config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(configDir, "dev.yaml"), []byte(content), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
}

// TestCoverageGaps_IntentionallyUntested documents paths we reviewed but chose not to test.
// Run with -v to see skip reasons. These gaps do not affect coverage targets.
func TestCoverageGaps_IntentionallyUntested(t *testing.T) {
	t.Run("Load_read_config_error", func(t *testing.T) {
		t.Skip("ReadFile error path (permission denied, etc.) requires injecting failure")
	})
	t.Run("Load_getwd_error", func(t *testing.T) {
		t.Skip("os.Getwd failure needs a deleted working directory; not portable")
	})
}

func findProjectRoot(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "config", "dev.yaml")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("config/dev.yaml not found (run tests from project root)")
		}
		dir = parent
	}
}
