package observability

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		env  string
		want zapcore.Level
	}{
		{"", zap.InfoLevel},
		{"debug", zap.DebugLevel},
		{" WARN ", zap.WarnLevel},
		{"Error", zap.ErrorLevel},
		{"trace", zap.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			if got := parseLogLevel(tt.env).Level(); got != tt.want {
				t.Errorf("parseLogLevel(%q) = %v, want %v", tt.env, got, tt.want)
			}
		})
	}
}

func TestLoggerConfig_ServiceFieldsAndLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	cfg := loggerConfig()
	if cfg.InitialFields["service"] != "wearcast" {
		t.Errorf("service field = %v, want wearcast", cfg.InitialFields["service"])
	}
	if cfg.EncoderConfig.TimeKey != "timestamp" {
		t.Errorf("TimeKey = %q, want timestamp", cfg.EncoderConfig.TimeKey)
	}
	if cfg.Level.Level() != zap.DebugLevel {
		t.Errorf("level = %v, want debug", cfg.Level.Level())
	}
	if cfg.Encoding != "json" {
		t.Errorf("Encoding = %q, want json", cfg.Encoding)
	}
}

func TestNewLogger(t *testing.T) {
	t.Setenv("LOG_LEVEL", "warn")
	logger, err := NewLogger()
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	if logger.Core().Enabled(zap.InfoLevel) {
		t.Error("info enabled with LOG_LEVEL=warn")
	}
	if !logger.Core().Enabled(zap.WarnLevel) {
		t.Error("warn disabled with LOG_LEVEL=warn")
	}
}
