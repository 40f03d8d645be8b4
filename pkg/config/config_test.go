package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 5*time.Second, cfg.PowerOnTimeout)
	assert.Equal(t, 10*time.Second, cfg.ScanTimeout)
	assert.Equal(t, 10*time.Second, cfg.RecordDeadline)
	assert.Equal(t, 30*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, 5*time.Second, cfg.CommandTimeout)
	assert.Equal(t, "table", cfg.OutputFormat)
	assert.EqualValues(t, 256, cfg.HistorySize)
	assert.Empty(t, cfg.AllowList)
	assert.Equal(t, []string{"temperature", "humidity"}, cfg.Readings)
	assert.NoError(t, cfg.Validate())
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "blesense.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
log_level: debug
scan_timeout: 3s
record_deadline: 1m
output_format: json
allow_list:
  - AA:BB:CC:DD:EE:FF
readings: [co2]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 3*time.Second, cfg.ScanTimeout)
	assert.Equal(t, time.Minute, cfg.RecordDeadline)
	assert.Equal(t, "json", cfg.OutputFormat)
	assert.Equal(t, []string{"AA:BB:CC:DD:EE:FF"}, cfg.AllowList)
	assert.Equal(t, []string{"co2"}, cfg.Readings)
	assert.Equal(t, 30*time.Second, cfg.ConnectTimeout, "unset fields MUST keep their defaults")
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		path    func(t *testing.T) string
		message string
	}{
		{
			name:    "missing file",
			path:    func(t *testing.T) string { return filepath.Join(t.TempDir(), "nope.yaml") },
			message: "reading config file",
		},
		{
			name:    "malformed yaml",
			path:    func(t *testing.T) string { return writeConfig(t, "log_level: [debug") },
			message: "parsing config file",
		},
		{
			name:    "invalid value",
			path:    func(t *testing.T) string { return writeConfig(t, "output_format: xml") },
			message: `output_format must be one of [table json], got "xml"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.path(t))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestLoad_EmptyPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		valid  bool
	}{
		{name: "json format", mutate: func(c *Config) { c.OutputFormat = "json" }, valid: true},
		{name: "zero scan timeout means indefinite", mutate: func(c *Config) { c.ScanTimeout = 0 }, valid: true},
		{name: "unknown format", mutate: func(c *Config) { c.OutputFormat = "csv" }},
		{name: "unknown log level", mutate: func(c *Config) { c.LogLevel = "trace" }},
		{name: "zero power-on timeout", mutate: func(c *Config) { c.PowerOnTimeout = 0 }},
		{name: "negative record deadline", mutate: func(c *Config) { c.RecordDeadline = -time.Second }},
		{name: "zero command timeout", mutate: func(c *Config) { c.CommandTimeout = 0 }},
		{name: "empty history", mutate: func(c *Config) { c.HistorySize = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if tt.valid {
				assert.NoError(t, cfg.Validate())
			} else {
				assert.Error(t, cfg.Validate())
			}
		})
	}
}

func TestConfig_NewLogger(t *testing.T) {
	tests := []struct {
		level    string
		expected logrus.Level
	}{
		{"debug", logrus.DebugLevel},
		{"info", logrus.InfoLevel},
		{"warn", logrus.WarnLevel},
		{"error", logrus.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			cfg := &Config{LogLevel: tt.level}

			logger, err := cfg.NewLogger()
			require.NoError(t, err)
			assert.Equal(t, tt.expected, logger.GetLevel())

			formatter, ok := logger.Formatter.(*logrus.TextFormatter)
			require.True(t, ok)
			assert.True(t, formatter.FullTimestamp)
			assert.Equal(t, time.RFC3339, formatter.TimestampFormat)
		})
	}

	_, err := (&Config{LogLevel: "loud"}).NewLogger()
	assert.EqualError(t, err, "invalid log level: loud (must be debug, info, warn, or error)")
}
