// Package config holds the blesense configuration: struct defaults, an optional YAML file
// and the logger built from it.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/srg/blesense/internal/reading"
)

// Config holds application configuration.
type Config struct {
	LogLevel       string        `yaml:"log_level" default:"info"`
	PowerOnTimeout time.Duration `yaml:"power_on_timeout" default:"5s"`
	ScanTimeout    time.Duration `yaml:"scan_timeout" default:"10s"`
	RecordDeadline time.Duration `yaml:"record_deadline" default:"10s"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" default:"30s"`
	CommandTimeout time.Duration `yaml:"command_timeout" default:"5s"`
	OutputFormat   string        `yaml:"output_format" default:"table"`
	HistorySize    uint32        `yaml:"history_size" default:"256"`
	AllowList      []string      `yaml:"allow_list"`
	Readings       []string      `yaml:"readings"`
}

// OutputFormats lists the accepted values of OutputFormat.
var OutputFormats = []string{"table", "json"}

// Default returns default configuration values.
func Default() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	cfg.Readings = []string{reading.Temperature, reading.Humidity}
	return cfg
}

// Load reads a YAML config file on top of the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}

	valid := false
	for _, f := range OutputFormats {
		if c.OutputFormat == f {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("output_format must be one of %v, got %q", OutputFormats, c.OutputFormat)
	}

	durations := []struct {
		name  string
		value time.Duration
	}{
		{"power_on_timeout", c.PowerOnTimeout},
		{"connect_timeout", c.ConnectTimeout},
		{"command_timeout", c.CommandTimeout},
	}
	for _, d := range durations {
		if d.value <= 0 {
			return fmt.Errorf("%s must be > 0, got %s", d.name, d.value)
		}
	}
	if c.ScanTimeout < 0 {
		return fmt.Errorf("scan_timeout must not be negative, got %s", c.ScanTimeout)
	}
	if c.RecordDeadline < 0 {
		return fmt.Errorf("record_deadline must not be negative, got %s", c.RecordDeadline)
	}
	if c.HistorySize == 0 {
		return fmt.Errorf("history_size must be > 0")
	}
	return nil
}

// ParseLevel maps a level name (debug, info, warn, error) to a logrus level.
func ParseLevel(name string) (logrus.Level, error) {
	switch name {
	case "debug":
		return logrus.DebugLevel, nil
	case "info":
		return logrus.InfoLevel, nil
	case "warn":
		return logrus.WarnLevel, nil
	case "error":
		return logrus.ErrorLevel, nil
	default:
		return logrus.PanicLevel, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", name)
	}
}

// NewLogger creates a configured logger instance.
func (c *Config) NewLogger() (*logrus.Logger, error) {
	level, err := ParseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}

	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	return logger, nil
}
