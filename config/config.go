// Package config loads the service configuration and builds the logger.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Config holds the service configuration.
type Config struct {
	Listen    string        `yaml:"listen" validate:"required"`
	Database  string        `yaml:"database" validate:"required_if=Store sqlite"`
	Store     string        `yaml:"store" validate:"oneof=sqlite memory"`
	TypesFile string        `yaml:"types_file,omitempty"`
	RemoteURL string        `yaml:"remote_url" validate:"omitempty,url"`
	Log       LogConfig     `yaml:"log"`
	CORS      CORSConfig    `yaml:"cors"`
	Monitor   MonitorConfig `yaml:"monitor"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json console"`
}

// CORSConfig lists the origins allowed to call the service.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" validate:"dive,required"`
}

// MonitorConfig configures the missing-report monitor.
type MonitorConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Interval string   `yaml:"interval" validate:"required"` // e.g. "1h"
	Branches []string `yaml:"branches,omitempty" validate:"dive,required"`
}

// IntervalDuration parses Interval.
func (m MonitorConfig) IntervalDuration() (time.Duration, error) {
	d, err := time.ParseDuration(m.Interval)
	if err != nil {
		return 0, fmt.Errorf("invalid monitor interval %q: %w", m.Interval, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid monitor interval %q: must be positive", m.Interval)
	}
	return d, nil
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Listen:    ":8080",
		Database:  "reports.db",
		Store:     "sqlite",
		RemoteURL: "http://localhost:8080",
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"http://localhost:5173", "http://localhost:8080"},
		},
		Monitor: MonitorConfig{
			Enabled:  true,
			Interval: "1h",
		},
	}
}

// Load reads a YAML config file over the defaults. A missing file yields
// the defaults; an empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies REPORTS_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("REPORTS_LISTEN"); v != "" {
		c.Listen = v
	}
	if v := os.Getenv("REPORTS_DATABASE"); v != "" {
		c.Database = v
	}
	if v := os.Getenv("REPORTS_REMOTE_URL"); v != "" {
		c.RemoteURL = v
	}
	if v := os.Getenv("REPORTS_LOG_LEVEL"); v != "" {
		c.Log.Level = strings.ToLower(v)
	}
}

var validate = validator.New()

// Validate checks field values.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("invalid config: %w", err)
		}
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, fmt.Sprintf("%s: failed %q (got %v)", fe.Namespace(), fe.Tag(), fe.Value()))
		}
		return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
	}
	if _, err := c.Monitor.IntervalDuration(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// NewLogger builds a zap logger. "console" uses the development encoder,
// anything else the production JSON encoder.
func NewLogger(level, format string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	config := zap.NewProductionConfig()
	if format == "console" {
		config = zap.NewDevelopmentConfig()
	}
	config.Level = zap.NewAtomicLevelAt(lvl)

	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}
