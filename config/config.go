// Package config holds tool configuration loaded from an optional YAML file
// layered over struct defaults.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration.
type Config struct {
	LogLevel       string        `yaml:"log_level" default:"info"`
	ScanDuration   time.Duration `yaml:"scan_duration" default:"10s"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" default:"30s"`
	OutputFormat   string        `yaml:"output_format" default:"table"`
}

// Default returns a Config populated from struct tag defaults.
func Default() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads a YAML config file over the defaults. A missing file is not an
// error; the defaults apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %q: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %q: %w", path, err)
	}
	return cfg, nil
}

// UnmarshalYAML decodes duration fields from strings ("10s", "1m30s").
// Fields absent from the document keep their current (default) values.
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		LogLevel       string `yaml:"log_level"`
		ScanDuration   string `yaml:"scan_duration"`
		ConnectTimeout string `yaml:"connect_timeout"`
		OutputFormat   string `yaml:"output_format"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	if raw.LogLevel != "" {
		c.LogLevel = raw.LogLevel
	}
	if raw.OutputFormat != "" {
		c.OutputFormat = raw.OutputFormat
	}
	if raw.ScanDuration != "" {
		d, err := time.ParseDuration(raw.ScanDuration)
		if err != nil {
			return fmt.Errorf("invalid scan_duration: %w", err)
		}
		c.ScanDuration = d
	}
	if raw.ConnectTimeout != "" {
		d, err := time.ParseDuration(raw.ConnectTimeout)
		if err != nil {
			return fmt.Errorf("invalid connect_timeout: %w", err)
		}
		c.ConnectTimeout = d
	}
	return nil
}

func (c *Config) validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	switch c.OutputFormat {
	case "table", "json":
	default:
		return fmt.Errorf("invalid output format %q (must be table or json)", c.OutputFormat)
	}
	if c.ScanDuration < 0 {
		return fmt.Errorf("scan duration cannot be negative")
	}
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("connect timeout must be positive")
	}
	return nil
}

// NewLogger creates a logger configured from the LogLevel field.
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
