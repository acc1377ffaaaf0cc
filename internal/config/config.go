// Package config provides configuration management for shread: process
// settings from the environment and the run configuration INI file.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Settings holds process-level settings loaded from environment variables.
type Settings struct {
	Logging LoggingConfig `envPrefix:"LOG_"`
	Runtime RuntimeConfig `envPrefix:"SHREAD_"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"text"`
}

// RuntimeConfig contains batch execution settings.
type RuntimeConfig struct {
	// Workers bounds the per-date fan-out for concurrent products.
	Workers int `env:"WORKERS" envDefault:"6"`
	// HTTPTimeout bounds each request; zero means no timeout.
	HTTPTimeout time.Duration `env:"HTTP_TIMEOUT" envDefault:"0s"`
	// StatusAddr enables the status server when set, e.g. ":9090".
	StatusAddr string `env:"STATUS_ADDR" envDefault:""`
	UserAgent  string `env:"USER_AGENT" envDefault:"shread/1.0"`
}

// LoadSettings parses settings from environment variables.
func LoadSettings() (*Settings, error) {
	s := &Settings{}

	if err := env.Parse(s); err != nil {
		return nil, fmt.Errorf("failed to parse settings: %w", err)
	}

	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}

	return s, nil
}

// Validate checks that the settings are valid.
func (s *Settings) Validate() error {
	if s.Runtime.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", s.Runtime.Workers)
	}

	if s.Runtime.HTTPTimeout < 0 {
		return fmt.Errorf("http timeout must not be negative, got %s", s.Runtime.HTTPTimeout)
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[s.Logging.Level] {
		return fmt.Errorf("invalid log level %q, must be one of: debug, info, warn, error", s.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"json": true,
		"text": true,
	}
	if !validLogFormats[s.Logging.Format] {
		return fmt.Errorf("invalid log format %q, must be one of: json, text", s.Logging.Format)
	}

	return nil
}
