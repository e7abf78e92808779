// Package config loads controller settings from an optional TOML file and
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// ErrInvalidConfig is returned when a setting is out of range.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds the tunables of the controller.
type Config struct {
	// RequestTimeout is how long a request may wait for its reply
	RequestTimeout time.Duration `toml:"request_timeout"`

	// SilenceFactor is how many heartbeat intervals a node may stay quiet
	SilenceFactor int `toml:"silence_factor"`

	// IdleWait bounds how long the loop sleeps when there is nothing to do
	IdleWait time.Duration `toml:"idle_wait"`

	// WorkerBinary is the executable spawned for direct children
	WorkerBinary string `toml:"worker_binary"`

	// MetricsAddr is the listen address for /metrics; empty disables it
	MetricsAddr string `toml:"metrics_addr"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		RequestTimeout: 5 * time.Second,
		SilenceFactor:  4,
		IdleWait:       10 * time.Millisecond,
		WorkerBinary:   "arbor-worker",
	}
}

// Load builds a Config from defaults, then the TOML file at path (skipped
// when path is empty), then ARBOR_* environment variables.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("load %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	var err error
	if v := getenv("ARBOR_REQUEST_TIMEOUT", ""); v != "" {
		if c.RequestTimeout, err = time.ParseDuration(v); err != nil {
			return fmt.Errorf("ARBOR_REQUEST_TIMEOUT: %w", err)
		}
	}
	if v := getenv("ARBOR_SILENCE_FACTOR", ""); v != "" {
		if c.SilenceFactor, err = strconv.Atoi(v); err != nil {
			return fmt.Errorf("ARBOR_SILENCE_FACTOR: %w", err)
		}
	}
	if v := getenv("ARBOR_IDLE_WAIT", ""); v != "" {
		if c.IdleWait, err = time.ParseDuration(v); err != nil {
			return fmt.Errorf("ARBOR_IDLE_WAIT: %w", err)
		}
	}
	c.WorkerBinary = getenv("ARBOR_WORKER_BINARY", c.WorkerBinary)
	c.MetricsAddr = getenv("ARBOR_METRICS_ADDR", c.MetricsAddr)
	return nil
}

// Validate rejects settings the controller cannot run with.
func (c Config) Validate() error {
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %v: %w", c.RequestTimeout, ErrInvalidConfig)
	}
	if c.SilenceFactor <= 0 {
		return fmt.Errorf("silence_factor must be positive, got %d: %w", c.SilenceFactor, ErrInvalidConfig)
	}
	if c.IdleWait <= 0 {
		return fmt.Errorf("idle_wait must be positive, got %v: %w", c.IdleWait, ErrInvalidConfig)
	}
	if c.WorkerBinary == "" {
		return fmt.Errorf("worker_binary must be set: %w", ErrInvalidConfig)
	}
	return nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
