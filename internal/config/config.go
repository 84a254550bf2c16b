// Package config holds configuration for the sync core and the shell daemon.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all driversync configuration.
type Config struct {
	// Server settings for the localhost shell daemon
	Server ServerConfig `json:"server"`

	// Queue and drain policy
	Sync SyncConfig `json:"sync"`

	// Storage-loss probe settings
	Probe ProbeConfig `json:"probe"`
}

// ServerConfig configures the localhost HTTP/WebSocket surface.
type ServerConfig struct {
	Port     int    `json:"port"`
	DataDir  string `json:"dataDir"`
	LogLevel string `json:"logLevel"`
}

// SyncConfig configures retry and timeout policy for the drain loop.
type SyncConfig struct {
	// MaxAttempts bounds transient retries; once reached the entry is parked
	// as a conflict so the queue cannot spin forever.
	MaxAttempts int `json:"maxAttempts"`
	// ExecutorTimeoutSeconds bounds a single executor call. A timeout counts
	// as retryable since the true server-side outcome is unknown.
	ExecutorTimeoutSeconds int  `json:"executorTimeoutSeconds"`
	SyncOnReconnect        bool `json:"syncOnReconnect"`
	// SuccessBannerSeconds is how long the just-succeeded banner stays up.
	SuccessBannerSeconds int `json:"successBannerSeconds"`
}

// ProbeConfig configures the periodic storage-loss probe.
type ProbeConfig struct {
	IntervalSeconds int `json:"intervalSeconds"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:     8091,
			DataDir:  "./data",
			LogLevel: "INFO",
		},
		Sync: SyncConfig{
			MaxAttempts:            10,
			ExecutorTimeoutSeconds: 30,
			SyncOnReconnect:        true,
			SuccessBannerSeconds:   4,
		},
		Probe: ProbeConfig{
			IntervalSeconds: 30,
		},
	}
}

// Load reads a config file, applies env overrides, and validates the result.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnv overrides file values from the environment. The shell installer
// sets these instead of rewriting the config file.
func (c *Config) applyEnv() {
	if v := os.Getenv("DRIVERSYNC_DATA_DIR"); v != "" {
		c.Server.DataDir = v
	}
	if v := os.Getenv("DRIVERSYNC_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("DRIVERSYNC_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
}

// Validate checks that policy values are sane.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Sync.MaxAttempts < 1 {
		return fmt.Errorf("sync.maxAttempts must be at least 1, got %d", c.Sync.MaxAttempts)
	}
	if c.Sync.ExecutorTimeoutSeconds < 1 {
		return fmt.Errorf("sync.executorTimeoutSeconds must be at least 1, got %d", c.Sync.ExecutorTimeoutSeconds)
	}
	if c.Probe.IntervalSeconds < 1 {
		return fmt.Errorf("probe.intervalSeconds must be at least 1, got %d", c.Probe.IntervalSeconds)
	}
	return nil
}

// ExecutorTimeout returns the per-executor-call timeout as a duration.
func (c *Config) ExecutorTimeout() time.Duration {
	return time.Duration(c.Sync.ExecutorTimeoutSeconds) * time.Second
}

// ProbeInterval returns the loss-probe interval as a duration.
func (c *Config) ProbeInterval() time.Duration {
	return time.Duration(c.Probe.IntervalSeconds) * time.Second
}

// SuccessBannerDuration returns how long the success banner is shown.
func (c *Config) SuccessBannerDuration() time.Duration {
	return time.Duration(c.Sync.SuccessBannerSeconds) * time.Second
}
