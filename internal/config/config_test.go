// Package config tests for configuration loading and validation.
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestDefaultConfig verifies defaults are valid.
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config is invalid: %v", err)
	}
	if cfg.Sync.MaxAttempts != 10 {
		t.Errorf("MaxAttempts = %d, want 10", cfg.Sync.MaxAttempts)
	}
	if cfg.ExecutorTimeout() != 30*time.Second {
		t.Errorf("ExecutorTimeout = %v, want 30s", cfg.ExecutorTimeout())
	}
	if cfg.ProbeInterval() != 30*time.Second {
		t.Errorf("ProbeInterval = %v, want 30s", cfg.ProbeInterval())
	}
}

// TestLoadMissingFile verifies an unreadable path is an error.
func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Error("Load of missing file should fail")
	}
}

// TestLoadEmptyPath verifies defaults are used when no file is given.
func TestLoadEmptyPath(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error = %v", err)
	}
	if cfg.Server.Port != 8091 {
		t.Errorf("Port = %d, want default 8091", cfg.Server.Port)
	}
}

// TestLoadFile verifies file values override defaults.
func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{"server":{"port":9000,"dataDir":"/tmp/ds","logLevel":"DEBUG"},"sync":{"maxAttempts":5,"executorTimeoutSeconds":10,"syncOnReconnect":true,"successBannerSeconds":2},"probe":{"intervalSeconds":15}}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error = %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("Port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Sync.MaxAttempts != 5 {
		t.Errorf("MaxAttempts = %d, want 5", cfg.Sync.MaxAttempts)
	}
	if cfg.ProbeInterval() != 15*time.Second {
		t.Errorf("ProbeInterval = %v, want 15s", cfg.ProbeInterval())
	}
}

// TestEnvOverrides verifies environment variables win over the file.
func TestEnvOverrides(t *testing.T) {
	t.Setenv("DRIVERSYNC_PORT", "9100")
	t.Setenv("DRIVERSYNC_DATA_DIR", "/tmp/override")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load error = %v", err)
	}

	if cfg.Server.Port != 9100 {
		t.Errorf("Port = %d, want 9100 from env", cfg.Server.Port)
	}
	if cfg.Server.DataDir != "/tmp/override" {
		t.Errorf("DataDir = %q, want /tmp/override from env", cfg.Server.DataDir)
	}
}

// TestValidateRejectsBadValues verifies policy bounds.
func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero port", func(c *Config) { c.Server.Port = 0 }},
		{"huge port", func(c *Config) { c.Server.Port = 70000 }},
		{"zero max attempts", func(c *Config) { c.Sync.MaxAttempts = 0 }},
		{"zero executor timeout", func(c *Config) { c.Sync.ExecutorTimeoutSeconds = 0 }},
		{"zero probe interval", func(c *Config) { c.Probe.IntervalSeconds = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate should reject bad value")
			}
		})
	}
}
