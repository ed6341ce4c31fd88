package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Execution.DefaultTimeout != 300 {
		t.Errorf("expected default timeout 300, got %d", cfg.Execution.DefaultTimeout)
	}
	if cfg.Execution.MaxTimeout != 3600 {
		t.Errorf("expected max timeout 3600, got %d", cfg.Execution.MaxTimeout)
	}
	if cfg.Execution.GracePeriod != 5 {
		t.Errorf("expected grace period 5, got %d", cfg.Execution.GracePeriod)
	}
	if cfg.Monitor.CPUWindow != 5 || cfg.Monitor.CPUMinSamples != 3 {
		t.Errorf("expected CPU smoothing 5/3, got %d/%d", cfg.Monitor.CPUWindow, cfg.Monitor.CPUMinSamples)
	}
	if got := cfg.Monitor.GetPollInterval(); got != time.Second {
		t.Errorf("expected 1s poll interval, got %v", got)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  host: "0.0.0.0"
  port: 9090
execution:
  default_timeout: 60
  extra_allowlist:
    - radiance
monitor:
  poll_interval: "500ms"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("expected host 0.0.0.0, got %q", cfg.Server.Host)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Execution.DefaultTimeout != 60 {
		t.Errorf("expected default timeout 60, got %d", cfg.Execution.DefaultTimeout)
	}
	if len(cfg.Execution.ExtraAllowlist) != 1 || cfg.Execution.ExtraAllowlist[0] != "radiance" {
		t.Errorf("expected extra allowlist [radiance], got %v", cfg.Execution.ExtraAllowlist)
	}
	if got := cfg.Monitor.GetPollInterval(); got != 500*time.Millisecond {
		t.Errorf("expected 500ms poll interval, got %v", got)
	}

	// Unset fields still get defaults.
	if cfg.Execution.MaxTimeout != 3600 {
		t.Errorf("expected defaulted max timeout 3600, got %d", cfg.Execution.MaxTimeout)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected an error for a missing config file")
	}
}

func TestLoad_NegativeRateLimitDisablesLimiting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "server:\n  rate_limit: -1\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	// 0 means "use the default"; the disable sentinel must survive defaulting.
	if cfg.Server.RateLimit != -1 {
		t.Errorf("expected rate limit -1 to be preserved, got %d", cfg.Server.RateLimit)
	}
}

func TestGetPollInterval_Invalid(t *testing.T) {
	c := &MonitorConfig{PollInterval: "not-a-duration"}
	if got := c.GetPollInterval(); got != time.Second {
		t.Errorf("expected fallback of 1s, got %v", got)
	}
}
