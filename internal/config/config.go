// Package config loads the server configuration from a YAML file and fills
// in defaults.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Auth      AuthConfig      `yaml:"auth"`
	Database  DatabaseConfig  `yaml:"database"`
	Execution ExecutionConfig `yaml:"execution"`
	Monitor   MonitorConfig   `yaml:"monitor"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// RateLimit is the number of execute requests allowed per client per
	// minute. 0 applies the default of 60; a negative value disables rate
	// limiting.
	RateLimit int `yaml:"rate_limit"`
}

type AuthConfig struct {
	// APITokenHash is the bcrypt hash of the bearer token clients must
	// present. Empty disables authentication (local development only).
	APITokenHash string `yaml:"api_token_hash"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type ExecutionConfig struct {
	// DefaultTimeout and MaxTimeout are in seconds.
	DefaultTimeout int `yaml:"default_timeout"`
	MaxTimeout     int `yaml:"max_timeout"`
	// GracePeriod, in seconds, is the delay between the graceful
	// termination signal and the escalated kill.
	GracePeriod int `yaml:"grace_period"`
	// MaxOutputSize bounds each captured stream, in bytes.
	MaxOutputSize int `yaml:"max_output_size"`
	// ExtraAllowlist names additional executables permitted beyond the
	// built-in set.
	ExtraAllowlist []string `yaml:"extra_allowlist"`
}

type MonitorConfig struct {
	// PollInterval is a duration string, e.g. "1s".
	PollInterval string `yaml:"poll_interval"`
	// CPUWindow and CPUMinSamples tune the CPU smoothing heuristic.
	CPUWindow     int `yaml:"cpu_window"`
	CPUMinSamples int `yaml:"cpu_min_samples"`
}

// GetDefaultTimeout returns the execution default timeout as a duration.
func (c *ExecutionConfig) GetDefaultTimeout() time.Duration {
	return time.Duration(c.DefaultTimeout) * time.Second
}

// GetMaxTimeout returns the execution timeout ceiling as a duration.
func (c *ExecutionConfig) GetMaxTimeout() time.Duration {
	return time.Duration(c.MaxTimeout) * time.Second
}

// GetGracePeriod returns the termination grace period as a duration.
func (c *ExecutionConfig) GetGracePeriod() time.Duration {
	return time.Duration(c.GracePeriod) * time.Second
}

// GetPollInterval parses the monitor polling cadence, defaulting to 1s.
func (c *MonitorConfig) GetPollInterval() time.Duration {
	d, err := time.ParseDuration(c.PollInterval)
	if err != nil || d <= 0 {
		return time.Second
	}
	return d
}

// Load reads the configuration file at path. A missing or unreadable file
// is an error; use Default for the built-in configuration.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	setDefaults(&cfg)

	return &cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{}
	setDefaults(cfg)
	return cfg
}

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimit == 0 {
		cfg.Server.RateLimit = 60
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "./data/osremote.db"
	}
	if cfg.Execution.DefaultTimeout == 0 {
		cfg.Execution.DefaultTimeout = 300
	}
	if cfg.Execution.MaxTimeout == 0 {
		cfg.Execution.MaxTimeout = 3600
	}
	if cfg.Execution.GracePeriod == 0 {
		cfg.Execution.GracePeriod = 5
	}
	if cfg.Execution.MaxOutputSize == 0 {
		cfg.Execution.MaxOutputSize = 10485760
	}
	if cfg.Monitor.PollInterval == "" {
		cfg.Monitor.PollInterval = "1s"
	}
	if cfg.Monitor.CPUWindow == 0 {
		cfg.Monitor.CPUWindow = 5
	}
	if cfg.Monitor.CPUMinSamples == 0 {
		cfg.Monitor.CPUMinSamples = 3
	}
}
