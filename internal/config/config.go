// ABOUTME: Configuration loading and parsing for pncp-controller.
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing.

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete pncp-controller configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Auth     AuthConfig     `yaml:"auth"`
	Database DatabaseConfig `yaml:"database"`
	Agents   AgentsConfig   `yaml:"agents"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Limits   LimitsConfig   `yaml:"limits"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds the listen address for agent connections.
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// AuthConfig holds the shared-secret handshake configuration.
type AuthConfig struct {
	SharedSecret string `yaml:"shared_secret"`

	FreshnessWindow time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	FreshnessWindowRaw string `yaml:"freshness_window"`
}

// DatabaseConfig holds the time-series database configuration. An empty
// path disables persistence.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AgentsConfig holds session liveness timing configuration.
type AgentsConfig struct {
	ProbeInterval time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	ProbeIntervalRaw string `yaml:"probe_interval"`
}

// DispatchConfig holds command dispatch timing configuration.
type DispatchConfig struct {
	ResponseTimeout time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	ResponseTimeoutRaw string `yaml:"response_timeout"`
}

// LimitsConfig bounds resource use per connection.
type LimitsConfig struct {
	MaxMessageBytes int `yaml:"max_message_bytes"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server.listen_addr is required")
	}
	if c.Auth.SharedSecret == "" {
		return fmt.Errorf("auth.shared_secret is required")
	}
	if c.Limits.MaxMessageBytes < 0 {
		return fmt.Errorf("limits.max_message_bytes must not be negative")
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Auth.FreshnessWindowRaw != "" {
		cfg.Auth.FreshnessWindow, err = time.ParseDuration(cfg.Auth.FreshnessWindowRaw)
		if err != nil {
			return fmt.Errorf("parsing freshness_window %q: %w", cfg.Auth.FreshnessWindowRaw, err)
		}
	}

	if cfg.Agents.ProbeIntervalRaw != "" {
		cfg.Agents.ProbeInterval, err = time.ParseDuration(cfg.Agents.ProbeIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing probe_interval %q: %w", cfg.Agents.ProbeIntervalRaw, err)
		}
	}

	if cfg.Dispatch.ResponseTimeoutRaw != "" {
		cfg.Dispatch.ResponseTimeout, err = time.ParseDuration(cfg.Dispatch.ResponseTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing response_timeout %q: %w", cfg.Dispatch.ResponseTimeoutRaw, err)
		}
	}

	return nil
}
