// ABOUTME: TOML configuration for pncp-agent.
// ABOUTME: Flags override file values; the secret can come from the environment.

package main

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config is the agent's on-disk configuration.
type Config struct {
	// Controller is the controller's host:port.
	Controller string `toml:"controller"`
	// Name is the display name sent in the auth message. The controller
	// derives the logical identity from it plus the observed address.
	Name string `toml:"name"`
	// SharedSecret keys the auth HMAC. Prefer PNCP_SHARED_SECRET over
	// putting it in the file.
	SharedSecret string `toml:"shared_secret"`
	// LogsDir is what the lslogs command key lists.
	LogsDir string `toml:"logs_dir"`
}

func loadConfig(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}
	if env := os.Getenv("PNCP_SHARED_SECRET"); env != "" {
		cfg.SharedSecret = env
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Controller == "" {
		return fmt.Errorf("controller address is required (flag -controller or config)")
	}
	if c.Name == "" {
		return fmt.Errorf("agent name is required (flag -name or config)")
	}
	if c.SharedSecret == "" {
		return fmt.Errorf("shared secret is required (PNCP_SHARED_SECRET or config)")
	}
	return nil
}
