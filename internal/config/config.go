// Package config loads and defaults the server's YAML configuration file,
// the way the login/game-server configs in the reference corpus do: a
// yaml-tagged struct, defaults applied after unmarshal, and the file
// created with those defaults on first run.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the server's full runtime configuration.
type Config struct {
	BindIP       string  `yaml:"bind_ip"`
	Port         int     `yaml:"port"`
	RoomMaxPlayers int   `yaml:"room_max_players"`
	Monitors     []int32 `yaml:"monitors"`
	CycleVoting  bool    `yaml:"cycle_voting"`

	IdentityBaseURL        string `yaml:"identity_base_url"`
	IdentityTimeoutSeconds int    `yaml:"identity_timeout_seconds"`

	LogLevel string `yaml:"log_level"`
}

// Defaults matches spec.md §6's configuration defaults.
func Defaults() Config {
	return Config{
		BindIP:                 "::",
		Port:                   12346,
		RoomMaxPlayers:         8,
		Monitors:               nil,
		CycleVoting:            false,
		IdentityBaseURL:        "http://localhost:8081",
		IdentityTimeoutSeconds: 5,
		LogLevel:               "info",
	}
}

// applyDefaults fills in zero-valued fields left absent from the YAML file.
func (c *Config) applyDefaults() {
	d := Defaults()
	if c.BindIP == "" {
		c.BindIP = d.BindIP
	}
	if c.Port == 0 {
		c.Port = d.Port
	}
	if c.RoomMaxPlayers == 0 {
		c.RoomMaxPlayers = d.RoomMaxPlayers
	}
	if c.IdentityBaseURL == "" {
		c.IdentityBaseURL = d.IdentityBaseURL
	}
	if c.IdentityTimeoutSeconds == 0 {
		c.IdentityTimeoutSeconds = d.IdentityTimeoutSeconds
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
}

// IdentityTimeout returns the identity-service HTTP timeout as a
// time.Duration.
func (c Config) IdentityTimeout() time.Duration {
	return time.Duration(c.IdentityTimeoutSeconds) * time.Second
}

// MonitorAllowed reports whether userID is in the configured monitor
// allow-list.
func (c Config) MonitorAllowed(userID int32) bool {
	for _, id := range c.Monitors {
		if id == userID {
			return true
		}
	}
	return false
}

// Load reads the YAML config at path, applying defaults for any missing
// key. If path does not exist, a fresh file seeded with Defaults() is
// written, matching the "a missing file is created with defaults" contract
// in spec.md §6.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		cfg := Defaults()
		if writeErr := save(path, cfg); writeErr != nil {
			return nil, fmt.Errorf("config: create default file: %w", writeErr)
		}
		return &cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func save(path string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal defaults: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
