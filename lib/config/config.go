// Copyright 2026 The Realm Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for the realm CLI.
//
// Configuration is loaded from a single YAML file specified by:
//   - REALM_CONFIG environment variable, or
//   - --config flag passed to the command
//
// A missing file is not an error: the CLI is an interactive tool and
// every value has a usable default or a corresponding flag. A file that
// exists but cannot be parsed is an error.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the realm CLI configuration.
type Config struct {
	// Homeserver configures the default Matrix homeserver.
	Homeserver HomeserverConfig `yaml:"homeserver"`

	// Vault configures where credentials are stored on disk.
	Vault VaultConfig `yaml:"vault"`

	// LoginTimeout bounds a single login attempt against the
	// homeserver. Go duration string, e.g. "30s".
	LoginTimeout string `yaml:"login_timeout"`
}

// HomeserverConfig identifies the homeserver and account to use when
// the corresponding flags are not given.
type HomeserverConfig struct {
	// URL is the homeserver base URL, e.g. "https://matrix.example".
	URL string `yaml:"url"`

	// Username is the default account: a Matrix localpart, or an email
	// address for accounts registered through a third-party identifier.
	Username string `yaml:"username"`
}

// VaultConfig configures the on-disk credential vault.
type VaultConfig struct {
	// Path is the vault file holding sealed credentials.
	// Default: ${HOME}/.config/realm/vault.sealed
	Path string `yaml:"path"`

	// IdentityFile is the age identity that unseals the vault.
	// Default: ${HOME}/.config/realm/identity.age
	IdentityFile string `yaml:"identity_file"`
}

// Default returns the default configuration. These defaults are a base
// for the config file, and stand alone when no file exists.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	configDir := filepath.Join(homeDir, ".config", "realm")

	return &Config{
		Vault: VaultConfig{
			Path:         filepath.Join(configDir, "vault.sealed"),
			IdentityFile: filepath.Join(configDir, "identity.age"),
		},
		LoginTimeout: "30s",
	}
}

// Load loads configuration from the path in the REALM_CONFIG
// environment variable. When REALM_CONFIG is unset, the defaults are
// returned unchanged.
func Load() (*Config, error) {
	configPath := os.Getenv("REALM_CONFIG")
	if configPath == "" {
		cfg := Default()
		cfg.expandVariables()
		return cfg, nil
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path, merged over
// the defaults. A missing file yields the defaults; any other read or
// parse failure is an error. Environment variables do not override
// config values; the only expansion performed is ${VAR} and
// ${VAR:-default} in paths for portability.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.expandVariables()
			return cfg, nil
		}
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	cfg.expandVariables()
	return cfg, nil
}

// LoginTimeoutDuration parses LoginTimeout. Validate has already
// checked the syntax, so a parse failure here falls back to the
// default.
func (c *Config) LoginTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.LoginTimeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}

	c.Vault.Path = expandVars(c.Vault.Path, vars)
	c.Vault.IdentityFile = expandVars(c.Vault.IdentityFile, vars)
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Vault.Path == "" {
		return fmt.Errorf("vault.path is required")
	}
	if c.Vault.IdentityFile == "" {
		return fmt.Errorf("vault.identity_file is required")
	}
	if c.LoginTimeout != "" {
		if d, err := time.ParseDuration(c.LoginTimeout); err != nil {
			return fmt.Errorf("invalid login_timeout %q: %w", c.LoginTimeout, err)
		} else if d <= 0 {
			return fmt.Errorf("login_timeout must be positive, got %q", c.LoginTimeout)
		}
	}
	return nil
}
