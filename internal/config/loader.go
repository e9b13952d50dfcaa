package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"shopauth/pkg/logging"

	"github.com/caarlos0/env/v10"
	"gopkg.in/yaml.v3"
)

const (
	userConfigDir  = ".config/shopauth"
	configFileName = "config.yaml"
)

// osUserHomeDir is replaceable in tests.
var osUserHomeDir = os.UserHomeDir

// DefaultConfigDir returns ~/.config/shopauth.
func DefaultConfigDir() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine user config directory: %w", err)
	}
	return filepath.Join(homeDir, userConfigDir), nil
}

// LoadConfig loads configuration from configDir/config.yaml, layered over
// the defaults and overridden by environment variables. A missing file is
// not an error.
func LoadConfig(configDir string) (Config, error) {
	cfg := GetDefaultConfig(configDir)
	configFilePath := filepath.Join(configDir, configFileName)

	data, err := os.ReadFile(configFilePath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logging.Debug("ConfigLoader", "No config.yaml found at %s, using defaults", configFilePath)
	case err != nil:
		return Config{}, &ConfigurationError{FilePath: configFilePath, Message: "cannot read file", Err: err}
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, &ConfigurationError{FilePath: configFilePath, Message: "malformed YAML", Err: err}
		}
		logging.Info("ConfigLoader", "Loaded configuration from %s", configFilePath)
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}

	cfg.normalize()
	return cfg, nil
}

func (c *Config) normalize() {
	c.Identity.Authority = strings.TrimSuffix(strings.TrimSpace(c.Identity.Authority), "/")
	c.Identity.AuthorityPhone = strings.TrimSuffix(strings.TrimSpace(c.Identity.AuthorityPhone), "/")
	c.API.BaseURL = strings.TrimSuffix(strings.TrimSpace(c.API.BaseURL), "/")
	c.DefaultLocale = strings.ToLower(strings.TrimSpace(c.DefaultLocale))
	c.Storage.Backend = StorageBackend(strings.ToLower(string(c.Storage.Backend)))
	if strings.HasPrefix(c.Storage.Dir, "~/") {
		if home, err := osUserHomeDir(); err == nil {
			c.Storage.Dir = filepath.Join(home, c.Storage.Dir[2:])
		}
	}
}
