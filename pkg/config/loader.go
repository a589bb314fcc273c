package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
)

// Load loads configuration from a file path
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	// If path is empty, search for default config files
	if path == "" {
		for _, p := range ConfigPaths() {
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else {
		log.Printf("Warning: No configuration file found, using defaults")
		log.Printf("Create a config with: annotator init")
	}

	// Environment overrides apply with or without a file
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration
func applyEnvOverrides(cfg *Config) error {
	// Portal overrides
	if v := os.Getenv("ANNOTATOR_API_URL"); v != "" {
		cfg.Portal.APIURL = v
	}
	if v := os.Getenv("ANNOTATOR_TOKEN"); v != "" {
		cfg.Portal.Token = v
	}
	if v := os.Getenv("ANNOTATOR_TIMEOUT"); v != "" {
		cfg.Portal.Timeout = v
	}

	// Storage overrides
	if v := os.Getenv("ANNOTATOR_DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}

	// Logging overrides
	if v := os.Getenv("ANNOTATOR_LOG_FILE"); v != "" {
		cfg.Logging.File = v
	}

	// Error store overrides
	if v := os.Getenv("ANNOTATOR_ERROR_STORE"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("ANNOTATOR_ERROR_STORE: %w", err)
		}
		cfg.Errors.StoreEnabled = enabled
	}

	// Notification overrides
	if v := os.Getenv("ANNOTATOR_NOTIFY_MODE"); v != "" {
		cfg.Notifications.Mode = v
	}

	return nil
}

// Save saves the configuration to a file
func Save(cfg *Config, path string) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("cannot save invalid configuration: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Normalize paths for TOML compatibility (forward slashes, no backslashes)
	cfgCopy := *cfg
	cfgCopy.Storage.DataDir = filepath.ToSlash(cfg.Storage.DataDir)
	if cfgCopy.Logging.File != "" {
		cfgCopy.Logging.File = filepath.ToSlash(cfgCopy.Logging.File)
	}
	if cfgCopy.Errors.StorePath != "" {
		cfgCopy.Errors.StorePath = filepath.ToSlash(cfgCopy.Errors.StorePath)
	}

	data, err := toml.Marshal(&cfgCopy)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration: %w", err)
	}

	// The file carries the portal token
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GenerateExampleConfig generates an example configuration file
func GenerateExampleConfig(path string) error {
	cfg := DefaultConfig()

	cfg.Portal.APIURL = "https://portal.example.com"
	cfg.Portal.Token = "change-me"

	return Save(cfg, path)
}
