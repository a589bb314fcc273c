// Package config provides configuration management for the annotation client.
// Supports TOML configuration files with environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	faults "github.com/labelport/annotation_tool/pkg/errors"
	"github.com/labelport/annotation_tool/pkg/logger"
	"github.com/labelport/annotation_tool/pkg/portal"
)

// Fixed file names under the data directory
const (
	PublicKeyFileName = "public_key.pem"
	LogFileName       = "app_error_logs.json"
	ErrorStoreName    = "errors.db"
	SubmissionsDir    = "submissions"
)

var (
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingValue  = errors.New("missing required configuration value")
)

// Helper function to validate directory exists or can be created
func validateDirectoryWritable(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return fmt.Errorf("cannot create directory: %w", err)
			}
			return nil
		}
		return fmt.Errorf("cannot access directory: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("not a directory")
	}

	testFile := filepath.Join(dir, ".write_test")
	f, err := os.Create(testFile)
	if err != nil {
		return fmt.Errorf("cannot write to directory: %w", err)
	}
	f.Close()
	os.Remove(testFile)

	return nil
}

// Config holds all client configuration
type Config struct {
	// Portal connection
	Portal PortalConfig `toml:"portal"`

	// Local storage
	Storage StorageConfig `toml:"storage"`

	// Error log sink
	Logging LoggingConfig `toml:"logging"`

	// Error history store
	Errors ErrorsConfig `toml:"errors"`

	// Notification surface
	Notifications NotificationsConfig `toml:"notifications"`

	// Metrics export
	Metrics MetricsConfig `toml:"metrics"`
}

// PortalConfig holds annotation portal settings
type PortalConfig struct {
	// APIURL is the portal base URL, e.g. https://portal.example.com
	APIURL string `toml:"api_url" env:"ANNOTATOR_API_URL"`

	// Token is the API token sent as "Authorization: Token <token>"
	Token string `toml:"token" env:"ANNOTATOR_TOKEN"`

	// Timeout bounds each portal request, e.g. "10s"
	Timeout string `toml:"timeout" env:"ANNOTATOR_TIMEOUT"`

	// RequestsPerSecond paces portal calls (0 = unlimited)
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// StorageConfig holds local data settings
type StorageConfig struct {
	// DataDir holds the persisted public key and the error history
	DataDir string `toml:"data_dir" env:"ANNOTATOR_DATA_DIR"`
}

// LoggingConfig holds error log settings
type LoggingConfig struct {
	// File is the append-only log sink (default <data_dir>/app_error_logs.json)
	File string `toml:"file" env:"ANNOTATOR_LOG_FILE"`

	// LoggerName is written as the "logger" field of every record
	LoggerName string `toml:"logger_name"`
}

// ErrorsConfig holds error history settings
type ErrorsConfig struct {
	// StoreEnabled persists every handled fault to SQLite
	StoreEnabled bool `toml:"store_enabled" env:"ANNOTATOR_ERROR_STORE"`

	// StorePath overrides <data_dir>/errors.db
	StorePath string `toml:"store_path"`

	// RetentionDays keeps resolved faults this long
	RetentionDays int `toml:"retention_days"`

	// CleanupSchedule is a cron expression for purging old resolved faults
	CleanupSchedule string `toml:"cleanup_schedule"`
}

// NotificationsConfig holds notification surface settings
type NotificationsConfig struct {
	// Mode is "console" (interactive) or "headless" (print and continue)
	Mode string `toml:"mode" env:"ANNOTATOR_NOTIFY_MODE"`
}

// MetricsConfig holds metrics export settings
type MetricsConfig struct {
	// Textfile receives a Prometheus text exposition on exit (empty = disabled)
	Textfile string `toml:"textfile"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		Portal: PortalConfig{
			APIURL:            "",
			Token:             "",
			Timeout:           "10s",
			RequestsPerSecond: 5,
		},
		Storage: StorageConfig{
			DataDir: filepath.Join(homeDir, ".annotation_tool"),
		},
		Logging: LoggingConfig{
			File:       "",
			LoggerName: "Annotation Tool",
		},
		Errors: ErrorsConfig{
			StoreEnabled:    true,
			StorePath:       "",
			RetentionDays:   30,
			CleanupSchedule: "@every 6h",
		},
		Notifications: NotificationsConfig{
			Mode: "console",
		},
	}
}

// ConfigPaths returns the default config file search locations
func ConfigPaths() []string {
	homeDir, _ := os.UserHomeDir()
	return []string{
		filepath.Join(homeDir, ".annotation_tool", "config.toml"),
		"./config.toml",
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.Storage.DataDir == "" {
		return fmt.Errorf("%w: storage.data_dir is required", ErrInvalidConfig)
	}
	if err := validateDirectoryWritable(c.Storage.DataDir); err != nil {
		return fmt.Errorf("%w: data directory %s: %w", ErrInvalidConfig, c.Storage.DataDir, err)
	}

	if c.Portal.Timeout != "" {
		if d, err := time.ParseDuration(c.Portal.Timeout); err != nil || d <= 0 {
			return fmt.Errorf("%w: portal.timeout must be a positive duration", ErrInvalidConfig)
		}
	}
	if c.Portal.RequestsPerSecond < 0 {
		return fmt.Errorf("%w: portal.requests_per_second cannot be negative", ErrInvalidConfig)
	}

	validModes := map[string]bool{
		"console":  true,
		"headless": true,
	}
	if !validModes[c.Notifications.Mode] {
		return fmt.Errorf("%w: notifications.mode must be one of: console, headless", ErrInvalidConfig)
	}

	if c.Errors.RetentionDays < 0 {
		return fmt.Errorf("%w: errors.retention_days cannot be negative", ErrInvalidConfig)
	}

	return nil
}

// RequirePortal reports whether the portal section is usable
func (c *Config) RequirePortal() error {
	if c.Portal.APIURL == "" {
		return fmt.Errorf("%w: portal.api_url", ErrMissingValue)
	}
	if c.Portal.Token == "" {
		return fmt.Errorf("%w: portal.token", ErrMissingValue)
	}
	return nil
}

// PublicKeyPath returns the persisted public key location
func (c *Config) PublicKeyPath() string {
	return filepath.Join(c.Storage.DataDir, PublicKeyFileName)
}

// SubmissionsPath returns the directory of local task completion records
func (c *Config) SubmissionsPath() string {
	return filepath.Join(c.Storage.DataDir, SubmissionsDir)
}

// LogFilePath returns the error log sink location
func (c *Config) LogFilePath() string {
	if c.Logging.File != "" {
		return c.Logging.File
	}
	return filepath.Join(c.Storage.DataDir, LogFileName)
}

// PortalTimeout returns the parsed request timeout
func (c *Config) PortalTimeout() time.Duration {
	d, err := time.ParseDuration(c.Portal.Timeout)
	if err != nil || d <= 0 {
		return portal.DefaultTimeout
	}
	return d
}

// ToPortalConfig converts to portal.ClientConfig
func (c *Config) ToPortalConfig() portal.ClientConfig {
	return portal.ClientConfig{
		BaseURL:           c.Portal.APIURL,
		Token:             c.Portal.Token,
		Timeout:           c.PortalTimeout(),
		RequestsPerSecond: c.Portal.RequestsPerSecond,
	}
}

// ToLoggerConfig converts to logger.Config
func (c *Config) ToLoggerConfig() logger.Config {
	return logger.Config{
		Path: c.LogFilePath(),
		Name: c.Logging.LoggerName,
	}
}

// ToStoreConfig converts to the error store configuration
func (c *Config) ToStoreConfig() faults.StoreConfig {
	path := c.Errors.StorePath
	if path == "" {
		path = filepath.Join(c.Storage.DataDir, ErrorStoreName)
	}
	return faults.StoreConfig{
		Path:          path,
		RetentionDays: c.Errors.RetentionDays,
	}
}
