package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg == nil {
		t.Fatal("DefaultConfig returned nil")
	}
	if cfg.Storage.DataDir == "" {
		t.Error("DataDir should not be empty")
	}
	if cfg.Logging.LoggerName != "Annotation Tool" {
		t.Errorf("LoggerName = %q, want %q", cfg.Logging.LoggerName, "Annotation Tool")
	}
	if cfg.Notifications.Mode != "console" {
		t.Errorf("Mode = %q, want console", cfg.Notifications.Mode)
	}
	if !cfg.Errors.StoreEnabled {
		t.Error("StoreEnabled should default to true")
	}
	if cfg.PortalTimeout() != 10*time.Second {
		t.Errorf("PortalTimeout() = %v, want 10s", cfg.PortalTimeout())
	}
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Storage.DataDir = t.TempDir()

	if err := cfg.Validate(); err != nil {
		t.Errorf("default validation failed: %v", err)
	}

	cfg.Storage.DataDir = ""
	if err := cfg.Validate(); err == nil {
		t.Error("Expected validation error for empty DataDir")
	}

	cfg = DefaultConfig()
	cfg.Storage.DataDir = t.TempDir()
	cfg.Portal.Timeout = "soon"
	if err := cfg.Validate(); err == nil {
		t.Error("Expected validation error for bad timeout")
	}

	cfg = DefaultConfig()
	cfg.Storage.DataDir = t.TempDir()
	cfg.Notifications.Mode = "popup"
	if err := cfg.Validate(); err == nil {
		t.Error("Expected validation error for unknown notification mode")
	}
}

func TestDerivedPaths(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Storage.DataDir = "/data"

	if got := cfg.PublicKeyPath(); got != filepath.Join("/data", "public_key.pem") {
		t.Errorf("PublicKeyPath() = %q", got)
	}
	if got := cfg.SubmissionsPath(); got != filepath.Join("/data", "submissions") {
		t.Errorf("SubmissionsPath() = %q", got)
	}
	if got := cfg.LogFilePath(); got != filepath.Join("/data", "app_error_logs.json") {
		t.Errorf("LogFilePath() = %q", got)
	}
	if got := cfg.ToStoreConfig().Path; got != filepath.Join("/data", "errors.db") {
		t.Errorf("store path = %q", got)
	}

	cfg.Logging.File = "/var/log/annotator.json"
	if got := cfg.ToLoggerConfig().Path; got != "/var/log/annotator.json" {
		t.Errorf("logger path = %q", got)
	}
}

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	cfg := DefaultConfig()
	cfg.Storage.DataDir = dir
	cfg.Portal.APIURL = "https://portal.test"
	cfg.Portal.Token = "secret"
	cfg.Notifications.Mode = "headless"

	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("config mode = %v, want 0600", info.Mode().Perm())
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Portal.APIURL != "https://portal.test" {
		t.Errorf("APIURL = %q", loaded.Portal.APIURL)
	}
	if loaded.Notifications.Mode != "headless" {
		t.Errorf("Mode = %q", loaded.Notifications.Mode)
	}
	if err := loaded.RequirePortal(); err != nil {
		t.Errorf("RequirePortal() error = %v", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	cfg := DefaultConfig()
	cfg.Storage.DataDir = dir
	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	t.Setenv("ANNOTATOR_API_URL", "https://override.test")
	t.Setenv("ANNOTATOR_TOKEN", "tok")
	t.Setenv("ANNOTATOR_ERROR_STORE", "false")

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Portal.APIURL != "https://override.test" {
		t.Errorf("APIURL = %q", loaded.Portal.APIURL)
	}
	if loaded.Portal.Token != "tok" {
		t.Errorf("Token = %q", loaded.Portal.Token)
	}
	if loaded.Errors.StoreEnabled {
		t.Error("StoreEnabled should be overridden to false")
	}

	t.Setenv("ANNOTATOR_ERROR_STORE", "maybe")
	if _, err := Load(path); err == nil {
		t.Error("expected error for unparsable ANNOTATOR_ERROR_STORE")
	}
}
