// Package annotation keeps local JSON records of the user's work with the
// portal.
package annotation

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// TimestampLayout names saved files, e.g. 2026-02-15_18-32-05
const TimestampLayout = "2006-01-02_15-04-05"

// LoadJSON decodes the JSON file at path into v
func LoadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

// SaveJSON writes v to path with four-space indentation. A symlink at path
// is replaced by a regular file instead of writing through it. Missing
// parent directories are created.
func SaveJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}

	if info, err := os.Lstat(path); err == nil && info.Mode()&os.ModeSymlink != 0 {
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("failed to remove symlink %s: %w", path, err)
		}
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// ValidJSON reports whether path holds parseable JSON
func ValidJSON(path string) bool {
	var v any
	return LoadJSON(path, &v) == nil
}

// TimestampString formats t for file names
func TimestampString(t time.Time) string {
	return t.Format(TimestampLayout)
}
