package logger

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func decodeRecords(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var records []map[string]any
	scanner := bufio.NewScanner(buf)
	for scanner.Scan() {
		var rec map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("line is not JSON: %q: %v", scanner.Text(), err)
		}
		records = append(records, rec)
	}
	return records
}

func TestLogger_DropsBelowError(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{Writer: &buf})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	l.Debug("debug")
	l.Info("info")
	l.Warn("warn")

	if buf.Len() != 0 {
		t.Errorf("records below Error were written: %q", buf.String())
	}
}

func TestLogger_RecordShape(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{Writer: &buf, Name: "Annotation Tool"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	l.Error("portal unreachable")
	l.Critical("key unavailable")

	records := decodeRecords(t, &buf)
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}

	first := records[0]
	if first["level"] != "ERROR" {
		t.Errorf("level = %v, want ERROR", first["level"])
	}
	if first["message"] != "portal unreachable" {
		t.Errorf("message = %v", first["message"])
	}
	if first["logger"] != "Annotation Tool" {
		t.Errorf("logger = %v", first["logger"])
	}
	ts, _ := first["timestamp"].(string)
	if _, err := time.Parse(TimeFormat, ts); err != nil {
		t.Errorf("timestamp %q does not match %s", ts, TimeFormat)
	}
	for _, key := range []string{"time", "msg"} {
		if _, ok := first[key]; ok {
			t.Errorf("built-in key %q should be renamed", key)
		}
	}

	if records[1]["level"] != "CRITICAL" {
		t.Errorf("level = %v, want CRITICAL", records[1]["level"])
	}
}

func TestLogger_LogFault(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{Writer: &buf})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	trace := "main.run\n\t/home/alice/src/annotation_tool/foo.go:10\n"
	l.LogFault(context.Background(), slog.LevelError, "drawing failed", trace, map[string]any{
		"trace_id": "tr_1",
		"kind":     "DrawingError",
	})

	records := decodeRecords(t, &buf)
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	rec := records[0]
	if rec["trace_id"] != "tr_1" || rec["kind"] != "DrawingError" {
		t.Errorf("extra fields not merged: %v", rec)
	}

	got, _ := rec["trace"].(string)
	if strings.Contains(got, "alice") {
		t.Errorf("trace leaks local path: %q", got)
	}
	if !strings.Contains(got, "\n"+RedactionMask+"annotation_tool/foo.go:10") {
		t.Errorf("trace = %q", got)
	}
}

func TestLogger_ConcurrentAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "app_error_logs.json")
	l, err := New(Config{Path: path})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			l.Error("concurrent", "n", i)
		}(i)
	}
	wg.Wait()
	l.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	records := decodeRecords(t, bytes.NewBuffer(data))
	if len(records) != 20 {
		t.Errorf("got %d records, want 20", len(records))
	}
}

func TestLogger_AppendsToExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app_error_logs.json")
	if err := os.WriteFile(path, []byte(`{"message":"old"}`+"\n"), 0644); err != nil {
		t.Fatal(err)
	}

	l, err := New(Config{Path: path})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	l.Error("new")
	l.Close()

	data, _ := os.ReadFile(path)
	records := decodeRecords(t, bytes.NewBuffer(data))
	if len(records) != 2 || records[0]["message"] != "old" {
		t.Errorf("existing records not preserved: %s", data)
	}
}

func TestGlobal(t *testing.T) {
	ResetForTesting()
	defer ResetForTesting()

	if Global() == nil {
		t.Fatal("Global() should fall back to a stderr logger")
	}

	var buf bytes.Buffer
	if err := Initialize(Config{Writer: &buf, Name: "test"}); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if err := Initialize(Config{Name: "ignored"}); err != nil {
		t.Fatalf("second Initialize() error = %v", err)
	}
	if Global().Name() != "test" {
		t.Errorf("Name() = %q, want test", Global().Name())
	}
}

func TestLevelName(t *testing.T) {
	tests := []struct {
		level slog.Level
		want  string
	}{
		{slog.LevelError, "ERROR"},
		{LevelCritical, "CRITICAL"},
		{LevelCritical + 1, "CRITICAL"},
	}
	for _, tt := range tests {
		if got := LevelName(tt.level); got != tt.want {
			t.Errorf("LevelName(%v) = %q, want %q", tt.level, got, tt.want)
		}
	}
}
