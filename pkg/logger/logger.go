// Package logger provides the append-only structured error log of the
// annotation client.
//
// Records below Error are dropped. Every record is a single JSON object
// terminated by a newline:
//
//	{"timestamp":"2026-02-15 18:32:05","level":"CRITICAL","message":"...","logger":"Annotation Tool","trace":"*****annotation_tool/..."}
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// LevelCritical is logged for faults that terminate the process
const LevelCritical = slog.LevelError + 4

// Record field names
const (
	TimestampKey = "timestamp"
	LevelKey     = "level"
	MessageKey   = "message"
	NameKey      = "logger"
	TraceKey     = "trace"
)

// TimeFormat is the fixed timestamp layout of every record
const TimeFormat = "2006-01-02 15:04:05"

// DefaultName is used when Config.Name is empty
const DefaultName = "Annotation Tool"

var (
	globalLogger *Logger
	globalMu     sync.Mutex
)

// Logger wraps slog.Logger with the error log's record format
type Logger struct {
	*slog.Logger
	name   string
	closer io.Closer
}

// Config holds logger configuration
type Config struct {
	Path   string    // Log file, opened for append
	Name   string    // Logger name written into every record
	Writer io.Writer // Overrides Path when set
}

// lockedWriter serializes appends from concurrent callers
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (lw *lockedWriter) Write(p []byte) (int, error) {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	return lw.w.Write(p)
}

// New creates a new logger instance
func New(cfg Config) (*Logger, error) {
	if cfg.Name == "" {
		cfg.Name = DefaultName
	}

	var (
		writer io.Writer
		closer io.Closer
	)
	switch {
	case cfg.Writer != nil:
		writer = cfg.Writer
	case cfg.Path != "":
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		file, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		writer = file
		closer = file
	default:
		writer = os.Stderr
	}

	handler := slog.NewJSONHandler(&lockedWriter{w: writer}, &slog.HandlerOptions{
		Level:       slog.LevelError,
		ReplaceAttr: replaceAttr,
	})

	return &Logger{
		Logger: slog.New(handler).With(NameKey, cfg.Name),
		name:   cfg.Name,
		closer: closer,
	}, nil
}

// replaceAttr renames the built-in keys, fixes the timestamp layout, names
// the critical level and redacts traces
func replaceAttr(groups []string, a slog.Attr) slog.Attr {
	if len(groups) > 0 {
		return a
	}

	switch a.Key {
	case slog.TimeKey:
		return slog.String(TimestampKey, a.Value.Time().Format(TimeFormat))
	case slog.LevelKey:
		level, _ := a.Value.Any().(slog.Level)
		return slog.String(LevelKey, LevelName(level))
	case slog.MessageKey:
		a.Key = MessageKey
		return a
	case TraceKey:
		return slog.String(TraceKey, Redact(a.Value.String()))
	}
	return a
}

// LevelName returns the record level name
func LevelName(level slog.Level) string {
	if level >= LevelCritical {
		return "CRITICAL"
	}
	return level.String()
}

// Name returns the logger name
func (l *Logger) Name() string {
	return l.name
}

// Critical logs at LevelCritical
func (l *Logger) Critical(msg string, args ...any) {
	l.Log(context.Background(), LevelCritical, msg, args...)
}

// LogFault writes one record for a handled fault. The trace is redacted;
// extra fields are merged into the record.
func (l *Logger) LogFault(ctx context.Context, level slog.Level, msg, trace string, extra map[string]any) {
	attrs := make([]slog.Attr, 0, len(extra)+1)
	if trace != "" {
		attrs = append(attrs, slog.String(TraceKey, trace))
	}
	for k, v := range extra {
		attrs = append(attrs, slog.Any(k, v))
	}
	l.LogAttrs(ctx, level, msg, attrs...)
}

// Close releases the log file
func (l *Logger) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

// Initialize sets up the process-wide logger. Subsequent calls are no-ops
// until ResetForTesting.
func Initialize(cfg Config) error {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalLogger != nil {
		return nil
	}

	l, err := New(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	globalLogger = l
	return nil
}

// Global returns the process-wide logger, falling back to stderr when
// Initialize was not called
func Global() *Logger {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalLogger == nil {
		l, _ := New(Config{})
		return l
	}
	return globalLogger
}

// Shutdown closes the process-wide logger's file. Later calls to Global
// fall back to stderr.
func Shutdown() {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalLogger != nil {
		globalLogger.Close()
		globalLogger = nil
	}
}

// ResetForTesting discards the process-wide logger
func ResetForTesting() {
	Shutdown()
}
