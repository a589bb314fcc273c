package errors

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// ErrorStore persists handled faults to SQLite
type ErrorStore struct {
	db            *sql.DB
	path          string
	mu            sync.RWMutex
	retentionDays int
}

// StoreConfig configures the error store
type StoreConfig struct {
	Path          string // Path to SQLite database file
	RetentionDays int    // Days to keep resolved faults (0 = default 30)
}

// NewErrorStore opens (and migrates) the store at cfg.Path
func NewErrorStore(cfg StoreConfig) (*ErrorStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("error store path is required")
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 30
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0750); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	db, err := sql.Open("sqlite", cfg.Path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &ErrorStore{
		db:            db,
		path:          cfg.Path,
		retentionDays: cfg.RetentionDays,
	}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

func (s *ErrorStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS faults (
			trace_id     TEXT PRIMARY KEY,
			kind         TEXT NOT NULL,
			severity     TEXT NOT NULL,
			message      TEXT NOT NULL,
			trace_json   TEXT NOT NULL,
			first_seen   TIMESTAMP NOT NULL,
			last_seen    TIMESTAMP NOT NULL,
			occurrences  INTEGER DEFAULT 1,
			resolved     BOOLEAN DEFAULT FALSE,
			resolved_by  TEXT,
			resolved_at  TIMESTAMP
		);

		CREATE INDEX IF NOT EXISTS idx_faults_kind ON faults(kind);
		CREATE INDEX IF NOT EXISTS idx_faults_severity ON faults(severity);
		CREATE INDEX IF NOT EXISTS idx_faults_resolved ON faults(resolved);
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// StoredError represents a fault retrieved from the store
type StoredError struct {
	TraceID     string     `json:"trace_id"`
	Kind        Kind       `json:"kind"`
	Severity    Severity   `json:"severity"`
	Message     string     `json:"message"`
	Fault       *Fault     `json:"fault,omitempty"`
	FirstSeen   time.Time  `json:"first_seen"`
	LastSeen    time.Time  `json:"last_seen"`
	Occurrences int        `json:"occurrences"`
	Resolved    bool       `json:"resolved"`
	ResolvedBy  string     `json:"resolved_by,omitempty"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
}

// Store persists a fault. An unresolved row of the same kind is updated
// instead of inserting a new one.
func (s *ErrorStore) Store(ctx context.Context, f *Fault) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	traceJSON, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("failed to serialize fault: %w", err)
	}

	var existingTraceID string
	queryErr := s.db.QueryRowContext(ctx,
		"SELECT trace_id FROM faults WHERE kind = ? AND resolved = FALSE ORDER BY last_seen DESC LIMIT 1",
		string(f.Kind),
	).Scan(&existingTraceID)

	if queryErr == nil && existingTraceID != "" {
		_, err = s.db.ExecContext(ctx, `
			UPDATE faults SET
				trace_json = ?,
				message = ?,
				last_seen = ?,
				occurrences = occurrences + 1
			WHERE trace_id = ?
		`,
			string(traceJSON),
			f.Message,
			f.Timestamp,
			existingTraceID,
		)
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO faults (trace_id, kind, severity, message, trace_json, first_seen, last_seen, occurrences)
		VALUES (?, ?, ?, ?, ?, ?, ?, 1)
	`,
		f.TraceID,
		string(f.Kind),
		string(f.EffectiveSeverity()),
		f.Message,
		string(traceJSON),
		f.Timestamp,
		f.Timestamp,
	)
	return err
}

// ErrorQuery defines parameters for querying faults
type ErrorQuery struct {
	TraceID  string   // Filter by trace ID
	Kind     Kind     // Filter by kind
	Severity Severity // Filter by severity
	Resolved *bool    // Filter by resolved status (nil = all)
	Since    time.Time
	Limit    int // Max results (default 20, max 1000)
	Offset   int
}

// Query retrieves faults matching the query parameters, most recent first
func (s *ErrorStore) Query(ctx context.Context, q ErrorQuery) ([]StoredError, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if q.Limit <= 0 {
		q.Limit = 20
	}
	if q.Limit > 1000 {
		q.Limit = 1000
	}

	query := "SELECT trace_id, kind, severity, message, trace_json, first_seen, last_seen, occurrences, resolved, resolved_by, resolved_at FROM faults WHERE 1=1"
	args := []any{}

	if q.TraceID != "" {
		query += " AND trace_id = ?"
		args = append(args, q.TraceID)
	}
	if q.Kind != "" {
		query += " AND kind = ?"
		args = append(args, string(q.Kind))
	}
	if q.Severity != "" {
		query += " AND severity = ?"
		args = append(args, string(q.Severity))
	}
	if q.Resolved != nil {
		query += " AND resolved = ?"
		args = append(args, *q.Resolved)
	}
	if !q.Since.IsZero() {
		query += " AND last_seen >= ?"
		args = append(args, q.Since)
	}

	query += " ORDER BY last_seen DESC LIMIT ? OFFSET ?"
	args = append(args, q.Limit, q.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var results []StoredError
	for rows.Next() {
		var se StoredError
		var traceJSON string
		var resolvedAt sql.NullTime
		var resolvedBy sql.NullString

		err := rows.Scan(
			&se.TraceID,
			&se.Kind,
			&se.Severity,
			&se.Message,
			&traceJSON,
			&se.FirstSeen,
			&se.LastSeen,
			&se.Occurrences,
			&se.Resolved,
			&resolvedBy,
			&resolvedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}

		f := &Fault{}
		if json.Unmarshal([]byte(traceJSON), f) == nil {
			se.Fault = f
		}
		if resolvedBy.Valid {
			se.ResolvedBy = resolvedBy.String
		}
		if resolvedAt.Valid {
			se.ResolvedAt = &resolvedAt.Time
		}

		results = append(results, se)
	}

	return results, rows.Err()
}

// Get retrieves a single fault by trace ID
func (s *ErrorStore) Get(ctx context.Context, traceID string) (*StoredError, error) {
	results, err := s.Query(ctx, ErrorQuery{TraceID: traceID, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("fault not found: %s", traceID)
	}
	return &results[0], nil
}

// Resolve marks a fault as resolved
func (s *ErrorStore) Resolve(ctx context.Context, traceID, resolvedBy string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, `
		UPDATE faults SET
			resolved = TRUE,
			resolved_by = ?,
			resolved_at = ?
		WHERE trace_id = ?
	`, resolvedBy, time.Now(), traceID)
	if err != nil {
		return fmt.Errorf("resolve failed: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("fault not found: %s", traceID)
	}
	return nil
}

// Cleanup removes resolved faults older than the retention period
func (s *ErrorStore) Cleanup(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().AddDate(0, 0, -s.retentionDays)

	result, err := s.db.ExecContext(ctx,
		"DELETE FROM faults WHERE resolved = TRUE AND resolved_at < ?",
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("cleanup failed: %w", err)
	}
	return result.RowsAffected()
}

// StoreStats holds statistics about the error store
type StoreStats struct {
	TotalErrors      int              `json:"total_errors"`
	UnresolvedErrors int              `json:"unresolved_errors"`
	BySeverity       map[Severity]int `json:"by_severity"`
}

// Stats returns statistics about stored faults
func (s *ErrorStore) Stats(ctx context.Context) (StoreStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats StoreStats

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM faults").Scan(&stats.TotalErrors); err != nil {
		return stats, err
	}
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM faults WHERE resolved = FALSE",
	).Scan(&stats.UnresolvedErrors); err != nil {
		return stats, err
	}

	rows, err := s.db.QueryContext(ctx, "SELECT severity, COUNT(*) FROM faults GROUP BY severity")
	if err != nil {
		return stats, err
	}
	defer rows.Close()

	stats.BySeverity = make(map[Severity]int)
	for rows.Next() {
		var sev string
		var count int
		if err := rows.Scan(&sev, &count); err != nil {
			return stats, err
		}
		stats.BySeverity[Severity(sev)] = count
	}
	return stats, rows.Err()
}

// Close closes the database connection
func (s *ErrorStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// Path returns the database file path
func (s *ErrorStore) Path() string {
	return s.path
}
