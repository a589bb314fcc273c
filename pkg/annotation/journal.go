package annotation

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	faults "github.com/labelport/annotation_tool/pkg/errors"
)

// Submission states
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Submission is the local record of one task completion sent to the portal
type Submission struct {
	ProjectUID int       `json:"project_uid"`
	Hours      float64   `json:"duration_hours"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	TraceID    string    `json:"trace_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	path string
}

// Path returns the record file
func (s *Submission) Path() string {
	return s.path
}

// Journal stores one JSON file per submission, named
// <project uid>_<timestamp>.json
type Journal struct {
	dir string
	now func() time.Time
}

// NewJournal creates a journal in dir. The directory is created on first
// write.
func NewJournal(dir string) *Journal {
	return &Journal{dir: dir, now: time.Now}
}

// Dir returns the journal directory
func (j *Journal) Dir() string {
	return j.dir
}

// Begin records a pending submission
func (j *Journal) Begin(projectUID int, hours float64) (*Submission, error) {
	now := j.now()
	s := &Submission{
		ProjectUID: projectUID,
		Hours:      hours,
		Status:     StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
		path:       filepath.Join(j.dir, fmt.Sprintf("%d_%s.json", projectUID, TimestampString(now))),
	}
	if err := SaveJSON(s.path, s); err != nil {
		return nil, err
	}
	return s, nil
}

// Complete marks s as accepted by the portal
func (j *Journal) Complete(s *Submission) error {
	s.Status = StatusCompleted
	s.Error = ""
	return j.update(s)
}

// Fail marks s as rejected. The trace ID of a fault cause is kept so the
// record can be matched with the error log.
func (j *Journal) Fail(s *Submission, cause error) error {
	s.Status = StatusFailed
	if cause != nil {
		s.Error = cause.Error()
		if f, ok := faults.AsFault(cause); ok {
			s.TraceID = f.TraceID
		}
	}
	return j.update(s)
}

func (j *Journal) update(s *Submission) error {
	s.UpdatedAt = j.now()
	return SaveJSON(s.path, s)
}

// List returns all records, newest first. Files that are not valid JSON are
// skipped.
func (j *Journal) List() ([]Submission, error) {
	entries, err := os.ReadDir(j.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", j.dir, err)
	}

	var out []Submission
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		path := filepath.Join(j.dir, e.Name())
		if !ValidJSON(path) {
			continue
		}
		var s Submission
		if err := LoadJSON(path, &s); err != nil {
			continue
		}
		s.path = path
		out = append(out, s)
	}

	sort.Slice(out, func(a, b int) bool {
		return out[a].CreatedAt.After(out[b].CreatedAt)
	})
	return out, nil
}
