package fault

import (
	"context"
	"errors"
	"path"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	faults "github.com/labelport/annotation_tool/pkg/errors"
	"github.com/labelport/annotation_tool/pkg/logger"
)

// buildDir is the directory this test was compiled from
func buildDir(t *testing.T) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)
	// <root>/pkg/fault/trace_test.go
	return path.Dir(path.Dir(path.Dir(file)))
}

func assertRedacted(t *testing.T, trace, root string) {
	t.Helper()
	require.NotEmpty(t, trace)
	assert.NotContains(t, trace, root+"/", "trace exposes the build directory")
	assert.Contains(t, trace, logger.RedactionMask+faults.ProjectDir+"/pkg/fault/")

	for _, line := range strings.Split(trace, "\n") {
		if strings.Contains(line, "/pkg/fault/") {
			assert.True(t, strings.HasPrefix(line, logger.RedactionMask), "line not masked: %q", line)
		}
	}
}

func TestHandle_TraceHidesBuildDirectory(t *testing.T) {
	h := newHarness(t)
	root := buildDir(t)

	h.p.Handle(context.Background(), errors.New("boom"))

	records := h.records(t)
	require.Len(t, records, 1)
	trace, _ := records[0]["trace"].(string)
	assertRedacted(t, trace, root)
}

func TestRun_PanicTraceHidesBuildDirectory(t *testing.T) {
	h := newHarness(t)
	root := buildDir(t)

	h.p.Run(context.Background(), func(ctx context.Context) error {
		panic("index out of range")
	})

	records := h.records(t)
	require.Len(t, records, 1)
	trace, _ := records[0]["trace"].(string)
	assertRedacted(t, trace, root)
}

func TestGuard_TraceHidesBuildDirectory(t *testing.T) {
	h := newHarness(t)
	root := buildDir(t)

	h.p.Guard(context.Background(), Scope{Op: "save"}, func(ctx context.Context) error {
		return faults.New(faults.KindFileUpload, "upload failed")
	})

	records := h.records(t)
	require.Len(t, records, 1)
	trace, _ := records[0]["trace"].(string)
	assertRedacted(t, trace, root)

	require.Len(t, h.store.stored, 1)
	for _, frame := range h.store.stored[0].Stack {
		assert.False(t, strings.HasPrefix(frame.File, root+"/"), "stored frame %q", frame.File)
	}
}
