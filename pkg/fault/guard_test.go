package fault

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	faults "github.com/labelport/annotation_tool/pkg/errors"
)

func TestGuard_LogsCleansUpAndReraises(t *testing.T) {
	h := newHarness(t)
	cause := errors.New("canvas unavailable")
	cleanups := 0

	err := h.p.Guard(context.Background(), Scope{
		Op:      "SaveAnnotations",
		Args:    map[string]any{"image": "img_001.png"},
		OnError: func() { cleanups++ },
		Message: "Annotations could not be saved.",
	}, func(ctx context.Context) error {
		return cause
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, 1, cleanups)

	f, ok := faults.AsFault(err)
	require.True(t, ok)
	assert.Equal(t, faults.SeverityRecoverable, f.EffectiveSeverity())
	assert.Equal(t, "Annotations could not be saved.", f.Message)
	assert.Equal(t, "SaveAnnotations", f.Op)
	assert.Equal(t, faults.StatePresented, f.State())

	records := h.records(t)
	require.Len(t, records, 1)
	assert.Equal(t, "ERROR", records[0]["level"])
	assert.Equal(t, map[string]any{"image": "img_001.png"}, records[0]["args"])

	reqs := h.presenter.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "Annotations could not be saved.", reqs[0].Message)
	assert.Equal(t, faults.SeverityRecoverable, reqs[0].Severity)

	// The top-level hook only closes it: no second record or dialog, no exit
	assert.NoError(t, h.p.Handle(context.Background(), err))
	assert.Len(t, h.records(t), 1)
	assert.Equal(t, 1, h.presenter.Len())
	assert.Empty(t, h.exitCodes())
	assert.Equal(t, faults.StateControlReturned, f.State())
}

func TestGuard_Success(t *testing.T) {
	h := newHarness(t)
	called := false

	err := h.p.Guard(context.Background(), Scope{OnError: func() { called = true }}, func(ctx context.Context) error {
		return nil
	})
	assert.NoError(t, err)
	assert.False(t, called)
	assert.Empty(t, h.records(t))
	assert.Zero(t, h.presenter.Len())
}

func TestGuard_FatalCauseBecomesRecoverable(t *testing.T) {
	h := newHarness(t)
	cause := faults.New(faults.KindFileUpload, "upload failed")

	err := h.p.Guard(context.Background(), Scope{Op: "Upload"}, func(ctx context.Context) error {
		return cause
	})

	f, ok := faults.AsFault(err)
	require.True(t, ok)
	assert.Equal(t, faults.SeverityRecoverable, f.EffectiveSeverity())
	assert.True(t, faults.IsKind(err, faults.KindFileUpload))
	assert.Equal(t, faults.Lookup(faults.KindGenericRecoverable).Message, f.Message)

	records := h.records(t)
	require.Len(t, records, 1)
	assert.Equal(t, "FileUploadError", records[0]["cause_kind"])
}

func TestGuard_Panic(t *testing.T) {
	h := newHarness(t)
	cleanups := 0

	err := h.p.Guard(context.Background(), Scope{OnError: func() { cleanups++ }}, func(ctx context.Context) error {
		var m map[string]int
		m["x"] = 1
		return nil
	})

	require.Error(t, err)
	f, ok := faults.AsFault(err)
	require.True(t, ok)
	assert.Equal(t, faults.SeverityRecoverable, f.EffectiveSeverity())
	assert.Equal(t, 1, cleanups)
	assert.Len(t, h.records(t), 1)
}

func TestGuard_InterruptPassesThrough(t *testing.T) {
	h := newHarness(t)
	cleanups := 0

	err := h.p.Guard(context.Background(), Scope{OnError: func() { cleanups++ }}, func(ctx context.Context) error {
		return fmt.Errorf("waiting: %w", ErrInterrupted)
	})

	assert.ErrorIs(t, err, ErrInterrupted)
	_, isFault := faults.AsFault(err)
	assert.False(t, isFault)
	assert.Zero(t, cleanups)
	assert.Empty(t, h.records(t))
}

func TestGuard_Nested(t *testing.T) {
	h := newHarness(t)
	inner, outer := 0, 0

	err := h.p.Guard(context.Background(), Scope{Op: "outer", OnError: func() { outer++ }}, func(ctx context.Context) error {
		return h.p.Guard(ctx, Scope{Op: "inner", OnError: func() { inner++ }}, func(ctx context.Context) error {
			return errors.New("boom")
		})
	})

	require.Error(t, err)
	assert.Equal(t, 1, inner)
	assert.Equal(t, 1, outer)
	assert.Len(t, h.records(t), 1)
	assert.Equal(t, 1, h.presenter.Len())

	f, _ := faults.AsFault(err)
	assert.Equal(t, "inner", f.Op)
}

func TestDo(t *testing.T) {
	h := newHarness(t)

	n, err := Do(context.Background(), h.p, Scope{Op: "count"}, func(ctx context.Context) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	n, err = Do(context.Background(), h.p, Scope{Op: "count"}, func(ctx context.Context) (int, error) {
		return 7, errors.New("failed")
	})
	require.Error(t, err)
	assert.Zero(t, n)
}
