package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestFault_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Fault
		expected string
	}{
		{
			name: "fault without cause",
			err: &Fault{
				Kind:    KindFileUpload,
				Message: "file upload failed",
			},
			expected: "FileUploadError: file upload failed",
		},
		{
			name: "fault with cause",
			err: &Fault{
				Kind:    KindFileUpload,
				Message: "file upload failed",
				cause:   errors.New("connection reset"),
			},
			expected: "FileUploadError: file upload failed: connection reset",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestFault_Unwrap(t *testing.T) {
	cause := errors.New("underlying error")
	f := Wrap(KindDrawing, cause)

	if f.Unwrap() != cause {
		t.Errorf("Unwrap() = %v, want %v", f.Unwrap(), cause)
	}
	if !errors.Is(f, cause) {
		t.Error("errors.Is() should return true for wrapped error")
	}

	outer := fmt.Errorf("saving: %w", f)
	got, ok := AsFault(outer)
	if !ok || got != f {
		t.Error("AsFault should find the fault through fmt wrapping")
	}
	if !IsKind(outer, KindDrawing) {
		t.Error("IsKind should match through fmt wrapping")
	}
	if IsKind(outer, KindWebServerAPI) {
		t.Error("IsKind should not match another kind")
	}
}

func TestFault_EffectiveSeverity(t *testing.T) {
	f := New(KindFileDownload, "boom")
	if f.EffectiveSeverity() != SeverityFatal {
		t.Errorf("untagged FileDownloadError = %q, want fatal", f.EffectiveSeverity())
	}

	tagged := NewBuilder(KindFileDownload).WithSeverity(SeverityRecoverable).Build()
	if tagged.EffectiveSeverity() != SeverityRecoverable {
		t.Errorf("tagged = %q, want recoverable", tagged.EffectiveSeverity())
	}
}

func TestFault_Advance(t *testing.T) {
	f := New(KindGenericFatal, "x")

	if f.State() != StateRaised {
		t.Fatalf("initial state = %v", f.State())
	}
	if !f.Advance(StateClassified) || !f.Advance(StateLogged) {
		t.Fatal("forward transitions should succeed")
	}
	if f.Advance(StateClassified) {
		t.Error("backward transition should fail")
	}
	if f.Presented() {
		t.Error("fault should not be presented yet")
	}
	if !f.Advance(StatePresented) || !f.Presented() {
		t.Fatal("fault should be presented")
	}
	if !f.Advance(StateTerminated) {
		t.Fatal("presented -> terminated should succeed")
	}
	if f.Advance(StateControlReturned) {
		t.Error("no transition out of a terminal state")
	}
	if f.State() != StateTerminated {
		t.Errorf("state = %v, want terminated", f.State())
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("disk full")
	f := NewBuilder(KindFileDownload).
		Wrap(cause).
		WithOp("DownloadImages").
		WithInput("project", 42).
		WithMessagef("could not save %d images", 3).
		Build()

	if f.TraceID == "" || !strings.HasPrefix(f.TraceID, "tr_") {
		t.Errorf("TraceID = %q", f.TraceID)
	}
	if f.Message != "could not save 3 images" {
		t.Errorf("Message = %q", f.Message)
	}
	if f.Inputs["project"] != 42 {
		t.Errorf("Inputs = %v", f.Inputs)
	}
	if len(f.Stack) == 0 {
		t.Error("stack should be captured")
	}
	if !strings.HasSuffix(f.File, "error_test.go") {
		t.Errorf("File = %q, want caller file", f.File)
	}

	empty := NewBuilder(KindDrawing).Build()
	if empty.Inputs != nil {
		t.Error("empty inputs should be dropped")
	}
	if empty.Message != Lookup(KindDrawing).Message {
		t.Errorf("default message = %q", empty.Message)
	}
}

func TestFault_RenderTrace(t *testing.T) {
	f := &Fault{
		Kind:    KindGenericFatal,
		Message: "panic",
		Stack: []StackFrame{
			{Function: "main.run", File: "/src/annotation_tool/cmd/annotator/main.go", Line: 10},
		},
	}
	trace := f.RenderTrace()
	if !strings.Contains(trace, "main.run\n\t/src/annotation_tool/cmd/annotator/main.go:10") {
		t.Errorf("RenderTrace() = %q", trace)
	}

	f.Trace = "goroutine 1 [running]:\n"
	if !strings.HasSuffix(f.RenderTrace(), "goroutine 1 [running]:\n") {
		t.Error("preformatted trace should take precedence")
	}
}

func TestFault_FormatSummary(t *testing.T) {
	f := &Fault{
		Kind:      KindWebServerAPI,
		Message:   "Unable to get projects data. 502",
		TraceID:   "tr_abc",
		Timestamp: time.Date(2026, 2, 15, 18, 32, 5, 0, time.UTC),
	}

	summary := f.FormatSummary()
	for _, want := range []string{"Unable to get projects data. 502", "tr_abc", "2026-02-15 18:32:05", Lookup(KindWebServerAPI).Help} {
		if !strings.Contains(summary, want) {
			t.Errorf("summary missing %q:\n%s", want, summary)
		}
	}
}
