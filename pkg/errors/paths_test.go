package errors

import (
	"runtime/debug"
	"strings"
	"testing"
)

func TestSourcePath(t *testing.T) {
	tests := []struct {
		name string
		file string
		want string
	}{
		{"module file", moduleRoot + "/pkg/keycache/manager.go", "annotation_tool/pkg/keycache/manager.go"},
		{"module cache", "/home/dev/go/pkg/mod/golang.org/x/sync@v0.20.0/singleflight/singleflight.go", "golang.org/x/sync@v0.20.0/singleflight/singleflight.go"},
		{"goroot", "/usr/local/go/src/net/http/client.go", "net/http/client.go"},
		{"unknown absolute", "/opt/build/gen.go", "gen.go"},
		{"relative", "gen.go", "gen.go"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SourcePath(tt.file); got != tt.want {
				t.Errorf("SourcePath(%q) = %q, want %q", tt.file, got, tt.want)
			}
		})
	}
}

func TestTrimStack(t *testing.T) {
	stack := "goroutine 1 [running]:\n" +
		"github.com/labelport/annotation_tool/pkg/fault.fromPanic({0x1, 0x2})\n" +
		"\t" + moduleRoot + "/pkg/fault/pipeline.go:253 +0x45\n" +
		"runtime/debug.Stack()\n" +
		"\t/usr/local/go/src/runtime/debug/stack.go:26 +0x5e\n"

	got := TrimStack(stack)
	want := "goroutine 1 [running]:\n" +
		"github.com/labelport/annotation_tool/pkg/fault.fromPanic({0x1, 0x2})\n" +
		"\tannotation_tool/pkg/fault/pipeline.go:253 +0x45\n" +
		"runtime/debug.Stack()\n" +
		"\truntime/debug/stack.go:26 +0x5e\n"
	if got != want {
		t.Errorf("TrimStack() =\n%s\nwant\n%s", got, want)
	}
}

func TestTrimStack_LiveTrace(t *testing.T) {
	got := TrimStack(string(debug.Stack()))
	if strings.Contains(got, moduleRoot+"/") {
		t.Errorf("trace still contains %q:\n%s", moduleRoot, got)
	}
	if !strings.Contains(got, "\tannotation_tool/pkg/errors/paths_test.go:") {
		t.Errorf("test frame not rewritten:\n%s", got)
	}
}

func TestCaptureStack_UsesSourcePaths(t *testing.T) {
	f := New(KindDrawing, "x")
	if !strings.HasPrefix(f.File, ProjectDir+"/pkg/errors/") {
		t.Errorf("File = %q", f.File)
	}
	for _, frame := range f.Stack {
		if strings.HasPrefix(frame.File, moduleRoot+"/") {
			t.Errorf("frame keeps build path: %q", frame.File)
		}
	}
}
