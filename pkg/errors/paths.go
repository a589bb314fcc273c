package errors

import (
	"path"
	"runtime"
	"strings"
)

// ProjectDir is the directory name source paths are reported under. Log
// redaction keys on it, so every path inside the module starts with it.
const ProjectDir = "annotation_tool"

// moduleRoot is the build-time directory of the module, e.g.
// /home/user/src/annotator or, with -trimpath, the module path
var moduleRoot = func() string {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		return ""
	}
	// <root>/pkg/errors/paths.go
	return path.Dir(path.Dir(path.Dir(file)))
}()

// SourcePath rewrites a build-time file path so it carries no local
// directory. Files of this module become ProjectDir/<relative path>,
// dependencies keep their module-cache relative path and standard library
// files their GOROOT/src relative path. Anything else is reduced to its
// base name.
func SourcePath(file string) string {
	if file == "" {
		return file
	}
	if moduleRoot != "" && strings.HasPrefix(file, moduleRoot+"/") {
		return ProjectDir + "/" + strings.TrimPrefix(file, moduleRoot+"/")
	}
	if i := strings.LastIndex(file, "/pkg/mod/"); i >= 0 {
		return file[i+len("/pkg/mod/"):]
	}
	if i := strings.LastIndex(file, "/src/"); i >= 0 {
		return file[i+len("/src/"):]
	}
	if path.IsAbs(file) {
		return path.Base(file)
	}
	return file
}

// TrimStack applies SourcePath to the file lines of a goroutine trace as
// produced by runtime/debug.Stack
func TrimStack(stack string) string {
	lines := strings.SplitAfter(stack, "\n")
	for i, line := range lines {
		if !strings.HasPrefix(line, "\t") {
			continue
		}
		body := strings.TrimPrefix(line, "\t")
		// "\t/abs/file.go:42 +0x1d"
		colon := strings.LastIndex(body, ".go:")
		if colon < 0 {
			continue
		}
		file := body[:colon+len(".go")]
		lines[i] = "\t" + SourcePath(file) + body[colon+len(".go"):]
	}
	return strings.Join(lines, "")
}
