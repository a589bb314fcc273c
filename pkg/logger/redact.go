package logger

import "strings"

// RedactionMarker is the project root token in file paths
const RedactionMarker = "annotation_tool/"

// RedactionMask replaces everything before the marker
const RedactionMask = "*****"

// Redact hides local path prefixes in a trace. On every line containing the
// marker, the text before its first occurrence is replaced by RedactionMask;
// lines without the marker are kept as is.
func Redact(trace string) string {
	if !strings.Contains(trace, RedactionMarker) {
		return trace
	}

	lines := strings.SplitAfter(trace, "\n")
	for i, line := range lines {
		if idx := strings.Index(line, RedactionMarker); idx >= 0 {
			lines[i] = RedactionMask + line[idx:]
		}
	}
	return strings.Join(lines, "")
}
