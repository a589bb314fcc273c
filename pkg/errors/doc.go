// Package errors provides the fault model of the annotation client: a fixed
// taxonomy of fault kinds, a structured fault type carrying traces, and a
// SQLite-backed history of handled faults.
//
// # Kinds and Severity
//
// Every fault carries a Kind. The taxonomy maps each kind to exactly one
// Severity:
//   - Recoverable: logged, surfaced, execution continues
//   - Fatal: logged, surfaced, the process terminates after acknowledgment
//
// Only WebServerApiError and DrawingError are Recoverable. Every other kind,
// including kinds this package does not know about, is Fatal. The table is
// fixed at compile time; there is no per-call configuration.
//
// # Quick Start
//
//	err := errors.NewBuilder(errors.KindFileUpload).
//	    Wrap(ioErr).
//	    WithOp("UploadImage").
//	    WithInput("path", path).
//	    Build()
//
// A Fault may also carry an explicit severity tag (WithSeverity). The fault
// pipeline uses the tag when present and falls back to Classify otherwise.
//
// # Lifecycle
//
// A Fault moves through Raised → Classified → Logged → Presented and ends in
// Terminated or ControlReturned. Advance only moves forward, so a fault that
// was already presented is never presented again.
//
// # History
//
// ErrorStore keeps one row per unresolved kind with an occurrence count, so
// repeated faults of the same kind do not flood the table.
package errors
