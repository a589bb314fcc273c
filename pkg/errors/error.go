package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// State is the position of a fault in its handling lifecycle
type State int32

const (
	StateRaised State = iota
	StateClassified
	StateLogged
	StatePresented
	StateTerminated
	StateControlReturned
)

func (s State) String() string {
	switch s {
	case StateRaised:
		return "raised"
	case StateClassified:
		return "classified"
	case StateLogged:
		return "logged"
	case StatePresented:
		return "presented"
	case StateTerminated:
		return "terminated"
	case StateControlReturned:
		return "control_returned"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// StackFrame represents a single frame in the call stack
type StackFrame struct {
	Function string `json:"function"`
	File     string `json:"file"`
	Line     int    `json:"line"`
}

// Fault is a structured error with the context needed to classify, log and
// surface it
type Fault struct {
	Kind     Kind     `json:"kind"`
	Severity Severity `json:"severity,omitempty"`
	TraceID  string   `json:"trace_id"`

	// Message is shown to the user
	Message string `json:"message"`
	Op      string `json:"op,omitempty"`
	File    string `json:"file"`
	Line    int    `json:"line"`

	Inputs map[string]any `json:"inputs,omitempty"`
	Stack  []StackFrame   `json:"stack,omitempty"`

	// Trace is a preformatted trace, e.g. from a recovered panic
	Trace string `json:"trace,omitempty"`

	Timestamp time.Time `json:"timestamp"`

	cause error
	state atomic.Int32
}

// Error implements the error interface
func (f *Fault) Error() string {
	if f.cause != nil {
		return fmt.Sprintf("%s: %s: %v", f.Kind, f.Message, f.cause)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

// Unwrap returns the underlying cause
func (f *Fault) Unwrap() error {
	return f.cause
}

// Cause returns the wrapped error, if any
func (f *Fault) Cause() error {
	return f.cause
}

// EffectiveSeverity returns the explicit severity tag, or the taxonomy
// classification of the kind when untagged
func (f *Fault) EffectiveSeverity() Severity {
	if f.Severity != "" {
		return f.Severity
	}
	return Classify(f.Kind)
}

// State returns the current lifecycle state
func (f *Fault) State() State {
	return State(f.state.Load())
}

// Advance moves the fault to a later state. It reports false and leaves the
// state unchanged when to is not after the current state.
func (f *Fault) Advance(to State) bool {
	for {
		cur := f.state.Load()
		if int32(to) <= cur {
			return false
		}
		if cur >= int32(StateTerminated) {
			return false
		}
		if f.state.CompareAndSwap(cur, int32(to)) {
			return true
		}
	}
}

// Presented reports whether the fault was already shown to the user
func (f *Fault) Presented() bool {
	return f.State() >= StatePresented
}

// RenderTrace returns a human-readable diagnostic trace: the error chain
// followed by the preformatted trace or the captured frames
func (f *Fault) RenderTrace() string {
	var sb strings.Builder

	sb.WriteString(f.Error())
	sb.WriteString("\n")

	if f.Trace != "" {
		sb.WriteString(f.Trace)
		return sb.String()
	}

	for _, frame := range f.Stack {
		sb.WriteString(frame.Function)
		sb.WriteString("\n\t")
		sb.WriteString(fmt.Sprintf("%s:%d\n", frame.File, frame.Line))
	}
	return sb.String()
}

// FormatSummary returns the text presented to the user
func (f *Fault) FormatSummary() string {
	var sb strings.Builder

	sb.WriteString(f.Message)
	if f.cause != nil {
		sb.WriteString(fmt.Sprintf(": %v", f.cause))
	}
	sb.WriteString("\n\n")

	if help := Lookup(f.Kind).Help; help != "" {
		sb.WriteString(help)
		sb.WriteString("\n")
	}
	sb.WriteString(fmt.Sprintf("Trace ID: %s\n", f.TraceID))
	sb.WriteString(f.Timestamp.Format("2006-01-02 15:04:05"))

	return sb.String()
}

func generateTraceID() string {
	return "tr_" + uuid.NewString()
}

// captureStack captures the current call stack, skipping the specified number of frames
func captureStack(skip int) []StackFrame {
	var frames []StackFrame

	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip+2, pcs)
	if n == 0 {
		return frames
	}

	callers := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := callers.Next()

		if !strings.HasPrefix(frame.Function, "runtime.") {
			frames = append(frames, StackFrame{
				Function: frame.Function,
				File:     SourcePath(frame.File),
				Line:     frame.Line,
			})
		}

		if frame.Function == "main.main" || !more {
			break
		}
	}

	return frames
}

// Builder constructs Fault instances with a fluent API
type Builder struct {
	f *Fault
}

// NewBuilder creates a new fault builder for the given kind
func NewBuilder(kind Kind) *Builder {
	return newBuilder(kind, 1)
}

func newBuilder(kind Kind, skip int) *Builder {
	_, file, line, _ := runtime.Caller(skip + 1)

	return &Builder{
		f: &Fault{
			Kind:      kind,
			Message:   Lookup(kind).Message,
			TraceID:   generateTraceID(),
			Timestamp: time.Now(),
			File:      SourcePath(file),
			Line:      line,
			Inputs:    make(map[string]any),
			Stack:     captureStack(skip + 1),
		},
	}
}

// Wrap wraps an existing error with this kind
func (b *Builder) Wrap(cause error) *Builder {
	b.f.cause = cause
	return b
}

// WithMessage sets the user-visible message
func (b *Builder) WithMessage(msg string) *Builder {
	b.f.Message = msg
	return b
}

// WithMessagef sets a formatted user-visible message
func (b *Builder) WithMessagef(format string, args ...any) *Builder {
	b.f.Message = fmt.Sprintf(format, args...)
	return b
}

// WithSeverity tags the fault with an explicit severity
func (b *Builder) WithSeverity(sev Severity) *Builder {
	b.f.Severity = sev
	return b
}

// WithOp sets the operation name where the fault occurred
func (b *Builder) WithOp(op string) *Builder {
	b.f.Op = op
	return b
}

// WithInputs sets the invoking arguments
func (b *Builder) WithInputs(inputs map[string]any) *Builder {
	if inputs != nil {
		b.f.Inputs = inputs
	}
	return b
}

// WithInput adds a single invoking argument
func (b *Builder) WithInput(key string, value any) *Builder {
	b.f.Inputs[key] = value
	return b
}

// WithTrace attaches a preformatted trace
func (b *Builder) WithTrace(trace string) *Builder {
	b.f.Trace = trace
	return b
}

// Build creates the final Fault
func (b *Builder) Build() *Fault {
	if len(b.f.Inputs) == 0 {
		b.f.Inputs = nil
	}
	return b.f
}

// Quick constructors for common use cases

// New creates a fault with a kind and message
func New(kind Kind, message string) *Fault {
	return newBuilder(kind, 1).WithMessage(message).Build()
}

// Newf creates a fault with a formatted message
func Newf(kind Kind, format string, args ...any) *Fault {
	return newBuilder(kind, 1).WithMessagef(format, args...).Build()
}

// Wrap wraps an error with a kind and the kind's default message
func Wrap(kind Kind, cause error) *Fault {
	return newBuilder(kind, 1).Wrap(cause).Build()
}

// WrapWithMessage wraps an error with a kind and custom message
func WrapWithMessage(kind Kind, cause error, message string) *Fault {
	return newBuilder(kind, 1).Wrap(cause).WithMessage(message).Build()
}

// AsFault finds the first Fault in err's chain
func AsFault(err error) (*Fault, bool) {
	var f *Fault
	if stderrors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// IsKind reports whether err's chain contains a Fault of the given kind
func IsKind(err error, kind Kind) bool {
	for err != nil {
		if f, ok := err.(*Fault); ok && f.Kind == kind {
			return true
		}
		err = stderrors.Unwrap(err)
	}
	return false
}
