// Package fault turns failures into classified, logged and presented events.
//
// A Pipeline is installed once around the main loop with Run. Errors that
// reach it and panics that escape are classified with the error taxonomy,
// written to the structured log, presented to the user and then either
// terminate the process (fatal) or return control (recoverable). Guard wraps
// a unit of work: it logs the failure with the invoking arguments, runs the
// configured cleanup and re-raises a recoverable fault.
//
// Each fault moves through Raised, Classified, Logged and Presented to one
// of Terminated or ControlReturned, and never back.
package fault

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"runtime/debug"
	"sync/atomic"

	faults "github.com/labelport/annotation_tool/pkg/errors"
	"github.com/labelport/annotation_tool/pkg/logger"
	"github.com/labelport/annotation_tool/pkg/notify"
)

// ErrInterrupted signals that the user stopped the program. It passes
// through the pipeline untouched.
var ErrInterrupted = errors.New("interrupted by user")

// ErrAlreadyInstalled is returned when a second pipeline is installed
var ErrAlreadyInstalled = errors.New("fault pipeline already installed")

var current atomic.Pointer[Pipeline]

// Store persists handled faults
type Store interface {
	Store(ctx context.Context, f *faults.Fault) error
}

// Recorder receives fault metrics
type Recorder interface {
	RecordFault(kind, severity string)
	RecordPresented(severity string)
}

// Config configures a Pipeline
type Config struct {
	Logger    *logger.Logger
	Presenter notify.Presenter
	Store     Store    // Optional
	Metrics   Recorder // Optional
	Exit      func(code int)
}

// Pipeline classifies, logs, presents and terminates or returns
type Pipeline struct {
	log       *logger.Logger
	presenter notify.Presenter
	store     Store
	metrics   Recorder
	exit      func(code int)
}

// New creates a pipeline. Missing collaborators default to the global
// logger, a console presenter and os.Exit.
func New(cfg Config) *Pipeline {
	if cfg.Logger == nil {
		cfg.Logger = logger.Global()
	}
	if cfg.Presenter == nil {
		cfg.Presenter = notify.NewConsole()
	}
	if cfg.Exit == nil {
		cfg.Exit = os.Exit
	}
	return &Pipeline{
		log:       cfg.Logger,
		presenter: cfg.Presenter,
		store:     cfg.Store,
		metrics:   cfg.Metrics,
		exit:      cfg.Exit,
	}
}

// Current returns the installed pipeline, or nil
func Current() *Pipeline {
	return current.Load()
}

// Install makes p the process-wide pipeline. The returned function
// uninstalls it.
func (p *Pipeline) Install() (func(), error) {
	if !current.CompareAndSwap(nil, p) {
		return nil, ErrAlreadyInstalled
	}
	return func() { current.CompareAndSwap(p, nil) }, nil
}

// Run installs p, runs fn and hands any error or panic escaping fn to the
// pipeline. It returns nil when control was returned after a recoverable
// fault.
func (p *Pipeline) Run(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	uninstall, err := p.Install()
	if err != nil {
		return err
	}
	defer uninstall()

	defer func() {
		if r := recover(); r != nil {
			err = p.Handle(ctx, fromPanic(r))
		}
	}()

	return p.Handle(ctx, fn(ctx))
}

// Go runs fn on a new goroutine with panics routed to the pipeline
func (p *Pipeline) Go(ctx context.Context, fn func(ctx context.Context)) {
	go func() {
		defer p.Recover(ctx)
		fn(ctx)
	}()
}

// Recover handles a panic in progress. It must be deferred directly.
func (p *Pipeline) Recover(ctx context.Context) {
	if r := recover(); r != nil {
		p.Handle(ctx, fromPanic(r))
	}
}

// Handle is the top-level hook. User interruptions are returned untouched.
// Faults already presented only get their close action. Anything else is
// classified, logged, presented and closed. Handle returns nil when control
// returns to the caller and the fault when the process was told to exit.
func (p *Pipeline) Handle(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if IsInterrupt(err) {
		return err
	}

	f, ok := faults.AsFault(err)
	if ok && f.Presented() {
		return p.close(f)
	}
	if !ok {
		f = faults.Wrap(faults.KindGenericFatal, err)
	}

	f.Advance(faults.StateClassified)
	severity := f.EffectiveSeverity()
	trace := f.RenderTrace()

	level := slog.LevelError
	if severity == faults.SeverityFatal {
		level = logger.LevelCritical
	}
	p.record(ctx, f, level, trace, nil)

	p.present(ctx, f, f.FormatSummary()+"\n\n"+trace)
	return p.close(f)
}

// record logs, stores and counts a fault, then marks it logged
func (p *Pipeline) record(ctx context.Context, f *faults.Fault, level slog.Level, trace string, extra map[string]any) {
	severity := f.EffectiveSeverity()

	fields := map[string]any{
		"trace_id": f.TraceID,
		"kind":     string(f.Kind),
		"severity": string(severity),
	}
	if f.Op != "" {
		fields["op"] = f.Op
	}
	for k, v := range extra {
		fields[k] = v
	}
	p.log.LogFault(ctx, level, f.Error(), trace, fields)

	if p.store != nil {
		if err := p.store.Store(context.WithoutCancel(ctx), f); err != nil {
			log.Printf("failed to store fault %s: %v", f.TraceID, err)
		}
	}
	if p.metrics != nil {
		p.metrics.RecordFault(string(f.Kind), string(severity))
	}
	f.Advance(faults.StateLogged)
}

// present shows f and blocks until dismissed. Only acknowledged
// presentations are counted.
func (p *Pipeline) present(ctx context.Context, f *faults.Fault, message string) {
	severity := f.EffectiveSeverity()
	title := "Warning"
	if severity == faults.SeverityFatal {
		title = notify.DefaultTitle
	}

	err := p.presenter.Present(ctx, notify.Request{
		Title:     title,
		Message:   message,
		Severity:  severity,
		OnDismiss: func() { f.Advance(faults.StatePresented) },
	})
	if err != nil {
		// The fault still moves on so a fatal one terminates; the log
		// records that nobody acknowledged it.
		p.log.Error("fault presentation failed, acknowledgement skipped",
			"trace_id", f.TraceID,
			"kind", string(f.Kind),
			"severity", string(severity),
			"acknowledged", false,
			"error", err.Error(),
		)
		f.Advance(faults.StatePresented)
		return
	}

	f.Advance(faults.StatePresented)
	if p.metrics != nil {
		p.metrics.RecordPresented(string(severity))
	}
}

// close terminates the process for fatal faults and returns control
// otherwise
func (p *Pipeline) close(f *faults.Fault) error {
	if f.EffectiveSeverity() == faults.SeverityFatal {
		f.Advance(faults.StateTerminated)
		p.exit(1)
		return f
	}
	f.Advance(faults.StateControlReturned)
	return nil
}

// IsInterrupt reports whether err signals a user-initiated stop
func IsInterrupt(err error) bool {
	return errors.Is(err, ErrInterrupted) || errors.Is(err, context.Canceled)
}

// fromPanic converts a recovered value into an error carrying the
// goroutine trace
func fromPanic(r any) error {
	if err, ok := r.(error); ok {
		if IsInterrupt(err) {
			return err
		}
		if f, ok := faults.AsFault(err); ok {
			if f.Trace == "" {
				f.Trace = faults.TrimStack(string(debug.Stack()))
			}
			return f
		}
	}

	b := faults.NewBuilder(faults.KindGenericFatal).WithTrace(faults.TrimStack(string(debug.Stack())))
	if err, ok := r.(error); ok {
		b.WithMessage("panic").Wrap(err)
	} else {
		b.WithMessagef("panic: %v", r)
	}
	return b.Build()
}
