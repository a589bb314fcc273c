package fault

import (
	"context"
	"log/slog"

	faults "github.com/labelport/annotation_tool/pkg/errors"
)

// Scope describes a guarded unit of work
type Scope struct {
	// Op names the unit of work in logs
	Op string
	// Args are the invoking arguments, logged with the failure
	Args map[string]any
	// OnError runs once as a cleanup side effect before the fault is
	// re-raised. It never replaces propagation.
	OnError func()
	// Message is shown to the user
	Message string
}

// Guard runs fn. If fn fails or panics, the failure is logged at Error with
// the scope's arguments, OnError is invoked, and a recoverable fault
// carrying the scope's message is presented and returned. Guard never
// swallows a failure.
func (p *Pipeline) Guard(ctx context.Context, scope Scope, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = p.escalate(ctx, scope, fromPanic(r))
		}
	}()

	if err := fn(ctx); err != nil {
		return p.escalate(ctx, scope, err)
	}
	return nil
}

// Do is Guard for work that returns a value
func Do[T any](ctx context.Context, p *Pipeline, scope Scope, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := p.Guard(ctx, scope, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func (p *Pipeline) escalate(ctx context.Context, scope Scope, err error) error {
	if IsInterrupt(err) {
		return err
	}

	// Already shown by an inner scope
	if f, ok := faults.AsFault(err); ok && f.Presented() {
		runCleanup(scope)
		return err
	}

	message := scope.Message
	if message == "" {
		message = faults.Lookup(faults.KindGenericRecoverable).Message
	}

	raised := faults.NewBuilder(faults.KindGenericRecoverable).
		Wrap(err).
		WithSeverity(faults.SeverityRecoverable).
		WithOp(scope.Op).
		WithInputs(scope.Args).
		WithMessage(message).
		Build()
	raised.Advance(faults.StateClassified)

	trace := raised.RenderTrace()
	extra := map[string]any{}
	if len(scope.Args) > 0 {
		extra["args"] = scope.Args
	}
	if cause, ok := faults.AsFault(err); ok {
		extra["cause_kind"] = string(cause.Kind)
		trace = raised.Error() + "\n" + cause.RenderTrace()
	}
	p.record(ctx, raised, slog.LevelError, trace, extra)

	runCleanup(scope)

	p.present(ctx, raised, message)
	return raised
}

func runCleanup(scope Scope) {
	if scope.OnError != nil {
		scope.OnError()
	}
}
