package runtime

import (
	"fmt"
	"log/slog"
	"runtime/debug"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Invoker is the default StepExecutor. It calls the function inside a span
// and turns failures and panics into *StepExecutionError.
type Invoker struct {
	l *slog.Logger
}

func NewInvoker(l *slog.Logger) *Invoker {
	return &Invoker{l: l}
}

func (i *Invoker) Invoke(execution *Execution, step Step, fn Function, resource Resource, params map[string]any) (result any, err error) {
	if ctxErr := execution.Err(); ctxErr != nil {
		return nil, &StepExecutionError{Step: step.ID, Function: step.Function, Err: ctxErr}
	}

	ctx, span := tracer().Start(execution, "step "+step.ID,
		trace.WithAttributes(
			attribute.String("flowtest.flow", execution.Flow.ID),
			attribute.String("flowtest.step", step.ID),
			attribute.String("flowtest.function", step.Function),
		))
	defer span.End()

	call := &Call{
		Context:     ctx,
		ExecutionID: execution.ID,
		FlowID:      execution.Flow.ID,
		StepID:      step.ID,
		Function:    step.Function,
		Resource:    resource,
		Store:       execution.Store,
		Logger:      i.l.With("flow", execution.Flow.ID, "step", step.ID, "function", step.Function),
	}

	defer func() {
		if r := recover(); r != nil {
			i.l.ErrorContext(execution, fmt.Sprintf("Function %s panicked", step.Function),
				"step", step.ID,
				"panic", r,
				"stack", string(debug.Stack()))
			err = &StepExecutionError{Step: step.ID, Function: step.Function, Err: fmt.Errorf("panic: %v", r)}
			result = nil
			span.SetStatus(codes.Error, "panic")
		}
	}()

	result, err = fn.Execute(call, params)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, &StepExecutionError{Step: step.ID, Function: step.Function, Err: err}
	}
	return result, nil
}
