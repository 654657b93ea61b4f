package runtime

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Executor runs the steps of a flow in declaration order, stopping at the
// first failure. For each step it composes parameters, selects the target
// resource, deep-resolves, invokes the function and extracts results.
type Executor struct {
	l            *slog.Logger
	composer     ParameterComposer
	resolver     *Resolver
	evaluator    ExpressionEvaluator
	stepExecutor StepExecutor
	metrics      instruments
}

func NewExecutor(l *slog.Logger, composer ParameterComposer, resolver *Resolver, evaluator ExpressionEvaluator, stepExecutor StepExecutor) *Executor {
	if resolver == nil {
		resolver = NewResolver(nil)
	}
	return &Executor{
		l:            l,
		composer:     composer,
		resolver:     resolver,
		evaluator:    evaluator,
		stepExecutor: stepExecutor,
		metrics:      newInstruments(),
	}
}

// ExecuteSteps runs the execution to completion. The returned error is the
// failure that stopped the flow; it is also recorded on the execution.
func (e *Executor) ExecuteSteps(execution *Execution) error {
	// started from the wrapped context: the span context becomes the
	// execution's own context below
	ctx, span := tracer().Start(execution.ctx, "flow "+execution.Flow.ID,
		trace.WithAttributes(
			attribute.String("flowtest.flow", execution.Flow.ID),
			attribute.String("flowtest.execution", execution.ID),
		))
	defer span.End()

	var err error
	execution.WithScopedContext(ctx, func() {
		err = e.run(execution)
	})

	e.metrics.flows.Add(ctx, 1, metric.WithAttributes(
		attribute.String("flow", execution.Flow.ID),
		attribute.String("state", string(execution.State)),
	))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (e *Executor) run(execution *Execution) error {
	execution.State = StateRunning
	execution.StartedAt = time.Now()
	e.l.InfoContext(execution, fmt.Sprintf("Starting flow: %s", execution.Flow.ID),
		"execution", execution.ID,
		"steps", len(execution.Flow.Steps))

	if err := e.loadTestData(execution); err != nil {
		return e.fail(execution, err)
	}

	for _, s := range execution.Flow.Steps {
		outcome, err := e.executeStep(execution, s)
		execution.Steps = append(execution.Steps, outcome)
		e.metrics.steps.Add(execution, 1, metric.WithAttributes(
			attribute.String("function", s.Function),
			attribute.String("outcome", string(outcome.Outcome)),
		))
		e.metrics.stepDuration.Record(execution, outcome.Duration.Seconds(), metric.WithAttributes(
			attribute.String("function", s.Function),
		))
		if err != nil {
			return e.fail(execution, err)
		}
	}

	execution.Current = ""
	execution.State = StateCompleted
	execution.FinishedAt = time.Now()
	e.l.InfoContext(execution, fmt.Sprintf("Flow completed: %s", execution.Flow.ID),
		"execution", execution.ID,
		"duration", execution.FinishedAt.Sub(execution.StartedAt))
	return nil
}

func (e *Executor) fail(execution *Execution, err error) error {
	execution.State = StateFailed
	execution.FinishedAt = time.Now()
	execution.Failure = NewFlowError(err)
	e.l.ErrorContext(execution, fmt.Sprintf("Flow failed: %s", execution.Flow.ID),
		"execution", execution.ID,
		"step", execution.Failure.Step,
		"kind", execution.Failure.Kind,
		"error", err)
	return err
}

// loadTestData composes the flow's test data files and inline test data
// into the testData namespace.
func (e *Executor) loadTestData(execution *Execution) error {
	flow := execution.Flow
	data := map[string]any{}

	if len(flow.TestDataFiles) > 0 {
		composed, err := e.composer.Compose(execution, flow, flow.TestDataFiles)
		if err != nil {
			return &CompositionError{Step: "test_data", Err: err}
		}
		data = composed
	}
	for k, v := range flow.TestData {
		data[k] = CloneTree(v)
	}
	for k, v := range execution.Overrides {
		data[k] = CloneTree(v)
	}

	execution.Store.load(NamespaceTestData, data)
	return nil
}

func (e *Executor) executeStep(execution *Execution, step Step) (StepOutcome, error) {
	started := time.Now()
	execution.Current = step.ID
	outcome := StepOutcome{StepID: step.ID, Function: step.Function, Description: step.Description}

	finish := func(o Outcome, err error) (StepOutcome, error) {
		outcome.Outcome = o
		outcome.Duration = time.Since(started)
		if err != nil {
			outcome.Error = err.Error()
		}
		return outcome, err
	}

	skip, err := e.shouldSkip(execution, step)
	if err != nil {
		return finish(OutcomeFailed, &StepExecutionError{Step: step.ID, Function: step.Function, Err: err})
	}
	if skip {
		e.l.InfoContext(execution, fmt.Sprintf("Skipping step: %s", step.ID), "condition", step.Condition)
		return finish(OutcomeSkipped, nil)
	}

	fn, ok := execution.Container.Lookup(step.Function)
	if !ok {
		return finish(OutcomeFailed, &FunctionNotFoundError{Step: step.ID, Function: step.Function})
	}

	raw, err := e.composer.Compose(execution, execution.Flow, step.Parameters)
	if err != nil {
		return finish(OutcomeFailed, &CompositionError{Step: step.ID, Function: step.Function, Err: err})
	}

	selection, err := e.resolver.Select(raw, execution.Store, execution.DefaultResource)
	if err != nil {
		var resolution *ContextResolutionError
		if errors.As(err, &resolution) {
			resolution.Step = step.ID
			resolution.Function = step.Function
		}
		return finish(OutcomeFailed, err)
	}
	outcome.Resource = selection.Path

	params := selection.Resolve(execution.Store)

	if len(step.SaveFromRequest) > 0 {
		if err := e.extract(execution, step, "request", params, step.SaveFromRequest); err != nil {
			return finish(OutcomeFailed, &StepExecutionError{Step: step.ID, Function: step.Function, Err: err})
		}
	}

	e.l.InfoContext(execution, fmt.Sprintf("Executing step: %s", step.ID),
		"function", step.Function,
		"resource", resourceLabel(selection))

	result, err := e.stepExecutor.Invoke(execution, step, fn, selection.Resource, params)
	if err != nil {
		return finish(OutcomeFailed, err)
	}

	if err := execution.Store.Set(NamespaceSteps+"."+step.ID, result); err != nil {
		return finish(OutcomeFailed, &StepExecutionError{Step: step.ID, Function: step.Function, Err: err})
	}

	if len(step.SaveFromResponse) > 0 {
		if err := e.extract(execution, step, "response", result, step.SaveFromResponse); err != nil {
			return finish(OutcomeFailed, &StepExecutionError{Step: step.ID, Function: step.Function, Err: err})
		}
	}

	return finish(OutcomePassed, nil)
}

// shouldSkip evaluates the step condition. An empty condition never skips.
func (e *Executor) shouldSkip(execution *Execution, step Step) (bool, error) {
	if step.Condition == "" || e.evaluator == nil {
		return false, nil
	}

	result, err := e.evaluator.Eval(step.Condition, execution.Values())
	if err != nil {
		e.l.ErrorContext(execution, fmt.Sprintf("Error evaluating condition for step %s", step.ID),
			"condition", step.Condition,
			"error", err)
		return false, fmt.Errorf("error evaluating condition %s: %w", step.Condition, err)
	}

	met, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("condition %s evaluated to %T, expected boolean", step.Condition, result)
	}
	return !met, nil
}

func resourceLabel(sel *Selection) string {
	if sel.Defaulted() {
		if sel.Resource == nil {
			return "none"
		}
		return "default"
	}
	return sel.Path
}
