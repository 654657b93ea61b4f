package runtime

import "context"

// FlowLoader loads flow definitions from files.
type FlowLoader interface {
	Extensions() []string
	Load(filePath string) (Flow, error)
}

// ParameterComposer deep-merges a step's fragment sources, in order, into
// one fresh parameter tree. Later fragments win on key collisions.
type ParameterComposer interface {
	Compose(ctx context.Context, flow *Flow, sources []FragmentSource) (map[string]any, error)
}

// ExpressionEvaluator evaluates step conditions against a snapshot of the store.
type ExpressionEvaluator interface {
	Eval(expression string, values map[string]any) (any, error)
}

// StepExecutor invokes a resolved function with its target resource and
// fully resolved parameters.
type StepExecutor interface {
	Invoke(execution *Execution, step Step, fn Function, resource Resource, params map[string]any) (any, error)
}
