package runtime

import (
	"context"
	"log/slog"
)

// Function is a named operation a step invokes.
type Function interface {
	Execute(call *Call, params map[string]any) (any, error)
}

// FunctionFunc adapts a plain func to Function.
type FunctionFunc func(call *Call, params map[string]any) (any, error)

func (f FunctionFunc) Execute(call *Call, params map[string]any) (any, error) {
	return f(call, params)
}

// Call is what a function receives besides its parameters. It implements
// context.Context and is cancelled with the run.
type Call struct {
	context.Context

	ExecutionID string
	FlowID      string
	StepID      string
	Function    string

	// Resource is the target chosen by the step's selector, or the
	// default resource.
	Resource Resource
	// Store is a read-only view of the flow's context.
	Store View
	Logger *slog.Logger
}
