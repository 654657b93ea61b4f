package runtime

import (
	"context"
	"errors"
	"fmt"
	"maps"
)

// FlowError is the serializable failure record attached to a flow report.
type FlowError struct {
	Kind     ErrorKind      `json:"kind"`
	Step     string         `json:"step"`
	Function string         `json:"function,omitempty"`
	Message  string         `json:"message"`
	Path     string         `json:"path,omitempty"`
	Meta     map[string]any `json:"meta,omitempty"`
}

func (e *FlowError) Error() string {
	return fmt.Sprintf("[%s] %s (step: %s)", e.Kind, e.Message, e.Step)
}

// ToMap converts the error to a map for JSON responses and expressions.
func (e *FlowError) ToMap() map[string]any {
	m := map[string]any{
		"kind":     string(e.Kind),
		"step":     e.Step,
		"function": e.Function,
		"message":  e.Message,
	}
	if e.Path != "" {
		m["path"] = e.Path
	}
	if len(e.Meta) > 0 {
		m["meta"] = e.Meta
	}
	return m
}

// NewFlowError builds the report record for err.
func NewFlowError(err error) *FlowError {
	if err == nil {
		return nil
	}

	fe := &FlowError{Kind: KindStepExecution, Message: err.Error()}

	var stepErr StepError
	if errors.As(err, &stepErr) {
		fe.Kind = stepErr.Kind()
		fe.Step = stepErr.StepID()
		fe.Function = stepErr.FunctionName()
	}

	var resolution *ContextResolutionError
	if errors.As(err, &resolution) {
		fe.Path = resolution.Path
	}

	var taskErr *TaskError
	if errors.As(err, &taskErr) && len(taskErr.Metadata) > 0 {
		fe.Meta = maps.Clone(taskErr.Metadata)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		fe.meta("cause", "deadline_exceeded")
	case errors.Is(err, context.Canceled):
		fe.meta("cause", "cancelled")
	}

	return fe
}

func (e *FlowError) meta(key string, value any) {
	if e.Meta == nil {
		e.Meta = make(map[string]any)
	}
	e.Meta[key] = value
}
