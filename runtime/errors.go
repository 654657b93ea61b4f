package runtime

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why a flow stopped.
type ErrorKind string

const (
	KindComposition       ErrorKind = "CompositionError"
	KindContextResolution ErrorKind = "ContextResolutionError"
	KindFunctionNotFound  ErrorKind = "FunctionNotFoundError"
	KindStepExecution     ErrorKind = "StepExecutionError"

	// KindSetup marks a flow that failed before its first step ran.
	KindSetup ErrorKind = "SetupError"
)

var (
	ErrComposition       = errors.New("parameter composition failed")
	ErrContextResolution = errors.New("context selector could not be resolved")
	ErrFunctionNotFound  = errors.New("function not found")
	ErrStepExecution     = errors.New("step execution failed")

	ErrFlowNotFound = errors.New("flow not found")

	ErrInvalidPath       = errors.New("invalid context path")
	ErrUnknownNamespace  = errors.New("unknown context namespace")
	ErrReadOnlyNamespace = errors.New("context namespace is read-only")

	ErrEmptyFlowID       = errors.New("flow id is empty")
	ErrNoSteps           = errors.New("flow has no steps")
	ErrEmptyStepID       = errors.New("step_id is empty")
	ErrInvalidStepID     = errors.New("step_id must contain only letters, digits and underscores")
	ErrDuplicateStepID   = errors.New("duplicate step_id")
	ErrEmptyFunction     = errors.New("function is empty")
	ErrAmbiguousFragment = errors.New("fragment source must set exactly one of file, inline or ref")
	ErrUnknownFragment   = errors.New("unknown fragment reference")
)

// StepError is implemented by every error that aborts a flow at a step.
type StepError interface {
	error
	Kind() ErrorKind
	StepID() string
	FunctionName() string
}

// CompositionError reports a fragment that could not be read or merged.
type CompositionError struct {
	Step     string
	Function string
	Err      error
}

func (e *CompositionError) Error() string {
	return fmt.Sprintf("step %s (%s): compose parameters: %v", e.Step, e.Function, e.Err)
}

func (e *CompositionError) Unwrap() error        { return e.Err }
func (e *CompositionError) Is(target error) bool { return target == ErrComposition }
func (e *CompositionError) Kind() ErrorKind      { return KindComposition }
func (e *CompositionError) StepID() string       { return e.Step }
func (e *CompositionError) FunctionName() string { return e.Function }

// ContextResolutionError reports a selector that names a path with no
// resource bound to it.
type ContextResolutionError struct {
	Step     string
	Function string
	// Path is the context path the selector resolved to.
	Path string
	// Selector is the raw selector text.
	Selector string
}

func (e *ContextResolutionError) Error() string {
	return fmt.Sprintf("step %s (%s): context selector %q resolved to path %q which is not bound",
		e.Step, e.Function, e.Selector, e.Path)
}

func (e *ContextResolutionError) Is(target error) bool { return target == ErrContextResolution }
func (e *ContextResolutionError) Kind() ErrorKind      { return KindContextResolution }
func (e *ContextResolutionError) StepID() string       { return e.Step }
func (e *ContextResolutionError) FunctionName() string { return e.Function }

// FunctionNotFoundError reports a step naming an unregistered function.
type FunctionNotFoundError struct {
	Step     string
	Function string
}

func (e *FunctionNotFoundError) Error() string {
	return fmt.Sprintf("step %s: function %q is not registered", e.Step, e.Function)
}

func (e *FunctionNotFoundError) Is(target error) bool { return target == ErrFunctionNotFound }
func (e *FunctionNotFoundError) Kind() ErrorKind      { return KindFunctionNotFound }
func (e *FunctionNotFoundError) StepID() string       { return e.Step }
func (e *FunctionNotFoundError) FunctionName() string { return e.Function }

// StepExecutionError wraps the failure of a function invocation.
type StepExecutionError struct {
	Step     string
	Function string
	Err      error
}

func (e *StepExecutionError) Error() string {
	return fmt.Sprintf("step %s (%s): %v", e.Step, e.Function, e.Err)
}

func (e *StepExecutionError) Unwrap() error        { return e.Err }
func (e *StepExecutionError) Is(target error) bool { return target == ErrStepExecution }
func (e *StepExecutionError) Kind() ErrorKind      { return KindStepExecution }
func (e *StepExecutionError) StepID() string       { return e.Step }
func (e *StepExecutionError) FunctionName() string { return e.Function }
