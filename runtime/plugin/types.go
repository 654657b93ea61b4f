package plugin

import "github.com/BDNK1/flowtest/runtime"

type Input = map[string]any

type Output = map[string]any

// Call is passed to every function. It implements context.Context.
type Call = runtime.Call

// Resource is an opaque target handle such as a session or connection.
type Resource = runtime.Resource

// View is the read-only context store.
type View = runtime.View

// TaskError carries metadata about a failure into the flow report.
type TaskError = runtime.TaskError

func NewTaskError(err error) *TaskError {
	return runtime.NewTaskError(err)
}

// Stringify returns the text form a value takes inside a placeholder.
func Stringify(v any) string {
	return runtime.Stringify(v)
}

// Unresolved reports whether text still holds a {{...}} placeholder.
func Unresolved(text string) bool {
	return runtime.HasPlaceholder(text)
}

// ToStringValueMap stringifies parameter values, e.g. for headers.
func ToStringValueMap(m map[string]any) map[string]string {
	return runtime.ToStringValueMap(m)
}

// Decode fills a typed struct from parameters by json tag and runs its
// validate tags.
func Decode(params Input, target any) error {
	return runtime.DecodeParams(params, target)
}

// DataGenerator produces values for {{$dynamic.*}} placeholders.
type DataGenerator = runtime.DataGenerator

// NewDataGenerator returns the generator behind {{$dynamic.*}} placeholders.
func NewDataGenerator() DataGenerator {
	return runtime.NewDynamicGenerator()
}
