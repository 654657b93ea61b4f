package runtime

// TaskError lets a function return details alongside its failure, such as
// the HTTP status it received. The metadata is carried into the flow report.
type TaskError struct {
	Err      error
	Metadata map[string]any
}

func (e *TaskError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return "task failed"
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

func NewTaskError(err error) *TaskError {
	return &TaskError{
		Err:      err,
		Metadata: make(map[string]any),
	}
}

func (e *TaskError) WithMetadata(key string, value any) *TaskError {
	e.Metadata[key] = value
	return e
}

func (e *TaskError) WithMetadataMap(metadata map[string]any) *TaskError {
	for k, v := range metadata {
		e.Metadata[k] = v
	}
	return e
}

// WithType tags the failure, e.g. "assertion" or "transport".
func (e *TaskError) WithType(errorType string) *TaskError {
	e.Metadata["type"] = errorType
	return e
}

func (e *TaskError) Type() string {
	if t, ok := e.Metadata["type"].(string); ok {
		return t
	}
	return ""
}
