package runtime

import (
	"fmt"
)

const (
	NamespaceFlow     = "flow"
	NamespaceSteps    = "steps"
	NamespaceTestData = "testData"
	NamespaceProcess  = "process"
)

var namespaces = map[string]struct{}{
	NamespaceFlow:     {},
	NamespaceSteps:    {},
	NamespaceTestData: {},
	NamespaceProcess:  {},
}

// IsNamespace reports whether name is one of the top-level store namespaces.
func IsNamespace(name string) bool {
	_, ok := namespaces[name]
	return ok
}

// ContextStore holds the mutable state of one flow execution as nested maps
// under the flow, steps, testData and process namespaces.
// A store belongs to a single execution and is not safe for concurrent writes;
// steps of a flow run sequentially so none are needed.
type ContextStore struct {
	values map[string]any
}

func NewContextStore() *ContextStore {
	return &ContextStore{
		values: map[string]any{
			NamespaceFlow:     map[string]any{},
			NamespaceSteps:    map[string]any{},
			NamespaceTestData: map[string]any{},
			NamespaceProcess:  map[string]any{},
		},
	}
}

// Set stores value at path, creating intermediate maps.
// The first segment must name a writable namespace.
func (s *ContextStore) Set(path string, value any) error {
	segments := ParsePath(path)
	if len(segments) < 2 {
		return fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	if !IsNamespace(segments[0]) {
		return fmt.Errorf("%w: %q", ErrUnknownNamespace, segments[0])
	}
	if segments[0] == NamespaceProcess {
		return fmt.Errorf("%w: %s", ErrReadOnlyNamespace, NamespaceProcess)
	}

	current := s.values
	for _, part := range segments[:len(segments)-1] {
		next, ok := current[part]
		if !ok {
			m := make(map[string]any)
			current[part] = m
			current = m
			continue
		}
		if m, ok := next.(map[string]any); ok {
			current = m
		} else {
			// Overwrite non-map value with a new map
			m := make(map[string]any)
			current[part] = m
			current = m
		}
	}
	current[segments[len(segments)-1]] = value
	return nil
}

// Get retrieves the value at path. A path whose first segment is not a
// namespace is looked up under testData.
func (s *ContextStore) Get(path string) (any, bool) {
	segments := ParsePath(path)
	if len(segments) == 0 {
		return nil, false
	}
	if !IsNamespace(segments[0]) {
		segments = append([]string{NamespaceTestData}, segments...)
	}
	return lookupSegments(s.values, segments)
}

// All returns the top-level map. Callers must treat it as read-only.
func (s *ContextStore) All() map[string]any {
	return s.values
}

// load replaces a whole namespace. It is the only way to fill process.
func (s *ContextStore) load(namespace string, values map[string]any) {
	if values == nil {
		values = map[string]any{}
	}
	s.values[namespace] = values
}
