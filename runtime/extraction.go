package runtime

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// extract copies values out of source into the flow namespace.
// mapping is context path -> source path; context paths may omit the
// leading "flow.". Missing source paths are skipped with a warning.
func (e *Executor) extract(execution *Execution, step Step, phase string, source any, mapping map[string]string) error {
	tree, ok := extractable(source)
	if !ok {
		e.l.WarnContext(execution, fmt.Sprintf("Step %s: %s is not a mapping, nothing extracted", step.ID, phase),
			"type", fmt.Sprintf("%T", source))
		return nil
	}

	// sorted so that overlapping targets resolve the same way every run
	targets := make([]string, 0, len(mapping))
	for target := range mapping {
		targets = append(targets, target)
	}
	sort.Strings(targets)

	for _, target := range targets {
		sourcePath := mapping[target]
		value, found := LookupPath(tree, sourcePath)
		if !found {
			e.l.WarnContext(execution, fmt.Sprintf("Step %s: %s path %s not found, skipping", step.ID, phase, sourcePath),
				"target", target)
			continue
		}

		contextPath := flowPath(target)
		if err := execution.Store.Set(contextPath, value); err != nil {
			return fmt.Errorf("save %s to %s: %w", sourcePath, contextPath, err)
		}
		e.l.DebugContext(execution, fmt.Sprintf("Step %s: saved %s to %s", step.ID, sourcePath, contextPath))
	}
	return nil
}

func flowPath(target string) string {
	target = strings.TrimPrefix(target, NamespaceFlow+".")
	return NamespaceFlow + "." + target
}

func extractable(source any) (any, bool) {
	switch s := source.(type) {
	case nil:
		return nil, false
	case map[string]any:
		return s, true
	}

	v := reflect.ValueOf(source)
	for v.Kind() == reflect.Ptr && !v.IsNil() {
		v = v.Elem()
	}
	switch v.Kind() {
	case reflect.Map:
		return source, v.Type().Key().Kind() == reflect.String
	case reflect.Struct:
		m, err := structToMap(v.Interface())
		if err != nil {
			return nil, false
		}
		return m, true
	}
	return nil, false
}
