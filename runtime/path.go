package runtime

import (
	"reflect"
	"strconv"
	"strings"
)

// ParsePath splits a context path such as `flow.items[0].name` or
// `testData["user-name"]` into its segments.
func ParsePath(path string) []string {
	var (
		segments []string
		current  strings.Builder
	)
	flush := func() {
		if current.Len() > 0 {
			segments = append(segments, current.String())
			current.Reset()
		}
	}

	for i := 0; i < len(path); i++ {
		switch c := path[i]; c {
		case '.':
			flush()
		case '[':
			flush()
			end := strings.IndexByte(path[i:], ']')
			if end < 0 {
				current.WriteString(path[i+1:])
				i = len(path)
				continue
			}
			key := strings.Trim(path[i+1:i+end], `"'`)
			if key != "" {
				segments = append(segments, key)
			}
			i += end
		default:
			current.WriteByte(c)
		}
	}
	flush()
	return segments
}

// LookupPath walks root along path through nested maps and slices.
func LookupPath(root any, path string) (any, bool) {
	return lookupSegments(root, ParsePath(path))
}

func lookupSegments(root any, segments []string) (any, bool) {
	current := root
	for _, seg := range segments {
		switch node := current.(type) {
		case map[string]any:
			next, ok := node[seg]
			if !ok {
				return nil, false
			}
			current = next
		case map[string]string:
			next, ok := node[seg]
			if !ok {
				return nil, false
			}
			current = next
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			current = node[idx]
		default:
			next, ok := reflectSegment(current, seg)
			if !ok {
				return nil, false
			}
			current = next
		}
	}
	return current, true
}

// reflectSegment handles typed maps and slices that did not come from a decoder.
func reflectSegment(node any, seg string) (any, bool) {
	if node == nil {
		return nil, false
	}
	v := reflect.ValueOf(node)
	switch v.Kind() {
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		entry := v.MapIndex(reflect.ValueOf(seg).Convert(v.Type().Key()))
		if !entry.IsValid() {
			return nil, false
		}
		return entry.Interface(), true
	case reflect.Slice, reflect.Array:
		idx, err := strconv.Atoi(seg)
		if err != nil || idx < 0 || idx >= v.Len() {
			return nil, false
		}
		return v.Index(idx).Interface(), true
	}
	return nil, false
}

// CloneTree deep-copies the maps and slices of a parameter tree.
// Leaves, including resource handles, are shared.
func CloneTree(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = CloneTree(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = CloneTree(val)
		}
		return out
	default:
		return v
	}
}
