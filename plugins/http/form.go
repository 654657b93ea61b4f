package http

import (
	"strconv"

	"github.com/BDNK1/flowtest/runtime/plugin"
)

// flattenToFormData flattens nested values into bracketed form keys:
// {"metadata": {"id": 1}, "tags": ["a"]} becomes metadata[id]=1, tags[0]=a.
func flattenToFormData(data map[string]any, prefix string) map[string]string {
	out := make(map[string]string)
	for key, value := range data {
		if prefix != "" {
			key = prefix + "[" + key + "]"
		}
		flattenValue(out, key, value)
	}
	return out
}

func flattenValue(out map[string]string, key string, value any) {
	switch v := value.(type) {
	case map[string]any:
		for k, child := range flattenToFormData(v, key) {
			out[k] = child
		}
	case []any:
		for i, item := range v {
			flattenValue(out, key+"["+strconv.Itoa(i)+"]", item)
		}
	default:
		out[key] = plugin.Stringify(v)
	}
}
