package data

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"sort"
	"strings"

	"github.com/BDNK1/flowtest/runtime/plugin"
	"github.com/tidwall/gjson"
)

// AssertInput defines input for data.assert
type AssertInput struct {
	Actual   any    `json:"actual"`
	Expected any    `json:"expected"`
	Op       string `json:"op" validate:"omitempty,oneof=equals not_equals contains exists not_exists"`
	Message  string `json:"message"`
}

// GenerateInput maps output keys to generator names, e.g. {email: email}.
type GenerateInput struct {
	Fields map[string]string `json:"fields" validate:"required,min=1"`
}

// DataPlugin provides functions that work on the flow's data rather than on
// an external system. None of them use the step resource.
type DataPlugin struct {
	generator plugin.DataGenerator
}

func New() *DataPlugin {
	return &DataPlugin{generator: plugin.NewDataGenerator()}
}

// Set returns its parameters, so save_from_response can bind any of them
// into the flow namespace.
func (p *DataPlugin) Set(call *plugin.Call, args plugin.Input) (plugin.Output, error) {
	return args, nil
}

// Assert compares actual with expected and fails the step on mismatch.
// Mapping expectations match as a subset of actual. A whole-token
// placeholder resolves to JSON text, so an actual holding a JSON object or
// array is decoded before it is compared with a mapping or sequence.
func (p *DataPlugin) Assert(call *plugin.Call, input AssertInput) (plugin.Output, error) {
	op := input.Op
	if op == "" {
		op = "equals"
	}

	var ok bool
	switch op {
	case "equals":
		ok = matches(input.Expected, input.Actual)
	case "not_equals":
		ok = !matches(input.Expected, input.Actual)
	case "contains":
		ok = contains(input.Actual, input.Expected)
	case "exists":
		ok = present(input.Actual)
	case "not_exists":
		ok = !present(input.Actual)
	}

	if !ok {
		msg := input.Message
		if msg == "" {
			msg = fmt.Sprintf("expected %s %s, got %s", op, describe(input.Expected), describe(input.Actual))
		}
		return nil, plugin.NewTaskError(errors.New(msg)).
			WithType("assertion").
			WithMetadata("op", op).
			WithMetadata("expected", input.Expected).
			WithMetadata("actual", input.Actual)
	}
	return plugin.Output{"passed": true}, nil
}

// Generate produces one fresh value per field from the dynamic generators.
func (p *DataPlugin) Generate(call *plugin.Call, input GenerateInput) (plugin.Output, error) {
	if p.generator == nil {
		p.generator = plugin.NewDataGenerator()
	}

	keys := make([]string, 0, len(input.Fields))
	for k := range input.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(plugin.Output, len(keys))
	for _, key := range keys {
		name := input.Fields[key]
		v, ok := p.generator.Generate(name)
		if !ok {
			return nil, fmt.Errorf("data.generate: unknown generator %q for field %s", name, key)
		}
		out[key] = v
	}
	return out, nil
}

// matches reports whether actual satisfies expected. Maps match as a
// subset, sequences element-wise and scalars by their text form, so 200
// equals "200".
func matches(expected, actual any) bool {
	if isCollection(expected) {
		actual = decodeJSON(actual)
	}
	switch e := expected.(type) {
	case map[string]any:
		a, ok := actual.(map[string]any)
		if !ok {
			return false
		}
		for k, ev := range e {
			av, exists := a[k]
			if !exists || !matches(ev, av) {
				return false
			}
		}
		return true
	case []any:
		a, ok := actual.([]any)
		if !ok || len(a) != len(e) {
			return false
		}
		for i := range e {
			if !matches(e[i], a[i]) {
				return false
			}
		}
		return true
	case nil:
		return actual == nil
	default:
		if actual == nil || isCollection(actual) {
			return false
		}
		return plugin.Stringify(expected) == plugin.Stringify(actual)
	}
}

func contains(actual, expected any) bool {
	switch a := decodeJSON(actual).(type) {
	case string:
		return strings.Contains(a, plugin.Stringify(expected))
	case []any:
		return slices.ContainsFunc(a, func(item any) bool { return matches(expected, item) })
	case map[string]any:
		if key, ok := expected.(string); ok {
			_, exists := a[key]
			return exists
		}
		return matches(expected, a)
	default:
		return false
	}
}

// decodeJSON returns the value of v when v is the JSON text of an object or
// an array. Anything else is returned as is.
func decodeJSON(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	text := strings.TrimSpace(s)
	if text == "" || (text[0] != '{' && text[0] != '[') || !gjson.Valid(text) {
		return v
	}
	return gjson.Parse(text).Value()
}

// present treats nil and unresolved placeholders as absent.
func present(v any) bool {
	if v == nil {
		return false
	}
	if s, ok := v.(string); ok && plugin.Unresolved(s) {
		return false
	}
	return true
}

func isCollection(v any) bool {
	switch reflect.ValueOf(v).Kind() {
	case reflect.Map, reflect.Slice, reflect.Array:
		return true
	}
	return false
}

func describe(v any) string {
	if v == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%q", plugin.Stringify(v))
}
