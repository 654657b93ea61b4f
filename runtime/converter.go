package runtime

import (
	"fmt"
	"reflect"
	"time"

	"github.com/mitchellh/mapstructure"
)

// ToStringValueMap flattens parameter values to strings, e.g. for headers
// and query strings.
func ToStringValueMap(m map[string]any) map[string]string {
	result := make(map[string]string, len(m))
	for key, value := range m {
		result[key] = Stringify(value)
	}
	return result
}

// mapToStruct converts a map[string]any to a struct using mapstructure.
// It uses json tags for field mapping and supports time.Duration and time.Time conversions.
func mapToStruct(m map[string]any, target any) error {
	return decodeWithTag(m, target, "json")
}

// DecodeParams decodes step parameters into a typed input struct by json
// tag and validates it. Plugins taking plugin.Input use it for nested blocks.
func DecodeParams(params map[string]any, target any) error {
	if err := mapToStruct(params, target); err != nil {
		return fmt.Errorf("invalid input: %w", err)
	}
	if err := validate.Struct(target); err != nil {
		return fmt.Errorf("input validation failed: %w", err)
	}
	return nil
}

// mapToStructFromYAML is mapToStruct for config structs, which use yaml tags.
func mapToStructFromYAML(m map[string]any, target any) error {
	return decodeWithTag(m, target, "yaml")
}

func decodeWithTag(m map[string]any, target any, tag string) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  target,
		TagName: tag,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToTimeHookFunc(time.RFC3339),
		),
		WeaklyTypedInput: true, // Allow type coercion (e.g., int -> float64)
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(m); err != nil {
		return fmt.Errorf("failed to decode map to struct: %w", err)
	}

	return nil
}

// structToMap converts a struct to map[string]any honoring json tags.
// Unlike a JSON round-trip, leaf values keep their Go types, so resource
// handles returned by a function survive the conversion.
func structToMap(s any) (map[string]any, error) {
	v := reflect.ValueOf(s)
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return nil, fmt.Errorf("cannot convert nil %T to map", s)
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil, fmt.Errorf("cannot convert %T to map", s)
	}

	result := make(map[string]any)
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  &result,
		TagName: "json",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := decoder.Decode(v.Interface()); err != nil {
		return nil, fmt.Errorf("failed to decode struct to map: %w", err)
	}
	return result, nil
}
