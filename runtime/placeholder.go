package runtime

import (
	"regexp"
	"strings"
)

// tokenPattern matches a placeholder such as {{flow.user.id}} or {{$dynamic.uuid}}.
var tokenPattern = regexp.MustCompile(`\{\{([A-Za-z0-9_$.]+)\}\}`)

// HasPlaceholder reports whether text still contains a placeholder token.
func HasPlaceholder(text string) bool {
	return tokenPattern.MatchString(text)
}

// Placeholders returns the paths of every token in text, in order.
func Placeholders(text string) []string {
	var paths []string
	for _, m := range tokenPattern.FindAllStringSubmatch(text, -1) {
		paths = append(paths, m[1])
	}
	return paths
}

// Resolver substitutes placeholder tokens with context values or generated data.
// Tokens that cannot be resolved are left in place.
type Resolver struct {
	generator DataGenerator
}

func NewResolver(generator DataGenerator) *Resolver {
	if generator == nil {
		generator = NewDynamicGenerator()
	}
	return &Resolver{generator: generator}
}

// ResolveString replaces every token in text. Each occurrence is resolved on
// its own, so two $dynamic tokens in one string get independent values.
func (r *Resolver) ResolveString(text string, src Lookup) string {
	if !strings.Contains(text, "{{") {
		return text
	}
	return tokenPattern.ReplaceAllStringFunc(text, func(token string) string {
		path := token[2 : len(token)-2]

		if name, ok := strings.CutPrefix(path, DynamicPrefix); ok {
			if v, ok := r.generator.Generate(name); ok {
				return Stringify(v)
			}
			return token
		}

		if src == nil {
			return token
		}
		v, ok := src.Get(path)
		if !ok {
			return token
		}
		return Stringify(v)
	})
}

// ResolveOne resolves a single value: strings are substituted, anything
// else is returned unchanged.
func (r *Resolver) ResolveOne(value any, src Lookup) any {
	if s, ok := value.(string); ok {
		return r.ResolveString(s, src)
	}
	return value
}

// ResolveAll returns a resolved deep copy of tree. Keys are never resolved
// and the input is left untouched.
func (r *Resolver) ResolveAll(tree any, src Lookup) any {
	switch t := tree.(type) {
	case string:
		return r.ResolveString(t, src)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, v := range t {
			out[k] = r.ResolveAll(v, src)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, v := range t {
			out[i] = r.ResolveAll(v, src)
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(t))
		for k, v := range t {
			out[k] = r.ResolveString(v, src)
		}
		return out
	case []string:
		out := make([]string, len(t))
		for i, v := range t {
			out[i] = r.ResolveString(v, src)
		}
		return out
	default:
		return tree
	}
}
