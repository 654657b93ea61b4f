package runtime

import (
	"strings"
)

// SelectorField is the parameter path naming the resource a step targets.
const SelectorField = "headers.api_context"

// Resource is an opaque handle a step runs against, such as an
// authenticated HTTP session or a database connection.
type Resource any

// Selection is the outcome of the selector phase. Deep-resolved parameters
// can only be obtained from a Selection, so selection always runs first.
type Selection struct {
	Resource Resource
	// Path is the context path the resource was read from; empty when the
	// default resource was chosen.
	Path string

	raw      map[string]any
	resolver *Resolver
}

// Defaulted reports whether the step fell back to the default resource.
func (s *Selection) Defaulted() bool {
	return s.Path == ""
}

// Resolve deep-resolves the composed parameters the selection was made from.
// The composed tree is not modified.
func (s *Selection) Resolve(src Lookup) map[string]any {
	if s.raw == nil {
		return map[string]any{}
	}
	return s.resolver.ResolveAll(s.raw, src).(map[string]any)
}

// Select resolves only the selector field of raw and picks the target resource.
// A missing, non-string or blank selector yields def. A selector that names a
// path with nothing bound to it is a *ContextResolutionError.
func (r *Resolver) Select(raw map[string]any, src Lookup, def Resource) (*Selection, error) {
	sel := &Selection{Resource: def, raw: raw, resolver: r}

	v, ok := LookupPath(raw, SelectorField)
	if !ok {
		return sel, nil
	}
	text, ok := v.(string)
	if !ok {
		return sel, nil
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return sel, nil
	}

	path, err := r.selectorPath(text, src)
	if err != nil {
		return nil, err
	}

	resource, ok := src.Get(path)
	if !ok || resource == nil {
		return nil, &ContextResolutionError{Path: path, Selector: text}
	}

	sel.Resource = resource
	sel.Path = path
	return sel, nil
}

// selectorPath turns the selector text into the context path of the resource.
//
// A selector that is exactly one token names its path directly, unless the
// value bound there is itself a string, which is then taken as the path.
// Any other text is scalar-resolved and the result is the path.
func (r *Resolver) selectorPath(text string, src Lookup) (string, error) {
	if m := tokenPattern.FindStringSubmatch(text); m != nil && m[0] == text && !strings.HasPrefix(m[1], DynamicPrefix) {
		path := qualifySelectorPath(m[1])
		bound, ok := src.Get(path)
		if !ok || bound == nil {
			return "", &ContextResolutionError{Path: path, Selector: text}
		}
		if indirect, isString := bound.(string); isString {
			indirect = strings.TrimSpace(indirect)
			if indirect == "" || HasPlaceholder(indirect) {
				return "", &ContextResolutionError{Path: path, Selector: text}
			}
			return qualifySelectorPath(indirect), nil
		}
		return path, nil
	}

	resolved := strings.TrimSpace(r.ResolveString(text, src))
	if resolved == "" || HasPlaceholder(resolved) {
		return "", &ContextResolutionError{Path: resolved, Selector: text}
	}
	return qualifySelectorPath(resolved), nil
}

// qualifySelectorPath places bare selector paths under the flow namespace,
// where extracted resources live.
func qualifySelectorPath(path string) string {
	segments := ParsePath(path)
	if len(segments) > 0 && IsNamespace(segments[0]) {
		return path
	}
	return NamespaceFlow + "." + path
}
