package yaml

import (
	"encoding/base64"
	"fmt"
	"maps"

	"github.com/BDNK1/flowtest/runtime"
	"github.com/expr-lang/expr"
)

// Custom expression functions available in all conditions
var exprFunctions = []expr.Option{
	expr.Function("base64_encode", func(params ...any) (any, error) {
		s, _ := params[0].(string)
		return base64.StdEncoding.EncodeToString([]byte(s)), nil
	}),
	expr.Function("base64_decode", func(params ...any) (any, error) {
		s, _ := params[0].(string)
		decoded, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return "", err
		}
		return string(decoded), nil
	}),
	// unresolved reports whether a string still holds a placeholder token
	expr.Function("unresolved", func(params ...any) (any, error) {
		s, ok := params[0].(string)
		return ok && runtime.HasPlaceholder(s), nil
	}, new(func(any) bool)),
}

// ExpressionEvaluator evaluates step conditions with expr-lang. The context
// store namespaces are exposed as nested maps: steps.login.status_code == 200.
type ExpressionEvaluator struct{}

func NewExpressionEvaluator() *ExpressionEvaluator {
	return &ExpressionEvaluator{}
}

func (e *ExpressionEvaluator) Eval(expression string, values map[string]any) (any, error) {
	// copied so the aliases below never leak into the store
	env := maps.Clone(values)
	if env == nil {
		env = map[string]any{}
	}
	// Add null as alias for nil (JSON/YAML compatibility)
	env["null"] = nil

	// defined() checks if a path exists (distinguishes missing from null)
	definedFn := expr.Function(
		"defined",
		func(params ...any) (any, error) {
			path, ok := params[0].(string)
			if !ok {
				return false, fmt.Errorf("defined() expects string path argument, got %T", params[0])
			}
			_, exists := runtime.LookupPath(values, path)
			return exists, nil
		},
		new(func(string) bool),
	)

	// NOTE: expr.Env MUST come before AllowUndefinedVariables for it to work
	opts := []expr.Option{
		expr.Env(env),
		expr.AllowUndefinedVariables(),
		definedFn,
	}
	opts = append(opts, exprFunctions...)

	program, err := expr.Compile(expression, opts...)
	if err != nil {
		return nil, err
	}
	return expr.Run(program, env)
}
