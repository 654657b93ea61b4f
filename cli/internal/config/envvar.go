package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

// EnvVarSpec represents a parsed environment variable specification
type EnvVarSpec struct {
	// VarName is the environment variable name (e.g., "BASE_URL")
	VarName string

	// HasDefault indicates if a default value was provided
	HasDefault bool

	// DefaultValue is the default value if HasDefault is true
	DefaultValue string

	// IsLiteral indicates if this is a literal value (not an env var)
	IsLiteral bool

	// LiteralValue is the literal value if IsLiteral is true
	LiteralValue string
}

// envVarPattern matches ${VAR} and ${VAR:default} syntax
var envVarPattern = regexp.MustCompile(`^\$\{([A-Z_][A-Z0-9_]*)(:[^}]*)?\}$`)

// ParseEnvVar parses a config value that may contain environment variable syntax
//
// Supported formats:
//   - ${VAR}         - Required environment variable
//   - ${VAR:default} - Optional environment variable with default
//   - literal        - Plain literal value (no env var)
//
// Only a value that is entirely one reference is substituted:
// "http://${HOST}" stays a literal.
func ParseEnvVar(value string) *EnvVarSpec {
	matches := envVarPattern.FindStringSubmatch(value)
	if matches == nil {
		return &EnvVarSpec{IsLiteral: true, LiteralValue: value}
	}

	spec := &EnvVarSpec{
		VarName:    matches[1],
		HasDefault: matches[2] != "",
	}
	if spec.HasDefault {
		spec.DefaultValue = strings.TrimPrefix(matches[2], ":")
	}
	return spec
}

// ParseConfigValue parses a scalar config value from flowtest.yaml
func ParseConfigValue(value any) (*EnvVarSpec, error) {
	switch v := value.(type) {
	case string:
		return ParseEnvVar(v), nil
	case int, int32, int64, float32, float64, bool:
		return &EnvVarSpec{IsLiteral: true, LiteralValue: fmt.Sprintf("%v", v)}, nil
	case nil:
		return &EnvVarSpec{IsLiteral: true}, nil
	default:
		return nil, fmt.Errorf("unsupported config value type: %T", value)
	}
}

// Resolve returns the final value of the spec, reading the environment
// through lookup. A required variable that is not set is an error.
func (s *EnvVarSpec) Resolve(lookup func(string) (string, bool)) (string, error) {
	if s.IsLiteral {
		return s.LiteralValue, nil
	}
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if v, ok := lookup(s.VarName); ok {
		return v, nil
	}
	if s.HasDefault {
		return s.DefaultValue, nil
	}
	return "", fmt.Errorf("environment variable %s is not set", s.VarName)
}
