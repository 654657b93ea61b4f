package yaml

import (
	"testing"
)

func TestBase64Functions(t *testing.T) {
	tests := []struct {
		name     string
		expr     string
		expected string
	}{
		{"encode", `base64_encode("hello")`, "aGVsbG8="},
		{"encode empty", `base64_encode("")`, ""},
		{"encode basic auth", `base64_encode("user:password")`, "dXNlcjpwYXNzd29yZA=="},
		{"decode", `base64_decode("aGVsbG8=")`, "hello"},
		{"round trip", `base64_decode(base64_encode("qa:secret"))`, "qa:secret"},
	}

	e := NewExpressionEvaluator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := e.Eval(tt.expr, map[string]any{})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result != tt.expected {
				t.Errorf("got %q, want %q", result, tt.expected)
			}
		})
	}

	if _, err := e.Eval(`base64_decode("not base64!")`, nil); err == nil {
		t.Error("expected error decoding invalid base64")
	}
}

func TestConditions(t *testing.T) {
	values := map[string]any{
		"flow":     map[string]any{"role": "admin", "token": nil},
		"steps":    map[string]any{"login": map[string]any{"status_code": 200, "body": map[string]any{"items": []any{"a", "b"}}}},
		"testData": map[string]any{"env": "staging", "user": "{{missing}}"},
		"process":  map[string]any{"CI": "true"},
	}

	tests := []struct {
		expr string
		want bool
	}{
		{`steps.login.status_code == 200`, true},
		{`steps.login.status_code >= 400`, false},
		{`flow.role == "admin" && testData.env != "prod"`, true},
		{`len(steps.login.body.items) == 2`, true},
		{`process.CI == "true"`, true},
		{`flow.token == null`, true},
		{`defined("flow.token")`, true},
		{`defined("flow.nope")`, false},
		{`defined("steps.login.body.items[1]")`, true},
		{`unresolved(testData.user)`, true},
		{`unresolved(testData.env)`, false},
		{`unknownVar == nil`, true},
	}

	e := NewExpressionEvaluator()
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := e.Eval(tt.expr, values)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}

	if _, ok := values["null"]; ok {
		t.Error("evaluation leaked the null alias into the values")
	}
}

func TestConditions_CompileError(t *testing.T) {
	if _, err := NewExpressionEvaluator().Eval(`steps.login ==`, nil); err == nil {
		t.Error("expected compile error")
	}
}
