package data

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/BDNK1/flowtest/runtime"
	flowyaml "github.com/BDNK1/flowtest/runtime/engine/yaml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func call() *runtime.Call {
	return &runtime.Call{Context: context.Background(), StepID: "check"}
}

func TestDataPlugin_Registration(t *testing.T) {
	c := runtime.NewContainer()
	require.NoError(t, c.RegisterPlugin("data", New(), nil))
	assert.Equal(t, []string{"data.assert", "data.generate", "data.set"}, c.Functions())

	fn, _ := c.Lookup("data.set")
	out, err := fn.Execute(call(), map[string]any{"orderId": "o-1"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"orderId": "o-1"}, out)
}

func TestAssert(t *testing.T) {
	body := map[string]any{
		"id":     "o-1",
		"status": "paid",
		"total":  float64(42),
		"items":  []any{map[string]any{"sku": "A"}, map[string]any{"sku": "B"}},
	}

	tests := []struct {
		name  string
		input AssertInput
		pass  bool
	}{
		{"scalar equals across types", AssertInput{Actual: float64(200), Expected: 200}, true},
		{"scalar mismatch", AssertInput{Actual: "pending", Expected: "paid"}, false},
		{"subset map", AssertInput{Actual: body, Expected: map[string]any{"status": "paid", "total": 42}}, true},
		{"subset map missing key", AssertInput{Actual: body, Expected: map[string]any{"refunded": true}}, false},
		{"sequence equal", AssertInput{Actual: []any{"a", "b"}, Expected: []any{"a", "b"}}, true},
		{"sequence length", AssertInput{Actual: []any{"a"}, Expected: []any{"a", "b"}}, false},
		{"scalar vs map", AssertInput{Actual: body, Expected: "o-1"}, false},
		{"not equals", AssertInput{Actual: "a", Expected: "b", Op: "not_equals"}, true},
		{"contains substring", AssertInput{Actual: "order o-1 created", Expected: "o-1", Op: "contains"}, true},
		{"contains element", AssertInput{Actual: body["items"], Expected: map[string]any{"sku": "B"}, Op: "contains"}, true},
		{"contains key", AssertInput{Actual: body, Expected: "status", Op: "contains"}, true},
		{"contains missing", AssertInput{Actual: body["items"], Expected: map[string]any{"sku": "C"}, Op: "contains"}, false},
		{"exists", AssertInput{Actual: "x", Op: "exists"}, true},
		{"exists nil", AssertInput{Actual: nil, Op: "exists"}, false},
		{"exists unresolved", AssertInput{Actual: "{{flow.orderId}}", Op: "exists"}, false},
		{"not exists", AssertInput{Op: "not_exists"}, true},
		{"nil equals nil", AssertInput{}, true},
		{"subset map against JSON text", AssertInput{Actual: `{"id":"o-1","status":"paid"}`, Expected: map[string]any{"status": "paid"}}, true},
		{"subset map against JSON text mismatch", AssertInput{Actual: `{"id":"o-1","status":"open"}`, Expected: map[string]any{"status": "paid"}}, false},
		{"sequence against JSON text", AssertInput{Actual: `["a", 2]`, Expected: []any{"a", 2}}, true},
		{"contains element in JSON text", AssertInput{Actual: `[{"sku": "A", "qty": 1}]`, Expected: map[string]any{"sku": "A"}, Op: "contains"}, true},
		{"contains key in JSON text", AssertInput{Actual: `{"id": "o-1"}`, Expected: "id", Op: "contains"}, true},
		{"braced text stays text", AssertInput{Actual: "{not json", Expected: "{not json"}, true},
	}

	p := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := p.Assert(call(), tt.input)
			if tt.pass {
				require.NoError(t, err)
				assert.Equal(t, true, out["passed"])
				return
			}
			require.Error(t, err)
			var taskErr *runtime.TaskError
			require.ErrorAs(t, err, &taskErr)
			assert.Equal(t, "assertion", taskErr.Type())
		})
	}
}

func TestAssert_Message(t *testing.T) {
	_, err := New().Assert(call(), AssertInput{Actual: 500, Expected: 200, Message: "order creation failed"})
	assert.EqualError(t, err, "order creation failed")

	_, err = New().Assert(call(), AssertInput{Actual: 500, Expected: 200})
	assert.EqualError(t, err, `expected equals "200", got "500"`)
}

func TestGenerate(t *testing.T) {
	out, err := New().Generate(call(), GenerateInput{Fields: map[string]string{"email": "email", "ref": "uuid"}})
	require.NoError(t, err)
	assert.Regexp(t, `^qa\+\w+@example\.com$`, out["email"])
	assert.Len(t, out["ref"], 36)

	_, err = New().Generate(call(), GenerateInput{Fields: map[string]string{"x": "zodiac"}})
	assert.ErrorContains(t, err, `unknown generator "zodiac"`)
}

func TestGenerate_ValidatesInput(t *testing.T) {
	c := runtime.NewContainer()
	require.NoError(t, c.RegisterPlugin("data", New(), nil))
	fn, _ := c.Lookup("data.generate")

	_, err := fn.Execute(call(), map[string]any{})
	assert.Error(t, err)
}

func TestAssert_StepResultAgainstMapping(t *testing.T) {
	l := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := runtime.NewContainer()
	require.NoError(t, c.RegisterPlugin("data", New(), nil))

	executor := runtime.NewExecutor(l,
		flowyaml.NewFragmentComposer(t.TempDir()),
		nil,
		flowyaml.NewExpressionEvaluator(),
		runtime.NewInvoker(l),
	)
	app, err := runtime.NewApp(l, runtime.AppConfig{Concurrency: 1}, flowyaml.NewFlowLoader(t.TempDir()), c, executor)
	require.NoError(t, err)

	inline := func(m map[string]any) []runtime.FragmentSource {
		return []runtime.FragmentSource{{Inline: m}}
	}
	require.NoError(t, app.RegisterFlow(runtime.Flow{
		ID: "order",
		Steps: []runtime.Step{
			{ID: "get", Function: "data.set", Parameters: inline(map[string]any{
				"body": map[string]any{"status": "paid", "id": "o-1", "items": []any{"A", "B"}},
			})},
			{ID: "check", Function: "data.assert", Parameters: inline(map[string]any{
				"actual":   "{{steps.get.body}}",
				"expected": map[string]any{"status": "paid"},
			})},
			{ID: "items", Function: "data.assert", Parameters: inline(map[string]any{
				"actual":   "{{steps.get.body.items}}",
				"expected": "B",
				"op":       "contains",
			})},
		},
	}))

	report, err := app.RunFlow(context.Background(), "order", nil)
	require.NoError(t, err)
	assert.True(t, report.Passed(), "failure: %v", report.Failure)
	assert.Len(t, report.Steps, 3)
}
