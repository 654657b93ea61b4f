package runtime

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// inlineComposer merges inline and ref fragments shallowly per top-level key
// and fails on file fragments.
type inlineComposer struct{}

func (inlineComposer) Compose(_ context.Context, flow *Flow, sources []FragmentSource) (map[string]any, error) {
	out := map[string]any{}
	for _, src := range sources {
		var doc map[string]any
		switch src.Kind() {
		case FragmentRef:
			doc = flow.Fragments[src.Ref]
		case FragmentFile:
			return nil, errors.New("file fragments unsupported: " + src.File)
		default:
			doc = src.Inline
		}
		for k, v := range CloneTree(doc).(map[string]any) {
			out[k] = v
		}
	}
	return out, nil
}

// boolEvaluator treats "true"/"false" literally and looks up anything else.
type boolEvaluator struct{}

func (boolEvaluator) Eval(expression string, values map[string]any) (any, error) {
	switch expression {
	case "true":
		return true, nil
	case "false":
		return false, nil
	case "number":
		return 1, nil
	}
	v, ok := LookupPath(values, expression)
	if !ok {
		return false, nil
	}
	return v, nil
}

type invocation struct {
	step     string
	resource Resource
	params   map[string]any
}

type recorder struct {
	calls []invocation
}

func (r *recorder) fn(result func(params map[string]any) (any, error)) Function {
	return FunctionFunc(func(call *Call, params map[string]any) (any, error) {
		r.calls = append(r.calls, invocation{step: call.StepID, resource: call.Resource, params: params})
		return result(params)
	})
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestExecutor() *Executor {
	l := testLogger()
	return NewExecutor(l, inlineComposer{}, NewResolver(nil), boolEvaluator{}, NewInvoker(l))
}

func inline(m map[string]any) FragmentSource {
	return FragmentSource{Inline: m}
}

func run(t *testing.T, flow Flow, container *Container, def Resource) (*Execution, error) {
	t.Helper()
	require.NoError(t, flow.Validate())
	exec := NewExecution(context.Background(), &flow, container, map[string]any{"HOME": "/home/qa"})
	exec.DefaultResource = def
	err := newTestExecutor().ExecuteSteps(exec)
	return exec, err
}

func TestExecutor_ResourcePersistsAcrossSteps(t *testing.T) {
	rec := &recorder{}
	session := &fakeSession{name: "admin"}
	def := &fakeSession{name: "default"}

	c := NewContainer()
	c.Register("auth.login", rec.fn(func(map[string]any) (any, error) {
		return map[string]any{"session": session, "token": "t-1"}, nil
	}))
	c.Register("noop", rec.fn(func(map[string]any) (any, error) { return map[string]any{}, nil }))
	c.Register("http.request", rec.fn(func(p map[string]any) (any, error) {
		return map[string]any{"status": 200}, nil
	}))

	flow := Flow{
		ID: "persist",
		Steps: []Step{
			{ID: "login", Function: "auth.login", SaveFromResponse: map[string]string{"apiSession": "session"}},
			{ID: "pause", Function: "noop"},
			{ID: "call", Function: "http.request", Parameters: []FragmentSource{
				inline(map[string]any{"headers": map[string]any{"api_context": "{{flow.apiSession}}"}}),
			}},
		},
	}

	exec, err := run(t, flow, c, def)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, exec.State)

	require.Len(t, rec.calls, 3)
	assert.Same(t, def, rec.calls[0].resource)
	assert.Same(t, session, rec.calls[2].resource)

	report := exec.Report()
	assert.True(t, report.Passed())
	assert.Equal(t, "flow.apiSession", report.Steps[2].Resource)
}

func TestExecutor_SelectorOrderSensitivity(t *testing.T) {
	rec := &recorder{}
	session := &fakeSession{name: "admin"}

	c := NewContainer()
	c.Register("http.request", rec.fn(func(map[string]any) (any, error) { return map[string]any{}, nil }))

	flow := Flow{
		ID: "order",
		Steps: []Step{{ID: "call", Function: "http.request", Parameters: []FragmentSource{
			inline(map[string]any{
				"headers": map[string]any{"api_context": "{{flow.apiSession}}"},
				"body":    map[string]any{"user": "{{username}}"},
			}),
		}}},
		TestData: map[string]any{"username": "alice"},
	}

	exec := NewExecution(context.Background(), &flow, c, nil)
	require.NoError(t, exec.Store.Set("flow.apiSession", session))
	require.NoError(t, newTestExecutor().ExecuteSteps(exec))

	require.Len(t, rec.calls, 1)
	assert.Same(t, session, rec.calls[0].resource)
	assert.Equal(t, "alice", rec.calls[0].params["body"].(map[string]any)["user"])
}

func TestExecutor_DefaultResourceWhenNoSelector(t *testing.T) {
	rec := &recorder{}
	def := &fakeSession{name: "default"}

	c := NewContainer()
	c.Register("http.request", rec.fn(func(map[string]any) (any, error) { return map[string]any{}, nil }))

	flow := Flow{ID: "defaulted", Steps: []Step{
		{ID: "blank", Function: "http.request", Parameters: []FragmentSource{
			inline(map[string]any{"headers": map[string]any{"api_context": "  "}}),
		}},
		{ID: "absent", Function: "http.request"},
	}}

	exec, err := run(t, flow, c, def)
	require.NoError(t, err)
	require.Len(t, rec.calls, 2)
	assert.Same(t, def, rec.calls[0].resource)
	assert.Same(t, def, rec.calls[1].resource)
	assert.Empty(t, exec.Report().Steps[0].Resource)
}

func TestExecutor_FailFast(t *testing.T) {
	rec := &recorder{}
	boom := errors.New("boom")

	c := NewContainer()
	c.Register("ok", rec.fn(func(map[string]any) (any, error) { return map[string]any{"ok": true}, nil }))
	c.Register("fail", rec.fn(func(map[string]any) (any, error) { return nil, boom }))

	flow := Flow{ID: "failfast", Steps: []Step{
		{ID: "A", Function: "ok"},
		{ID: "B", Function: "fail"},
		{ID: "C", Function: "ok"},
	}}

	exec, err := run(t, flow, c, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, ErrStepExecution)

	var stepErr *StepExecutionError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, "B", stepErr.Step)

	require.Len(t, rec.calls, 2)
	assert.Equal(t, "A", rec.calls[0].step)
	assert.Equal(t, "B", rec.calls[1].step)

	_, hasA := exec.Store.Get("steps.A")
	_, hasB := exec.Store.Get("steps.B")
	_, hasC := exec.Store.Get("steps.C")
	assert.True(t, hasA)
	assert.False(t, hasB)
	assert.False(t, hasC)

	report := exec.Report()
	assert.Equal(t, StateFailed, report.State)
	require.Len(t, report.Steps, 2)
	assert.Equal(t, OutcomeFailed, report.Steps[1].Outcome)
	require.NotNil(t, report.Failure)
	assert.Equal(t, KindStepExecution, report.Failure.Kind)
	assert.Equal(t, "B", report.Failure.Step)
}

func TestExecutor_MissingSelectorPathFailsFlow(t *testing.T) {
	rec := &recorder{}
	c := NewContainer()
	c.Register("http.request", rec.fn(func(map[string]any) (any, error) { return map[string]any{}, nil }))

	flow := Flow{ID: "missing", Steps: []Step{{ID: "call", Function: "http.request", Parameters: []FragmentSource{
		inline(map[string]any{"headers": map[string]any{"api_context": "{{flow.nonexistent}}"}}),
	}}}}

	exec, err := run(t, flow, c, &fakeSession{name: "default"})
	require.Error(t, err)

	var resolution *ContextResolutionError
	require.ErrorAs(t, err, &resolution)
	assert.Equal(t, "call", resolution.Step)
	assert.Equal(t, "http.request", resolution.Function)
	assert.Equal(t, "flow.nonexistent", resolution.Path)
	assert.Empty(t, rec.calls, "function must not be invoked")
	assert.Equal(t, "flow.nonexistent", exec.Report().Failure.Path)
}

func TestExecutor_MissingOrdinaryPathPassesThrough(t *testing.T) {
	rec := &recorder{}
	c := NewContainer()
	c.Register("echo", rec.fn(func(p map[string]any) (any, error) { return p, nil }))

	flow := Flow{ID: "literal", Steps: []Step{{ID: "call", Function: "echo", Parameters: []FragmentSource{
		inline(map[string]any{"body": map[string]any{"ref": "{{flow.nonexistent}}"}}),
	}}}}

	_, err := run(t, flow, c, nil)
	require.NoError(t, err)
	assert.Equal(t, "{{flow.nonexistent}}", rec.calls[0].params["body"].(map[string]any)["ref"])
}

func TestExecutor_FunctionNotFound(t *testing.T) {
	flow := Flow{ID: "nofn", Steps: []Step{{ID: "call", Function: "missing.fn"}}}

	exec, err := run(t, flow, NewContainer(), nil)
	var notFound *FunctionNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "missing.fn", notFound.Function)
	assert.Equal(t, KindFunctionNotFound, exec.Report().Failure.Kind)
}

func TestExecutor_CompositionError(t *testing.T) {
	c := NewContainer()
	c.Register("noop", FunctionFunc(func(*Call, map[string]any) (any, error) { return nil, nil }))

	flow := Flow{ID: "compose", Steps: []Step{{ID: "call", Function: "noop", Parameters: []FragmentSource{{File: "missing.yaml"}}}}}

	_, err := run(t, flow, c, nil)
	var compErr *CompositionError
	require.ErrorAs(t, err, &compErr)
	assert.Equal(t, "call", compErr.Step)
	assert.ErrorIs(t, err, ErrComposition)
}

func TestExecutor_Extraction(t *testing.T) {
	c := NewContainer()
	c.Register("users.create", FunctionFunc(func(_ *Call, p map[string]any) (any, error) {
		return map[string]any{"body": map[string]any{"id": "u-1", "items": []any{"x", "y"}}}, nil
	}))

	flow := Flow{ID: "extract", Steps: []Step{{
		ID:       "create",
		Function: "users.create",
		Parameters: []FragmentSource{inline(map[string]any{
			"body": map[string]any{"name": "{{username}}"},
		})},
		SaveFromRequest:  map[string]string{"sentName": "body.name"},
		SaveFromResponse: map[string]string{"flow.userId": "body.id", "second": "body.items[1]", "ghost": "body.none"},
	}}, TestData: map[string]any{"username": "alice"}}

	exec, err := run(t, flow, c, nil)
	require.NoError(t, err)

	v, _ := exec.Store.Get("flow.sentName")
	assert.Equal(t, "alice", v)
	v, _ = exec.Store.Get("flow.userId")
	assert.Equal(t, "u-1", v)
	v, _ = exec.Store.Get("flow.second")
	assert.Equal(t, "y", v)
	_, found := exec.Store.Get("flow.ghost")
	assert.False(t, found, "missing source path is skipped")

	v, _ = exec.Store.Get("steps.create.body.id")
	assert.Equal(t, "u-1", v)
}

func TestExecutor_ScalarResultIsNotExtracted(t *testing.T) {
	c := NewContainer()
	c.Register("count", FunctionFunc(func(*Call, map[string]any) (any, error) { return 3, nil }))

	flow := Flow{ID: "scalar", Steps: []Step{{ID: "n", Function: "count", SaveFromResponse: map[string]string{"n": "value"}}}}

	exec, err := run(t, flow, c, nil)
	require.NoError(t, err)
	_, found := exec.Store.Get("flow.n")
	assert.False(t, found)
	v, _ := exec.Store.Get("steps.n")
	assert.Equal(t, 3, v)
}

func TestExecutor_ConditionSkipsStep(t *testing.T) {
	rec := &recorder{}
	c := NewContainer()
	c.Register("ok", rec.fn(func(map[string]any) (any, error) { return map[string]any{}, nil }))

	flow := Flow{ID: "conditions", Steps: []Step{
		{ID: "skipped", Function: "ok", Condition: "false"},
		{ID: "kept", Function: "ok", Condition: "true"},
		{ID: "lookup", Function: "ok", Condition: "testData.enabled"},
	}, TestData: map[string]any{"enabled": true}}

	exec, err := run(t, flow, c, nil)
	require.NoError(t, err)
	require.Len(t, rec.calls, 2)
	assert.Equal(t, "kept", rec.calls[0].step)
	assert.Equal(t, OutcomeSkipped, exec.Report().Steps[0].Outcome)
}

func TestExecutor_NonBooleanConditionFails(t *testing.T) {
	c := NewContainer()
	c.Register("ok", FunctionFunc(func(*Call, map[string]any) (any, error) { return nil, nil }))

	flow := Flow{ID: "badcond", Steps: []Step{{ID: "s", Function: "ok", Condition: "number"}}}

	_, err := run(t, flow, c, nil)
	assert.ErrorIs(t, err, ErrStepExecution)
}

func TestExecutor_TestDataAndProcessNamespaces(t *testing.T) {
	rec := &recorder{}
	c := NewContainer()
	c.Register("echo", rec.fn(func(p map[string]any) (any, error) { return p, nil }))

	flow := Flow{
		ID:        "namespaces",
		TestData:  map[string]any{"user": map[string]any{"name": "alice"}},
		Fragments: map[string]map[string]any{"base": {"home": "{{process.HOME}}"}},
		Steps: []Step{{ID: "s", Function: "echo", Parameters: []FragmentSource{
			{Ref: "base"},
			inline(map[string]any{"name": "{{user.name}}"}),
		}}},
	}

	exec, err := run(t, flow, c, nil)
	require.NoError(t, err)
	assert.Equal(t, "/home/qa", rec.calls[0].params["home"])
	assert.Equal(t, "alice", rec.calls[0].params["name"])

	// flow definition is not mutated by execution
	assert.Equal(t, "{{user.name}}", flow.Steps[0].Parameters[1].Inline["name"])
	assert.Equal(t, StateCompleted, exec.State)
}

func TestExecutor_OverridesReplaceTestData(t *testing.T) {
	rec := &recorder{}
	c := NewContainer()
	c.Register("echo", rec.fn(func(p map[string]any) (any, error) { return p, nil }))

	flow := Flow{ID: "override", TestData: map[string]any{"user": "alice"}, Steps: []Step{
		{ID: "s", Function: "echo", Parameters: []FragmentSource{inline(map[string]any{"u": "{{user}}"})}},
	}}

	exec := NewExecution(context.Background(), &flow, c, nil)
	exec.Overrides = map[string]any{"user": "bob"}
	require.NoError(t, newTestExecutor().ExecuteSteps(exec))
	assert.Equal(t, "bob", rec.calls[0].params["u"])
}

func TestExecutor_CancelledContextStopsFlow(t *testing.T) {
	rec := &recorder{}
	c := NewContainer()
	c.Register("ok", rec.fn(func(map[string]any) (any, error) { return map[string]any{}, nil }))

	flow := Flow{ID: "cancel", Steps: []Step{{ID: "s", Function: "ok"}}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	exec := NewExecution(ctx, &flow, c, nil)
	err := newTestExecutor().ExecuteSteps(exec)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, rec.calls)
	assert.Equal(t, "cancelled", exec.Report().Failure.Meta["cause"])
}

func TestExecutor_PanicBecomesStepError(t *testing.T) {
	c := NewContainer()
	c.Register("explode", FunctionFunc(func(*Call, map[string]any) (any, error) { panic("kaboom") }))

	flow := Flow{ID: "panic", Steps: []Step{{ID: "s", Function: "explode"}}}

	_, err := run(t, flow, c, nil)
	var stepErr *StepExecutionError
	require.ErrorAs(t, err, &stepErr)
	assert.Contains(t, stepErr.Error(), "kaboom")
}

func TestExecutor_TaskErrorMetadataInReport(t *testing.T) {
	c := NewContainer()
	c.Register("assert", FunctionFunc(func(*Call, map[string]any) (any, error) {
		return nil, NewTaskError(errors.New("expected 200, got 500")).WithType("assertion").WithMetadata("status", 500)
	}))

	flow := Flow{ID: "meta", Steps: []Step{{ID: "check", Function: "assert"}}}

	exec, _ := run(t, flow, c, nil)
	failure := exec.Report().Failure
	require.NotNil(t, failure)
	assert.Equal(t, "assertion", failure.Meta["type"])
	assert.Equal(t, 500, failure.Meta["status"])
}
