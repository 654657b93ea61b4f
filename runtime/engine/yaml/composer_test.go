package yaml

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/BDNK1/flowtest/runtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestFragmentComposer_DeepMergeLastWins(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "fragments/base.yaml", `
method: GET
url: /orders
headers:
  Accept: application/json
  X-Env: staging
query:
  tags: [a, b]
`)

	flow := &runtime.Flow{
		ID:      "orders",
		BaseDir: dir,
		Fragments: map[string]map[string]any{
			"admin": {"headers": map[string]any{"api_context": "{{flow.adminSession}}"}},
		},
	}
	sources := []runtime.FragmentSource{
		{File: "fragments/base.yaml"},
		{Ref: "admin"},
		{Inline: map[string]any{
			"method":  "POST",
			"headers": map[string]any{"X-Env": "prod"},
			"query":   map[string]any{"tags": []any{"c"}},
		}},
	}

	got, err := NewFragmentComposer("").Compose(context.Background(), flow, sources)
	require.NoError(t, err)

	assert.Equal(t, "POST", got["method"])
	assert.Equal(t, "/orders", got["url"])
	assert.Equal(t, map[string]any{
		"Accept":      "application/json",
		"X-Env":       "prod",
		"api_context": "{{flow.adminSession}}",
	}, got["headers"])
	assert.Equal(t, []any{"c"}, got["query"].(map[string]any)["tags"])
}

func TestFragmentComposer_DoesNotMutateSources(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", "headers:\n  Accept: text/plain\n")

	shared := map[string]any{"headers": map[string]any{"X-Shared": "1"}}
	flow := &runtime.Flow{ID: "f", BaseDir: dir, Fragments: map[string]map[string]any{"shared": shared}}
	c := NewFragmentComposer("")

	first, err := c.Compose(context.Background(), flow, []runtime.FragmentSource{{File: "base.yaml"}, {Ref: "shared"}})
	require.NoError(t, err)
	first["headers"].(map[string]any)["Mutated"] = true

	second, err := c.Compose(context.Background(), flow, []runtime.FragmentSource{{File: "base.yaml"}})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"Accept": "text/plain"}, second["headers"])
	assert.Equal(t, map[string]any{"X-Shared": "1"}, shared["headers"])
}

func TestFragmentComposer_CachesFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", "v: 1\n")
	flow := &runtime.Flow{ID: "f", BaseDir: dir}
	c := NewFragmentComposer("")

	got, err := c.Compose(context.Background(), flow, []runtime.FragmentSource{{File: "base.yaml"}})
	require.NoError(t, err)
	assert.Equal(t, 1, got["v"])

	writeFile(t, dir, "base.yaml", "v: 2\n")
	got, err = c.Compose(context.Background(), flow, []runtime.FragmentSource{{File: "base.yaml"}})
	require.NoError(t, err)
	assert.Equal(t, 1, got["v"])
}

func TestFragmentComposer_Errors(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "list.yaml", "- a\n- b\n")
	writeFile(t, dir, "broken.yaml", "a: [\n")
	flow := &runtime.Flow{ID: "f", BaseDir: dir}
	c := NewFragmentComposer("")

	tests := map[string]runtime.FragmentSource{
		"missing file":   {File: "nope.yaml"},
		"not a mapping":  {File: "list.yaml"},
		"invalid yaml":   {File: "broken.yaml"},
		"path traversal": {File: "../outside.yaml"},
		"unknown ref":    {Ref: "ghost"},
	}
	for name, src := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := c.Compose(context.Background(), flow, []runtime.FragmentSource{src})
			assert.Error(t, err)
		})
	}

	_, err := c.Compose(context.Background(), flow, []runtime.FragmentSource{{Ref: "ghost"}})
	assert.ErrorIs(t, err, runtime.ErrUnknownFragment)
}

func TestFragmentComposer_EmptyAndCancelled(t *testing.T) {
	c := NewFragmentComposer(t.TempDir())

	got, err := c.Compose(context.Background(), &runtime.Flow{ID: "f"}, nil)
	require.NoError(t, err)
	assert.Empty(t, got)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Compose(ctx, &runtime.Flow{ID: "f"}, []runtime.FragmentSource{{Inline: map[string]any{}}})
	assert.ErrorIs(t, err, context.Canceled)
}
