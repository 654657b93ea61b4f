package yaml

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/BDNK1/flowtest/internal/security"
	"github.com/BDNK1/flowtest/runtime"
	"github.com/Jeffail/gabs/v2"
	goyaml "gopkg.in/yaml.v3"
)

// FragmentComposer deep-merges parameter fragments with gabs. Maps merge
// recursively and every other collision is won by the later fragment, so
// sequences are replaced rather than concatenated.
//
// File fragments are parsed once and cached; every Compose works on copies.
type FragmentComposer struct {
	baseDir string
	cache   sync.Map // absolute path -> map[string]any
}

// NewFragmentComposer resolves file fragments of flows that carry no
// BaseDir of their own against baseDir.
func NewFragmentComposer(baseDir string) *FragmentComposer {
	return &FragmentComposer{baseDir: baseDir}
}

func (c *FragmentComposer) Compose(ctx context.Context, flow *runtime.Flow, sources []runtime.FragmentSource) (map[string]any, error) {
	merged := gabs.New()

	for i, src := range sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		doc, err := c.fragment(flow, src)
		if err != nil {
			return nil, fmt.Errorf("fragment #%d (%s): %w", i, src, err)
		}

		// gabs wraps the map in place, so merge a private copy
		fragment := gabs.Wrap(runtime.CloneTree(doc))
		if err := merged.MergeFn(fragment, lastWins); err != nil {
			return nil, fmt.Errorf("fragment #%d (%s): merge: %w", i, src, err)
		}
	}

	out, ok := merged.Data().(map[string]any)
	if !ok {
		return nil, fmt.Errorf("composed parameters are %T, want mapping", merged.Data())
	}
	return out, nil
}

func lastWins(_, source any) any {
	return source
}

func (c *FragmentComposer) fragment(flow *runtime.Flow, src runtime.FragmentSource) (map[string]any, error) {
	switch src.Kind() {
	case runtime.FragmentFile:
		return c.loadFile(c.dirFor(flow), src.File)
	case runtime.FragmentRef:
		doc, ok := flow.Fragments[src.Ref]
		if !ok {
			return nil, fmt.Errorf("%w: %s", runtime.ErrUnknownFragment, src.Ref)
		}
		return doc, nil
	default:
		if src.Inline == nil {
			return map[string]any{}, nil
		}
		return src.Inline, nil
	}
}

func (c *FragmentComposer) dirFor(flow *runtime.Flow) string {
	if flow != nil && flow.BaseDir != "" {
		return flow.BaseDir
	}
	if c.baseDir != "" {
		return c.baseDir
	}
	return "."
}

func (c *FragmentComposer) loadFile(baseDir, name string) (map[string]any, error) {
	path, err := security.ResolveWithin(baseDir, name)
	if err != nil {
		return nil, err
	}

	if cached, ok := c.cache.Load(path); ok {
		return cached.(map[string]any), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading fragment: %w", err)
	}

	var doc any
	if err := goyaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("error parsing fragment %s: %w", path, err)
	}

	var m map[string]any
	switch d := doc.(type) {
	case nil:
		m = map[string]any{}
	case map[string]any:
		m = d
	default:
		return nil, fmt.Errorf("fragment %s must be a mapping, got %T", path, doc)
	}

	actual, _ := c.cache.LoadOrStore(path, m)
	return actual.(map[string]any), nil
}
