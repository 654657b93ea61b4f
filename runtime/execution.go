package runtime

import (
	"context"
	"io"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
)

var _ context.Context = &Execution{}

// State is the lifecycle state of a flow execution.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Execution is one run of a flow. It owns the flow's Context Store and
// implements context.Context so it can be handed to anything that blocks.
type Execution struct {
	ID              string
	Flow            *Flow
	Store           *ContextStore
	Container       *Container
	DefaultResource Resource
	// Overrides are merged over the flow's test data before the first step.
	Overrides map[string]any

	State      State
	Current    string
	Steps      []StepOutcome
	Failure    *FlowError
	StartedAt  time.Time
	FinishedAt time.Time

	ctx context.Context // real context carrying deadline/cancellation
}

// NewExecution creates a pending execution with a fresh store whose process
// namespace holds the given snapshot.
func NewExecution(ctx context.Context, flow *Flow, container *Container, process map[string]any) *Execution {
	if ctx == nil {
		ctx = context.Background()
	}
	store := NewContextStore()
	store.load(NamespaceProcess, process)

	return &Execution{
		ID:        uuid.NewString(),
		Flow:      flow,
		Store:     store,
		Container: container,
		State:     StatePending,
		ctx:       ctx,
	}
}

func (e *Execution) Deadline() (deadline time.Time, ok bool) {
	return e.ctx.Deadline()
}

func (e *Execution) Done() <-chan struct{} {
	return e.ctx.Done()
}

func (e *Execution) Err() error {
	return e.ctx.Err()
}

// Value resolves string keys against the store. Other keys, and string
// keys the store does not hold, are looked up in the wrapped context.
func (e *Execution) Value(key any) any {
	if k, ok := key.(string); ok {
		if v, found := e.Store.Get(k); found {
			return v
		}
	}
	return e.ctx.Value(key)
}

// WithScopedContext temporarily swaps the execution context while fn runs.
// Steps run one at a time, so the swap is not observed concurrently.
func (e *Execution) WithScopedContext(ctx context.Context, fn func()) {
	if ctx == nil {
		ctx = context.Background()
	}
	prev := e.ctx
	e.ctx = ctx
	defer func() {
		e.ctx = prev
	}()
	fn()
}

// Values returns the full context map for expression evaluation.
func (e *Execution) Values() map[string]any {
	return e.Store.All()
}

// closers collects the resources this execution acquired that need closing:
// the default resource and every io.Closer bound in the flow namespace.
func (e *Execution) closers() []io.Closer {
	var (
		out  []io.Closer
		seen = map[io.Closer]struct{}{}
	)
	add := func(v any) {
		c, ok := v.(io.Closer)
		if !ok || !reflect.TypeOf(c).Comparable() {
			return
		}
		if _, dup := seen[c]; dup {
			return
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}

	add(e.DefaultResource)
	if flow, ok := e.Store.All()[NamespaceFlow].(map[string]any); ok {
		walkLeaves(flow, add)
	}
	return out
}

func walkLeaves(v any, fn func(any)) {
	switch t := v.(type) {
	case map[string]any:
		for _, child := range t {
			walkLeaves(child, fn)
		}
	case []any:
		for _, child := range t {
			walkLeaves(child, fn)
		}
	default:
		fn(v)
	}
}

// ProcessSnapshot captures the environment of the current process merged
// with extra values, which take precedence.
func ProcessSnapshot(extra map[string]any) map[string]any {
	env := make(map[string]any)
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		env[k] = v
	}
	for k, v := range extra {
		env[k] = v
	}
	return env
}
