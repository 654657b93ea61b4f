package runtime

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type traceKey struct{}

func TestExecution_Value(t *testing.T) {
	//nolint:staticcheck
	parent := context.WithValue(context.Background(), "request-id", "r-42")
	parent = context.WithValue(parent, traceKey{}, "trace-1")

	execution := NewExecution(parent, &Flow{ID: "orders"}, NewContainer(), nil)
	require.NoError(t, execution.Store.Set("flow.orderId", "o-1"))

	assert.Equal(t, "o-1", execution.Value("flow.orderId"))
	assert.Equal(t, "r-42", execution.Value("request-id"), "string keys missing from the store reach the parent")
	assert.Equal(t, "trace-1", execution.Value(traceKey{}))
	assert.Nil(t, execution.Value("flow.missing"))
}
