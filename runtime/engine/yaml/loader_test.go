package yaml

import (
	"path/filepath"
	"testing"

	"github.com/BDNK1/flowtest/runtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const checkoutFlow = `
description: checkout with two users
test_data:
  username: alice
test_data_files:
  - file: data/users.yaml
fragments:
  json:
    headers:
      Content-Type: application/json
steps:
  - step_id: login
    function: http.session
    parameters:
      - inline:
          base_url: http://localhost
    save_from_response:
      apiSession: session
  - step_id: create_order
    function: http.request
    condition: steps.login.status_code == 200
    parameters:
      - file: fragments/order.yaml
      - ref: json
      - inline:
          headers:
            api_context: "{{flow.apiSession}}"
    save_from_request:
      sentOrder: body
    save_from_response:
      orderId: body.id
`

func TestFlowLoader_Load(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "flows/checkout.yaml", checkoutFlow)

	flow, err := NewFlowLoader("").Load(filepath.Join(dir, "flows", "checkout.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "checkout", flow.ID)
	assert.Equal(t, filepath.Join(dir, "flows"), flow.BaseDir)
	assert.Equal(t, "alice", flow.TestData["username"])
	require.Len(t, flow.Steps, 2)

	step := flow.Steps[1]
	assert.Equal(t, "create_order", step.ID)
	assert.Equal(t, "steps.login.status_code == 200", step.Condition)
	require.Len(t, step.Parameters, 3)
	assert.Equal(t, runtime.FragmentFile, step.Parameters[0].Kind())
	assert.Equal(t, runtime.FragmentRef, step.Parameters[1].Kind())
	assert.Equal(t, runtime.FragmentInline, step.Parameters[2].Kind())
	assert.Equal(t, map[string]string{"orderId": "body.id"}, step.SaveFromResponse)
	assert.Equal(t, map[string]string{"sentOrder": "body"}, step.SaveFromRequest)
}

func TestFlowLoader_ExplicitIDAndBaseDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yml", "id: custom\nsteps:\n  - step_id: s\n    function: data.set\n")

	flow, err := NewFlowLoader("/srv/suite").Load(filepath.Join(dir, "a.yml"))
	require.NoError(t, err)
	assert.Equal(t, "custom", flow.ID)
	assert.Equal(t, "/srv/suite", flow.BaseDir)
}

func TestFlowLoader_Invalid(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]struct {
		content string
		err     error
	}{
		"no steps":          {"description: empty\n", runtime.ErrNoSteps},
		"bad step id":       {"steps:\n  - step_id: bad-id\n    function: x\n", runtime.ErrInvalidStepID},
		"duplicate step id": {"steps:\n  - step_id: a\n    function: x\n  - step_id: a\n    function: y\n", runtime.ErrDuplicateStepID},
		"ambiguous source":  {"steps:\n  - step_id: a\n    function: x\n    parameters:\n      - file: a.yaml\n        ref: b\n", runtime.ErrAmbiguousFragment},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			writeFile(t, dir, "flow.yaml", tc.content)
			_, err := NewFlowLoader("").Load(filepath.Join(dir, "flow.yaml"))
			assert.ErrorIs(t, err, tc.err)
		})
	}

	_, err := NewFlowLoader("").Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
