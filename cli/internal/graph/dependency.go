package graph

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/BDNK1/flowtest/runtime"
)

// conditionRef matches context references inside a step condition expression.
var conditionRef = regexp.MustCompile(`\b(steps|flow)\.(\w+)`)

// Functions is the set of functions a flow can call.
type Functions interface {
	Lookup(name string) (runtime.Function, bool)
}

// Graph represents the data dependencies between the steps of one flow.
// A step depends on another when it reads that step's result or a flow
// variable the other step saves.
type Graph struct {
	flow  *runtime.Flow
	order []string

	// index maps step ID to its position in the flow
	index map[string]int

	// edges maps step ID to the steps it reads from
	edges map[string][]string

	// reverseEdges maps step ID to the steps that read from it
	reverseEdges map[string][]string

	// producers maps a top-level flow variable to the steps saving it
	producers map[string][]string

	testData map[string]bool
	issues   []*Issue
}

// Build statically checks flow. Parameters are composed with composer so
// references inside file and ref fragments are seen too. functions may be
// nil, in which case function names are not checked.
func Build(ctx context.Context, flow *runtime.Flow, composer runtime.ParameterComposer, functions Functions) *Graph {
	g := &Graph{
		flow:         flow,
		index:        make(map[string]int),
		edges:        make(map[string][]string),
		reverseEdges: make(map[string][]string),
		producers:    make(map[string][]string),
		testData:     make(map[string]bool),
	}

	// First pass: register steps and what they save
	for i, step := range flow.Steps {
		g.order = append(g.order, step.ID)
		g.index[step.ID] = i
		for _, target := range saveTargets(step) {
			g.producers[target] = appendUnique(g.producers[target], step.ID)
		}
	}

	g.collectTestData(ctx, composer)

	// Second pass: resolve every reference a step makes
	for _, step := range flow.Steps {
		if functions != nil {
			if _, ok := functions.Lookup(step.Function); !ok {
				g.report(&Issue{
					Type:     IssueUnknownFunction,
					Severity: SeverityError,
					Step:     step.ID,
					Message:  fmt.Sprintf("step '%s' calls unknown function '%s'", step.ID, step.Function),
					Details:  map[string]string{"function": step.Function},
				})
			}
		}

		for _, m := range conditionRef.FindAllStringSubmatch(step.Condition, -1) {
			g.reference(step, m[1]+"."+m[2], "condition")
		}

		raw, err := composer.Compose(ctx, flow, step.Parameters)
		if err != nil {
			g.report(&Issue{
				Type:     IssueComposition,
				Severity: SeverityError,
				Step:     step.ID,
				Message:  fmt.Sprintf("step '%s' parameters cannot be composed: %v", step.ID, err),
			})
			continue
		}

		if text, ok := takeSelector(raw).(string); ok {
			paths := runtime.Placeholders(text)
			if len(paths) == 0 && strings.TrimSpace(text) != "" {
				paths = []string{strings.TrimSpace(text)}
			}
			for _, path := range paths {
				g.reference(step, selectorPath(path), "selector")
			}
		}
		walkStrings(raw, func(text string) {
			for _, path := range runtime.Placeholders(text) {
				g.reference(step, path, "parameters")
			}
		})
	}

	// Validate graph (check for cycles)
	if cycle := g.findCycle(); cycle != nil {
		g.report(&Issue{
			Type:     IssueCircularReference,
			Severity: SeverityError,
			Step:     cycle[0],
			Message:  fmt.Sprintf("circular reference detected: %s", strings.Join(cycle, " → ")),
			Details:  map[string]string{"cycle": strings.Join(cycle, " → ")},
		})
	}

	return g
}

// collectTestData records the top-level test data keys, including those
// contributed by test data files.
func (g *Graph) collectTestData(ctx context.Context, composer runtime.ParameterComposer) {
	for k := range g.flow.TestData {
		g.testData[k] = true
	}
	if len(g.flow.TestDataFiles) == 0 {
		return
	}
	files, err := composer.Compose(ctx, g.flow, g.flow.TestDataFiles)
	if err != nil {
		g.report(&Issue{
			Type:     IssueComposition,
			Severity: SeverityError,
			Message:  fmt.Sprintf("test data files cannot be composed: %v", err),
		})
		return
	}
	for k := range files {
		g.testData[k] = true
	}
}

// reference records that step reads path.
func (g *Graph) reference(step runtime.Step, path, where string) {
	if strings.HasPrefix(path, "$") {
		return
	}
	segments := runtime.ParsePath(path)
	if len(segments) == 0 {
		return
	}
	if !runtime.IsNamespace(segments[0]) {
		segments = append([]string{runtime.NamespaceTestData}, segments...)
	}

	details := map[string]string{"path": path, "in": where}
	switch segments[0] {
	case runtime.NamespaceSteps:
		if len(segments) < 2 {
			return
		}
		g.stepReference(step, segments[1], details)
	case runtime.NamespaceFlow:
		if len(segments) < 2 {
			return
		}
		g.flowReference(step, segments[1], details)
	case runtime.NamespaceTestData:
		if len(segments) < 2 || g.testData[segments[1]] {
			return
		}
		// test data can still be supplied when the flow is run
		g.report(&Issue{
			Type:     IssueUnboundVariable,
			Severity: SeverityWarning,
			Step:     step.ID,
			Message:  fmt.Sprintf("step '%s' reads '%s' which the flow's test data does not define", step.ID, path),
			Details:  details,
		})
	}
}

func (g *Graph) stepReference(step runtime.Step, target string, details map[string]string) {
	pos, exists := g.index[target]
	if !exists {
		details["dependency"] = target
		g.report(&Issue{
			Type:     IssueUnknownStep,
			Severity: SeverityError,
			Step:     step.ID,
			Message:  fmt.Sprintf("step '%s' reads unknown step '%s'", step.ID, target),
			Details:  details,
		})
		return
	}
	g.link(step.ID, target)
	if pos >= g.index[step.ID] {
		details["dependency"] = target
		g.report(&Issue{
			Type:     IssueForwardReference,
			Severity: SeverityError,
			Step:     step.ID,
			Message:  fmt.Sprintf("step '%s' reads step '%s' before it runs", step.ID, target),
			Details:  details,
		})
	}
}

func (g *Graph) flowReference(step runtime.Step, variable string, details map[string]string) {
	producers := g.producers[variable]
	if len(producers) == 0 {
		g.report(&Issue{
			Type:     IssueUnboundVariable,
			Severity: SeverityError,
			Step:     step.ID,
			Message:  fmt.Sprintf("step '%s' reads flow variable '%s' which no step saves", step.ID, variable),
			Details:  details,
		})
		return
	}

	earlier := false
	for _, producer := range producers {
		g.link(step.ID, producer)
		if g.index[producer] < g.index[step.ID] {
			earlier = true
		}
	}
	if !earlier {
		details["dependency"] = strings.Join(producers, ",")
		g.report(&Issue{
			Type:     IssueForwardReference,
			Severity: SeverityError,
			Step:     step.ID,
			Message:  fmt.Sprintf("step '%s' reads flow variable '%s' before step '%s' saves it", step.ID, variable, producers[0]),
			Details:  details,
		})
	}
}

func (g *Graph) link(from, to string) {
	if from == to {
		return
	}
	g.edges[from] = appendUnique(g.edges[from], to)
	g.reverseEdges[to] = appendUnique(g.reverseEdges[to], from)
}

func (g *Graph) report(issue *Issue) {
	g.issues = append(g.issues, issue)
}

// findCycle detects and returns a cycle in the graph, or nil if no cycle exists
// Uses DFS with recursion stack tracking
func (g *Graph) findCycle() []string {
	visited := make(map[string]bool)
	recStack := make(map[string]bool)
	parent := make(map[string]string)

	var dfs func(node string) []string

	dfs = func(node string) []string {
		visited[node] = true
		recStack[node] = true

		for _, dep := range g.edges[node] {
			if !visited[dep] {
				parent[dep] = node
				if cycle := dfs(dep); cycle != nil {
					return cycle
				}
			} else if recStack[dep] {
				// Found cycle: reconstruct it
				var path []string
				for current := node; current != dep; current = parent[current] {
					path = append([]string{current}, path...)
				}
				cycle := append([]string{dep}, path...)
				return append(cycle, dep)
			}
		}

		recStack[node] = false
		return nil
	}

	for _, node := range g.order {
		if !visited[node] {
			if cycle := dfs(node); cycle != nil {
				return cycle
			}
		}
	}

	return nil
}

// DependsOn returns the steps the given step reads from.
func (g *Graph) DependsOn(stepID string) []string {
	return g.edges[stepID]
}

// Dependents returns the steps that read from the given step.
func (g *Graph) Dependents(stepID string) []string {
	return g.reverseEdges[stepID]
}

// Steps returns the step IDs in flow order.
func (g *Graph) Steps() []string {
	return g.order
}

// Issues returns every problem found, in discovery order.
func (g *Graph) Issues() []*Issue {
	return g.issues
}

// HasErrors reports whether any issue has error severity.
func (g *Graph) HasErrors() bool {
	for _, issue := range g.issues {
		if issue.Severity == SeverityError {
			return true
		}
	}
	return false
}

// saveTargets returns the top-level flow variables a step saves.
func saveTargets(step runtime.Step) []string {
	var targets []string
	for _, mapping := range []map[string]string{step.SaveFromRequest, step.SaveFromResponse} {
		for target := range mapping {
			segments := runtime.ParsePath(strings.TrimPrefix(target, runtime.NamespaceFlow+"."))
			if len(segments) > 0 {
				targets = append(targets, segments[0])
			}
		}
	}
	sort.Strings(targets)
	return targets
}

// selectorPath qualifies a bare selector path under the flow namespace,
// where the resolver looks for resources.
func selectorPath(path string) string {
	segments := runtime.ParsePath(path)
	if strings.HasPrefix(path, "$") || len(segments) == 0 || runtime.IsNamespace(segments[0]) {
		return path
	}
	return runtime.NamespaceFlow + "." + path
}

// takeSelector removes the selector field from the composed parameters
// and returns its value.
func takeSelector(raw map[string]any) any {
	segments := runtime.ParsePath(runtime.SelectorField)
	parent := raw
	for _, seg := range segments[:len(segments)-1] {
		next, ok := parent[seg].(map[string]any)
		if !ok {
			return nil
		}
		parent = next
	}
	last := segments[len(segments)-1]
	v := parent[last]
	delete(parent, last)
	return v
}

func walkStrings(v any, fn func(string)) {
	switch t := v.(type) {
	case string:
		fn(t)
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			walkStrings(t[k], fn)
		}
	case []any:
		for _, child := range t {
			walkStrings(child, fn)
		}
	}
}

func appendUnique(list []string, s string) []string {
	for _, existing := range list {
		if existing == s {
			return list
		}
	}
	return append(list, s)
}

// Severity grades an Issue. Errors fail validation; warnings do not.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one problem found in a flow.
type Issue struct {
	Type     IssueType
	Severity Severity
	Step     string
	Message  string
	Details  map[string]string
}

func (e *Issue) Error() string {
	return e.Message
}

// IssueType represents different kinds of flow problems
type IssueType int

const (
	IssueUnknownStep IssueType = iota
	IssueForwardReference
	IssueUnboundVariable
	IssueUnknownFunction
	IssueComposition
	IssueCircularReference
)

func (t IssueType) String() string {
	switch t {
	case IssueUnknownStep:
		return "unknown_step"
	case IssueForwardReference:
		return "forward_reference"
	case IssueUnboundVariable:
		return "unbound_variable"
	case IssueUnknownFunction:
		return "unknown_function"
	case IssueComposition:
		return "composition"
	case IssueCircularReference:
		return "circular_reference"
	default:
		return "unknown"
	}
}
