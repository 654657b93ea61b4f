package cmd

import (
	"context"
	"fmt"

	"github.com/BDNK1/flowtest/cli/internal/graph"
	"github.com/spf13/cobra"
)

var strict bool

var validateCmd = &cobra.Command{
	Use:   "validate [flow-id...]",
	Short: "Statically check flows without running them",
	Long: `Validate loads the project and checks every step of the named flows
(or all flows) for calls to unknown functions, parameters that cannot be
composed, and placeholders that read steps or flow variables before any
earlier step produces them.

Reading test data the flow does not define is a warning, since it can be
supplied when the flow is run. --strict turns warnings into failures.
`,
	RunE: validateFlows,
}

func init() {
	validateCmd.Flags().BoolVar(&strict, "strict", false, "Treat warnings as errors")
}

func validateFlows(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, err := openProject(ctx, false)
	if err != nil {
		return err
	}
	defer s.close(context.WithoutCancel(ctx))

	ids := args
	if len(ids) == 0 {
		ids = s.App.FlowIDs()
	}

	out := cmd.OutOrStdout()
	var errorCount, warningCount int
	for _, id := range ids {
		flow, ok := s.App.Flows[id]
		if !ok {
			return fmt.Errorf("flow not found: %s", id)
		}

		g := graph.Build(ctx, &flow, s.Composer, s.App.Container)
		if len(g.Issues()) == 0 {
			fmt.Fprintf(out, "ok    %s\n", id)
			continue
		}
		for _, issue := range g.Issues() {
			if issue.Severity == graph.SeverityError {
				errorCount++
			} else {
				warningCount++
			}
			fmt.Fprintf(out, "%-5s %s: [%s] %s\n", issue.Severity, id, issue.Type, issue.Message)
		}
	}

	if errorCount > 0 || (strict && warningCount > 0) {
		return fmt.Errorf("validation failed: %d errors, %d warnings", errorCount, warningCount)
	}
	return nil
}
