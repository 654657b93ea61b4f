package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the flows of a project",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openProject(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer s.close(context.WithoutCancel(cmd.Context()))

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "FLOW\tSTEPS\tDESCRIPTION")
		for _, id := range s.App.FlowIDs() {
			flow := s.App.Flows[id]
			fmt.Fprintf(tw, "%s\t%d\t%s\n", id, len(flow.Steps), flow.Description)
		}
		return tw.Flush()
	},
}
