package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/BDNK1/flowtest/runtime"
	"github.com/spf13/cobra"
)

var (
	outputFormat string
	reportFile   string
)

var runCmd = &cobra.Command{
	Use:   "run [flow-id...]",
	Short: "Run flows and print a report",
	Long: `Run executes the named flows, or every flow of the project when none
are named. Flows run concurrently up to the project's concurrency limit
and never share state. The command fails when any flow fails.

Example:
  flowtest run
  flowtest run checkout refund --output junit --report-file report.xml
`,
	RunE: runFlows,
}

func init() {
	runCmd.Flags().StringVarP(&outputFormat, "output", "o", "text", "Report format (text, json, junit)")
	runCmd.Flags().StringVar(&reportFile, "report-file", "", "Write the report to a file instead of stdout")
}

func runFlows(cmd *cobra.Command, args []string) error {
	writer, ok := runtime.NewReportWriterRegistry().Get(outputFormat)
	if !ok {
		return fmt.Errorf("unknown output format %q", outputFormat)
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	s, err := openProject(ctx, true)
	if err != nil {
		return err
	}
	defer func() {
		if err := s.close(context.WithoutCancel(ctx)); err != nil {
			s.l.Warn("Shutdown failed", "error", err)
		}
	}()

	reports, runErr := s.App.RunFlows(ctx, args)
	if errors.Is(runErr, runtime.ErrFlowNotFound) {
		return runErr
	}

	if err := writeReport(cmd.OutOrStdout(), writer, reports); err != nil {
		return err
	}

	failed := 0
	for _, r := range reports {
		if !r.Passed() {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d flows failed", failed, len(reports))
	}
	return nil
}

// writeReport writes reports to --report-file when set, otherwise to out.
func writeReport(out io.Writer, writer runtime.ReportWriter, reports []runtime.Report) error {
	if reportFile == "" {
		if err := writer.Write(out, reports); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
		return nil
	}

	f, err := os.Create(reportFile)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	if err := writer.Write(f, reports); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write report: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close report file: %w", err)
	}
	return nil
}
