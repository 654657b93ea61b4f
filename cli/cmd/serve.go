package cmd

import (
	"context"
	"net"
	"os/signal"
	"syscall"

	"github.com/BDNK1/flowtest/cli/internal/server"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

var port string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the project's flows over HTTP",
	Long: `Serve exposes the project's flows on an HTTP API:

  GET  /flows           list flows
  GET  /flows/:id       describe a flow
  POST /flows/:id/run   run a flow, optionally with {"test_data": {...}}
  GET  /healthz         liveness
  GET  /metrics         Prometheus metrics
`,
	Args: cobra.NoArgs,
	RunE: serve,
}

func init() {
	serveCmd.Flags().StringVarP(&port, "port", "p", "", "Listen port (defaults to server.port of the project)")
}

func serve(cmd *cobra.Command, args []string) error {
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

	if port == "" {
		port = s.Config.Server.Port
	}
	gin.SetMode(gin.ReleaseMode)
	return server.Serve(ctx, s.l, net.JoinHostPort("", port), server.NewRouter(s.App))
}
