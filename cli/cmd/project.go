package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/BDNK1/flowtest/cli/internal/bootstrap"
	"github.com/BDNK1/flowtest/cli/internal/config"
	"github.com/BDNK1/flowtest/runtime"
)

// session is a loaded project with its logger and telemetry.
type session struct {
	*bootstrap.Project
	l         *slog.Logger
	telemetry *runtime.Telemetry
	started   bool
}

// openProject loads the project named by --config, applies the log flags
// and builds the App. When start is set the plugins are initialized too.
func openProject(ctx context.Context, start bool) (*session, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}

	telemetry, err := runtime.SetupTelemetry(ctx, cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	l := telemetry.Logger(runtime.NewLogger(cfg.Log, os.Stderr))

	project, err := bootstrap.Build(l, cfg)
	if err != nil {
		return nil, errors.Join(err, telemetry.Shutdown(ctx))
	}

	s := &session{Project: project, l: l, telemetry: telemetry}
	if start {
		if err := project.App.Start(ctx); err != nil {
			return nil, errors.Join(err, s.close(ctx))
		}
		s.started = true
	}
	return s, nil
}

// close shuts down plugins and flushes telemetry.
func (s *session) close(ctx context.Context) error {
	var errs []error
	if s.started {
		errs = append(errs, s.App.Shutdown(ctx))
	}
	errs = append(errs, s.telemetry.Shutdown(ctx))
	return errors.Join(errs...)
}
