package runtime

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"

	"golang.org/x/sync/errgroup"
)

type AppConfig struct {
	FlowsDir    string         `yaml:"flows_dir" default:"flows" validate:"required"`
	Concurrency int            `yaml:"concurrency" default:"4" validate:"gte=1,lte=256"`
	Process     map[string]any `yaml:"-"`
}

// App holds the loaded flows and runs them. Each run gets its own
// Execution and Context Store; flows never share state.
type App struct {
	Container *Container
	Executor  *Executor
	Flows     map[string]Flow

	config AppConfig
	l      *slog.Logger
}

// NewApp loads every flow file under cfg.FlowsDir matching the loader's extensions.
func NewApp(l *slog.Logger, cfg AppConfig, loader FlowLoader, container *Container, executor *Executor) (*App, error) {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	app := &App{
		Container: container,
		Executor:  executor,
		Flows:     make(map[string]Flow),
		config:    cfg,
		l:         l,
	}

	if cfg.FlowsDir == "" {
		return app, nil
	}

	files, err := flowFiles(cfg.FlowsDir, loader.Extensions())
	if err != nil {
		return nil, fmt.Errorf("error reading flows directory: %w", err)
	}
	for _, file := range files {
		flow, err := loader.Load(file)
		if err != nil {
			return nil, fmt.Errorf("error loading flow %s: %w", file, err)
		}
		if err := app.RegisterFlow(flow); err != nil {
			return nil, fmt.Errorf("%s: %w", file, err)
		}
	}
	l.Info(fmt.Sprintf("Loaded %d flows", len(app.Flows)), "dir", cfg.FlowsDir)
	return app, nil
}

func flowFiles(dir string, patterns []string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		for _, pattern := range patterns {
			if ok, _ := filepath.Match(pattern, d.Name()); ok {
				files = append(files, path)
				break
			}
		}
		return nil
	})
	sort.Strings(files)
	return files, err
}

// RegisterFlow validates and adds a flow. Flow ids must be unique.
func (a *App) RegisterFlow(flow Flow) error {
	if err := flow.Validate(); err != nil {
		return err
	}
	if _, exists := a.Flows[flow.ID]; exists {
		return fmt.Errorf("duplicate flow id: %s", flow.ID)
	}
	a.Flows[flow.ID] = flow
	return nil
}

// FlowIDs returns all flow ids, sorted.
func (a *App) FlowIDs() []string {
	ids := make([]string, 0, len(a.Flows))
	for id := range a.Flows {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Start initializes plugins.
func (a *App) Start(ctx context.Context) error {
	return a.Container.Initialize(ctx)
}

// Shutdown shuts plugins down.
func (a *App) Shutdown(ctx context.Context) error {
	return a.Container.Shutdown(ctx)
}

// RunFlow executes one flow. A failing flow is reported through the
// returned Report, not the error; the error covers unknown flows and a
// default resource that could not be created.
func (a *App) RunFlow(ctx context.Context, id string, overrides map[string]any) (Report, error) {
	flow, ok := a.Flows[id]
	if !ok {
		return Report{}, fmt.Errorf("%w: %s", ErrFlowNotFound, id)
	}

	execution := NewExecution(ctx, &flow, a.Container, a.config.Process)
	execution.Overrides = overrides

	if provider := a.Container.DefaultProvider(); provider != nil {
		res, err := provider.DefaultResource(ctx)
		if err != nil {
			return Report{}, fmt.Errorf("flow %s: default resource: %w", id, err)
		}
		execution.DefaultResource = res
	}
	defer a.teardown(execution)

	// the failure is recorded on the execution
	_ = a.Executor.ExecuteSteps(execution)
	return execution.Report(), nil
}

// RunFlows runs the given flows concurrently, at most Concurrency at a time.
// A failing flow does not cancel the others. Reports are returned in the
// order of ids; no ids means every flow.
func (a *App) RunFlows(ctx context.Context, ids []string) ([]Report, error) {
	if len(ids) == 0 {
		ids = a.FlowIDs()
	}
	for _, id := range ids {
		if _, ok := a.Flows[id]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrFlowNotFound, id)
		}
	}

	reports := make([]Report, len(ids))
	errs := make([]error, len(ids))

	var g errgroup.Group
	g.SetLimit(a.config.Concurrency)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			reports[i], errs[i] = a.RunFlow(ctx, id, nil)
			if errs[i] != nil {
				reports[i] = Report{FlowID: id, State: StateFailed, Failure: &FlowError{Kind: KindSetup, Message: errs[i].Error()}}
			}
			return nil
		})
	}
	_ = g.Wait()

	return reports, errors.Join(errs...)
}

func (a *App) teardown(execution *Execution) {
	for _, c := range execution.closers() {
		if err := c.Close(); err != nil {
			a.l.Warn(fmt.Sprintf("Failed to release resource %s", Stringify(c)),
				"flow", execution.Flow.ID,
				"execution", execution.ID,
				"error", err)
		}
	}
}
