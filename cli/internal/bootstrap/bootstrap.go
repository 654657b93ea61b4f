// Package bootstrap assembles a runnable App from a project configuration.
package bootstrap

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/BDNK1/flowtest/cli/internal/config"
	datapl "github.com/BDNK1/flowtest/plugins/data"
	httppl "github.com/BDNK1/flowtest/plugins/http"
	postgrespl "github.com/BDNK1/flowtest/plugins/postgres"
	"github.com/BDNK1/flowtest/runtime"
	flowyaml "github.com/BDNK1/flowtest/runtime/engine/yaml"
)

// Project is a configured App together with the pieces a static check needs.
type Project struct {
	Config   *config.ProjectConfig
	App      *runtime.App
	Composer runtime.ParameterComposer
}

// Plugins returns fresh instances of the built-in plugins keyed by the
// name flows call them by.
func Plugins() map[string]any {
	return map[string]any{
		"http":     &httppl.HTTPPlugin{},
		"postgres": &postgrespl.PostgresPlugin{},
		"data":     datapl.New(),
	}
}

// Build registers the built-in plugins with their project config, wires the
// YAML engine and loads every flow under the flows directory. Plugins are
// not initialized; call App.Start before running flows.
func Build(l *slog.Logger, cfg *config.ProjectConfig) (*Project, error) {
	plugins := Plugins()
	for name := range cfg.Plugins {
		if _, ok := plugins[name]; !ok {
			return nil, fmt.Errorf("plugins.%s: unknown plugin", name)
		}
	}

	container := runtime.NewContainer()
	names := make([]string, 0, len(plugins))
	for name := range plugins {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := container.RegisterPlugin(name, plugins[name], cfg.Plugins[name]); err != nil {
			return nil, err
		}
	}

	if cfg.DefaultResource != "" && cfg.DefaultResource != "none" {
		if err := container.UseDefaultProvider(cfg.DefaultResource); err != nil {
			return nil, err
		}
	}

	fragmentDir := cfg.FragmentDir()
	composer := flowyaml.NewFragmentComposer(fragmentDir)
	executor := runtime.NewExecutor(l,
		composer,
		runtime.NewResolver(nil),
		flowyaml.NewExpressionEvaluator(),
		runtime.NewInvoker(l),
	)

	app, err := runtime.NewApp(l, cfg.AppConfig(), flowyaml.NewFlowLoader(fragmentDir), container, executor)
	if err != nil {
		return nil, err
	}

	l.Debug("Project loaded",
		"project", cfg.Name,
		"flows", len(app.Flows),
		"functions", len(container.Functions()))

	return &Project{Config: cfg, App: app, Composer: composer}, nil
}
