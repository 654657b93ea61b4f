package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BDNK1/flowtest/internal/security"
	"github.com/BDNK1/flowtest/runtime"
	"gopkg.in/yaml.v3"
)

// DefaultFileName is the project file looked up in a project directory.
const DefaultFileName = "flowtest.yaml"

// ProjectConfig represents the flowtest.yaml structure
type ProjectConfig struct {
	Name            string                    `yaml:"name"` // Optional: defaults to directory name
	FlowsDir        string                    `yaml:"flows_dir" default:"flows" validate:"required"`
	BaseDir         string                    `yaml:"base_dir"` // Optional: fragment root, defaults to each flow's directory
	Concurrency     int                       `yaml:"concurrency" default:"4" validate:"gte=1,lte=256"`
	DefaultResource string                    `yaml:"default_resource" default:"http"`
	Env             map[string]string         `yaml:"env"`
	Log             runtime.LogConfig         `yaml:"log"`
	Telemetry       runtime.TelemetryConfig   `yaml:"telemetry"`
	Server          ServerConfig              `yaml:"server"`
	Plugins         map[string]map[string]any `yaml:"plugins"`

	// Dir is the directory holding the project file; relative paths are
	// resolved against it.
	Dir string `yaml:"-"`
}

type ServerConfig struct {
	Port string `yaml:"port" default:"8080" validate:"numeric"`
}

// Load reads flowtest.yaml from path, which may be the file itself or the
// project directory. ${VAR} and ${VAR:default} values are substituted
// before decoding.
func Load(path string) (*ProjectConfig, error) {
	dir, name := path, DefaultFileName
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		dir, name = filepath.Dir(path), filepath.Base(path)
	}

	// Security: Validate configPath is within project directory
	configPath, err := security.ResolveWithin(dir, name)
	if err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s from %q: %w", name, configPath, err)
	}

	cfg, err := Parse(data, os.LookupEnv)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", configPath, err)
	}

	cfg.Dir = filepath.Dir(configPath)

	// Security: relative project paths must not climb out of the project
	var relative []string
	for _, p := range []string{cfg.FlowsDir, cfg.BaseDir} {
		if p != "" && !filepath.IsAbs(p) {
			relative = append(relative, cfg.resolve(p))
		}
	}
	if err := security.ValidatePathsWithinBoundary(cfg.Dir, relative...); err != nil {
		return nil, fmt.Errorf("%s: %w", configPath, err)
	}

	if cfg.Name == "" {
		cfg.Name = filepath.Base(cfg.Dir)
	}
	return cfg, nil
}

// Parse decodes a project file, substituting environment references with
// lookup, then applies defaults and validates.
func Parse(data []byte, lookup func(string) (string, bool)) (*ProjectConfig, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg := &ProjectConfig{}
	if len(doc.Content) > 0 {
		if err := expandNode(&doc, lookup); err != nil {
			return nil, err
		}
		if err := doc.Decode(cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config: %w", err)
		}
	}

	if err := runtime.PrepareConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// expandNode substitutes env references in every string scalar. Substituted
// scalars are re-typed from their new text, so ${PORT:8080} decodes into an int.
func expandNode(n *yaml.Node, lookup func(string) (string, bool)) error {
	if n.Kind == yaml.ScalarNode {
		if n.ShortTag() != "!!str" {
			return nil
		}
		spec := ParseEnvVar(n.Value)
		if spec.IsLiteral {
			return nil
		}
		value, err := spec.Resolve(lookup)
		if err != nil {
			return fmt.Errorf("line %d: %w", n.Line, err)
		}
		n.Value = value
		n.Tag = ""
		n.Style = 0
		return nil
	}

	var errs []error
	for _, child := range n.Content {
		errs = append(errs, expandNode(child, lookup))
	}
	return errors.Join(errs...)
}

// AppConfig derives the runtime configuration. The process namespace holds
// the OS environment overlaid with the project's env values.
func (c *ProjectConfig) AppConfig() runtime.AppConfig {
	extra := make(map[string]any, len(c.Env))
	for k, v := range c.Env {
		extra[k] = v
	}
	return runtime.AppConfig{
		FlowsDir:    c.resolve(c.FlowsDir),
		Concurrency: c.Concurrency,
		Process:     runtime.ProcessSnapshot(extra),
	}
}

// FragmentDir is the directory file fragments resolve against, or "" to
// use each flow file's own directory.
func (c *ProjectConfig) FragmentDir() string {
	if c.BaseDir == "" {
		return ""
	}
	return c.resolve(c.BaseDir)
}

func (c *ProjectConfig) resolve(p string) string {
	if filepath.IsAbs(p) || c.Dir == "" {
		return p
	}
	return filepath.Join(c.Dir, p)
}
