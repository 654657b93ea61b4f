package yaml

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BDNK1/flowtest/runtime"
	goyaml "gopkg.in/yaml.v3"
)

// FlowLoader loads flow definitions from YAML files.
type FlowLoader struct {
	baseDir string
}

// NewFlowLoader returns a loader resolving file fragments against baseDir,
// or against each flow file's own directory when baseDir is empty.
func NewFlowLoader(baseDir string) *FlowLoader {
	return &FlowLoader{baseDir: baseDir}
}

func (l *FlowLoader) Extensions() []string {
	return []string{"*.yaml", "*.yml"}
}

func (l *FlowLoader) Load(filePath string) (runtime.Flow, error) {
	yamlFile, err := os.ReadFile(filePath)
	if err != nil {
		return runtime.Flow{}, fmt.Errorf("error reading YAML file: %w", err)
	}

	var flow runtime.Flow
	if err := goyaml.Unmarshal(yamlFile, &flow); err != nil {
		return runtime.Flow{}, fmt.Errorf("error unmarshalling YAML: %w", err)
	}

	if flow.ID == "" {
		name := filepath.Base(filePath)
		flow.ID = strings.TrimSuffix(name, filepath.Ext(name))
	}

	flow.BaseDir = l.baseDir
	if flow.BaseDir == "" {
		flow.BaseDir = filepath.Dir(filePath)
	}

	if err := flow.Validate(); err != nil {
		return runtime.Flow{}, err
	}
	return flow, nil
}
