package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("name: demo\n"), lookupFrom(nil))
	require.NoError(t, err)

	assert.Equal(t, "demo", cfg.Name)
	assert.Equal(t, "flows", cfg.FlowsDir)
	assert.Equal(t, 4, cfg.Concurrency)
	assert.Equal(t, "http", cfg.DefaultResource)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, "flowtest", cfg.Telemetry.ServiceName)
	assert.Equal(t, 15*time.Second, cfg.Telemetry.MetricInterval)
	assert.Equal(t, "8080", cfg.Server.Port)
}

func TestParse_EnvSubstitution(t *testing.T) {
	data := []byte(`
concurrency: ${WORKERS:2}
env:
  BASE_URL: ${BASE_URL}
  TENANT: acme
log:
  level: ${LOG_LEVEL:warn}
plugins:
  http:
    base_url: ${BASE_URL}
    timeout: 5s
  postgres:
    connection_string: "${DSN:postgres://qa:qa@localhost/app}"
`)
	cfg, err := Parse(data, lookupFrom(map[string]string{"BASE_URL": "http://api.test", "WORKERS": "8"}))
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Concurrency)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, map[string]string{"BASE_URL": "http://api.test", "TENANT": "acme"}, cfg.Env)
	assert.Equal(t, "http://api.test", cfg.Plugins["http"]["base_url"])
	assert.Equal(t, "5s", cfg.Plugins["http"]["timeout"])
	assert.Equal(t, "postgres://qa:qa@localhost/app", cfg.Plugins["postgres"]["connection_string"])
}

func TestParse_Errors(t *testing.T) {
	tests := map[string]string{
		"missing env":         "plugins:\n  http:\n    base_url: ${NOPE}\n",
		"invalid yaml":        "concurrency: [\n",
		"validation":          "concurrency: 300\n",
		"bad log format":      "log:\n  format: xml\n",
		"bad type":            "concurrency: many\n",
		"non numeric port":    "server:\n  port: http\n",
		"bad metric interval": "telemetry:\n  metric_interval: 10ms\n",
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(data), lookupFrom(nil))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	project := filepath.Join(dir, "checkout")
	require.NoError(t, os.MkdirAll(project, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(project, DefaultFileName),
		[]byte("flows_dir: scenarios\nbase_dir: payloads\nenv:\n  REGION: eu\n"), 0o644))

	for _, path := range []string{project, filepath.Join(project, DefaultFileName)} {
		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, "checkout", cfg.Name)
		assert.Equal(t, project, cfg.Dir)
		assert.Equal(t, filepath.Join(project, "payloads"), cfg.FragmentDir())

		app := cfg.AppConfig()
		assert.Equal(t, filepath.Join(project, "scenarios"), app.FlowsDir)
		assert.Equal(t, 4, app.Concurrency)
		assert.Equal(t, "eu", app.Process["REGION"])
	}

	_, err := Load(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestLoad_RejectsEscapingDirs(t *testing.T) {
	for _, content := range []string{"flows_dir: ../shared\n", "base_dir: fragments/../../x\n"} {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultFileName), []byte(content), 0o644))

		_, err := Load(dir)
		assert.ErrorContains(t, err, "path traversal detected", content)
	}
}

func TestProjectConfig_FragmentDirDefault(t *testing.T) {
	cfg := &ProjectConfig{Dir: "/srv/suite", FlowsDir: "/abs/flows"}
	assert.Equal(t, "", cfg.FragmentDir())
	assert.Equal(t, "/abs/flows", cfg.AppConfig().FlowsDir)
}
