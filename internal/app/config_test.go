package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	require.Equal(t, "data", cfg.DataDir)
	require.Equal(t, BackendJSON, cfg.RegistryBackend)
	require.Equal(t, filepath.Join("data", "registry.json"), cfg.RegistryPath)
	require.Equal(t, filepath.Join("data", "skills"), cfg.SkillsDir)
	require.Equal(t, 5*time.Minute, cfg.IndexCacheTTL)
	require.Equal(t, 30*time.Minute, cfg.IdleTimeout)
	require.Equal(t, 30*time.Second, cfg.ToolTimeout)
	require.Equal(t, DefaultHTTPListenAddress, cfg.HTTPListenAddress)
	require.Empty(t, cfg.MetricsListenAddress)
	require.False(t, cfg.AI.Enabled)
}

func TestLoadConfig_FullFile(t *testing.T) {
	path := writeConfig(t, `
dataDir: /var/lib/mcpagg
registryBackend: bolt
indexCacheTTLSeconds: 60
idleTimeoutSeconds: 600
toolTimeoutSeconds: 15
http:
  listenAddress: 0.0.0.0:9000
observability:
  listenAddress: 127.0.0.1:9091
ai:
  enabled: true
  model: gpt-4o-mini
  apiKeyEnvVar: OPENAI_API_KEY
  timeoutSeconds: 20
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	require.Equal(t, BackendBolt, cfg.RegistryBackend)
	require.Equal(t, filepath.Join("/var/lib/mcpagg", "registry.db"), cfg.RegistryPath)
	require.Equal(t, time.Minute, cfg.IndexCacheTTL)
	require.Equal(t, 10*time.Minute, cfg.IdleTimeout)
	require.Equal(t, 15*time.Second, cfg.ToolTimeout)
	require.Equal(t, "0.0.0.0:9000", cfg.HTTPListenAddress)
	require.Equal(t, "127.0.0.1:9091", cfg.MetricsListenAddress)
	require.True(t, cfg.AI.Enabled)
	require.Equal(t, "gpt-4o-mini", cfg.AI.Model)
	require.Equal(t, "OPENAI_API_KEY", cfg.AI.APIKeyEnvVar)
	require.Equal(t, 20*time.Second, cfg.AI.Timeout)
}

func TestLoadConfig_InvalidBackend(t *testing.T) {
	path := writeConfig(t, "registryBackend: etcd\n")

	_, err := LoadConfig(path)
	require.ErrorContains(t, err, "registryBackend must be")
}

func TestLoadConfig_NegativeTimeouts(t *testing.T) {
	path := writeConfig(t, "toolTimeoutSeconds: -5\n")

	_, err := LoadConfig(path)
	require.ErrorContains(t, err, "toolTimeoutSeconds must be > 0")
}

func TestLoadConfig_AIModelRequired(t *testing.T) {
	path := writeConfig(t, "ai:\n  enabled: true\n")

	_, err := LoadConfig(path)
	require.ErrorContains(t, err, "ai.model is required")
}

func TestLoadConfig_WatchRequiresJSONBackend(t *testing.T) {
	path := writeConfig(t, "registryBackend: bolt\nwatchRegistry: true\n")

	_, err := LoadConfig(path)
	require.ErrorContains(t, err, "watchRegistry requires")
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
