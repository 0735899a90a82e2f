package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, ":9444", cfg.ListenAddr)
	assert.True(t, cfg.Aggregator)
	assert.NotEmpty(t, cfg.SocketPath)
	assert.NotEmpty(t, cfg.Prefix)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlContent := "listenAddr: \":9999\"\naggregator: false\ntraceMaxSize: 1024\n"
	require.NoError(t, os.WriteFile(path, []byte(yamlContent), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.ListenAddr)
	assert.False(t, cfg.Aggregator)
	assert.EqualValues(t, 1024, cfg.TraceMaxSize)
}

func TestLoadMissingFileIsError(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("PROXY_PATH", "/tmp/custom.socket")
	t.Setenv("METRIC_PROXY_AGGREGATOR", "false")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/custom.socket", cfg.SocketPath)
	assert.False(t, cfg.Aggregator)
}
