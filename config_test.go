package samp

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeFile(t, "sampc.yaml", `
metadata:
  samp.name: Analysis
  client.version: "2.0"
scratch_dir: /tmp/tables
heartbeat_interval: 5s
hub:
  start: true
  addr: 127.0.0.1:21012
  lockfile: /tmp/samp-lock
  serve_metrics: true
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "Analysis", cfg.Metadata["samp.name"])
	assert.Equal(t, 5*time.Second, cfg.HeartbeatInterval)
	assert.True(t, cfg.Hub.Start)

	pc := cfg.ProxyConfig()
	assert.True(t, pc.StartHub)
	assert.Equal(t, "/tmp/tables", pc.ScratchDir)
	assert.Equal(t, "127.0.0.1:21012", pc.Hub.Addr)
	assert.Equal(t, "/tmp/samp-lock", pc.Hub.LockfilePath)
	assert.True(t, pc.Hub.ServeMetrics)
	assert.Equal(t, 5*time.Second, pc.Connection.HeartbeatInterval)
	assert.Equal(t, "2.0", pc.Metadata[MetaClientVersion])
}

func TestLoadConfigEmptyPath(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.False(t, cfg.Hub.Start)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := writeFile(t, "bad.yaml", "hub: [unterminated")
	_, err = LoadConfig(path)
	assert.Error(t, err)

	path = writeFile(t, "neg.yaml", "heartbeat_interval: -1s\n")
	_, err = LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), path)
}
