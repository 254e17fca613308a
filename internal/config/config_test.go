package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMergesYAMLAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("exitRouter: deadbeef\npathCount: 2\n"), 0o600))

	t.Setenv("VEILD_LOG_LEVEL", "debug")

	cfg, err := Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "deadbeef", cfg.ExitRouter)
	assert.Equal(t, 2, cfg.PathCount)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(context.Background(), filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.PathCount)
	assert.Equal(t, "info", cfg.LogLevel)
}
