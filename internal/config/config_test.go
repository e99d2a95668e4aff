package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memsql/memsql-loader/internal/config"
)

func TestDataDirPrefersEnvVar(t *testing.T) {
	t.Setenv(config.DataDirEnvVar, "/tmp/custom-data-dir")
	dir, err := config.DataDir()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/custom-data-dir", dir)
}

func TestDataDirFallsBackToHomeDir(t *testing.T) {
	t.Setenv(config.DataDirEnvVar, "")
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	dir, err := config.DataDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".memsql-loader"), dir)
}

func TestLoadAppliesDefaultsWithNoConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfg, err := config.Load(dir)
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, 0, cfg.WorkerPoolSize)
	assert.Equal(t, 0.5, cfg.WorkerSleep)
	assert.Equal(t, 50, cfg.LogMaxSizeMB)
}

func TestLoadReadsConfigFileOverrides(t *testing.T) {
	dir := t.TempDir()
	yaml := "worker_pool_size: 4\nworker_sleep: 1.5\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := config.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.WorkerPoolSize)
	assert.Equal(t, 1.5, cfg.WorkerSleep)
}

func TestLoadEnvVarOverridesConfigFile(t *testing.T) {
	dir := t.TempDir()
	yaml := "worker_pool_size: 4\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))
	t.Setenv("MEMSQL_LOADER_WORKER_POOL_SIZE", "9")

	cfg, err := config.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.WorkerPoolSize)
}
