package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigBudgets(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 3, cfg.Budgets.OracleRoundTrips)
	assert.Equal(t, 3, cfg.Budgets.AutoRepairPasses)
	assert.Equal(t, 3, cfg.Budgets.MergeAutoRepairPasses)
	assert.False(t, cfg.Merge.Interactive)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Scheduler.WorkerCount, cfg.Scheduler.WorkerCount)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "forge.yaml")

	cfg := DefaultConfig()
	cfg.Scheduler.WorkerCount = 8
	require.NoError(t, Save(cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8, loaded.Scheduler.WorkerCount)
}

func TestEnvOverrideWinsOverFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "forge.yaml")
	require.NoError(t, Save(DefaultConfig(), path))

	os.Setenv("FORGE_WORKER_COUNT", "16")
	defer os.Unsetenv("FORGE_WORKER_COUNT")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.Scheduler.WorkerCount)
}
