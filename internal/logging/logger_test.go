package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitializeDisabledIsNoop(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Initialize(dir, Options{DebugMode: false}))

	// No logs directory should be created when disabled.
	_, err := os.Stat(filepath.Join(dir, "logs"))
	require.True(t, os.IsNotExist(err))

	// Logging calls must not panic even though nothing is enabled.
	Atom("atom %s transitioned", "a1")
}

func TestInitializeEnabledWritesFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Initialize(dir, Options{DebugMode: true, Level: "debug"}))

	Catalog("froze %d contracts", 3)
	CatalogDebug("debug detail")

	path := filepath.Join(dir, "logs", string(CategoryCatalog)+".log")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "froze 3 contracts")
	require.Contains(t, string(data), "debug detail")
}

func TestCategoryFilterDisablesOne(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Initialize(dir, Options{
		DebugMode:  true,
		Level:      "debug",
		Categories: map[string]bool{string(CategoryDAG): false},
	}))

	l := Get(CategoryDAG)
	require.Nil(t, l.file)
}
