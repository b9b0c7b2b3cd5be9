package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codegen-forge/forge/internal/config"
	"codegen-forge/forge/internal/oracle"
	"codegen-forge/forge/internal/types"
)

// fixtureForSingleWidget wires a FixtureAdapter for a minimal one-atom
// run: a single Dto atom that declares a Widget struct, no shared
// contracts, and the supplemental package/architecture-summary calls
// answered with their fixture defaults.
func fixtureForSingleWidget(t *testing.T) *oracle.FixtureAdapter {
	t.Helper()
	a := oracle.NewFixtureAdapter()
	a.RespondAny(oracle.SchemaDecomposition, `{"atoms":[{"id":"widget_model","kind":"Dto","layer":"Core","description":"Widget model","namespace":"Models","expected_types":["Widget"]}]}`)
	a.RespondAny(oracle.SchemaContracts, `{"contracts":[]}`)
	a.RespondAny(oracle.SchemaFragment, `{"fragment":"package models\n\ntype Widget struct {\n\tName string\n}\n"}`)
	return a
}

func TestRunProducesCompletedProject(t *testing.T) {
	outputDir := t.TempDir()
	adapter := fixtureForSingleWidget(t)

	cfg := config.DefaultConfig()
	cfg.Scheduler.WorkerCount = 1

	outcome, err := Run(context.Background(), Options{
		OutputDir:   outputDir,
		Request:     "Build a widget model",
		Description: "Build a widget model",
		Config:      cfg,
		Adapter:     adapter,
	})
	require.NoError(t, err)
	require.NotNil(t, outcome)
	assert.Equal(t, types.ExecutionCompleted, outcome.Status)
	assert.Empty(t, outcome.FailedAtomIDs)
	assert.Equal(t, filepath.Join(outputDir, "project"), outcome.ProjectDir)

	for _, rel := range []string{
		"contracts.json",
		"packages.json",
		filepath.Join("checkpoints", "latest.json"),
		filepath.Join("project", "models", "widget.go"),
		filepath.Join("docs", "architecture.md"),
	} {
		_, statErr := os.Stat(filepath.Join(outputDir, rel))
		assert.NoErrorf(t, statErr, "expected %s to exist", rel)
	}
}

func TestSanitizeRequestStripsControlCharsAndTruncates(t *testing.T) {
	got := SanitizeRequest("hello\x00world\x01\n")
	assert.Equal(t, "helloworld\n", got)

	long := make([]byte, maxRequestChars+500)
	for i := range long {
		long[i] = 'a'
	}
	got = SanitizeRequest(string(long))
	assert.Len(t, []rune(got), maxRequestChars)
}

func TestResumeWithoutExistingCheckpointStartsFresh(t *testing.T) {
	outputDir := t.TempDir()
	adapter := fixtureForSingleWidget(t)

	cfg := config.DefaultConfig()
	cfg.Scheduler.WorkerCount = 1

	outcome, err := Run(context.Background(), Options{
		OutputDir: outputDir,
		Request:   "Build a widget model",
		Config:    cfg,
		Adapter:   adapter,
		Resume:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, types.ExecutionCompleted, outcome.Status)
}
