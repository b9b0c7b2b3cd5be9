package blackboard

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codegen-forge/forge/internal/types"
)

func TestUpdateAndCounts(t *testing.T) {
	b := New(t.TempDir(), "req", "desc")
	b.SetAtoms([]types.Atom{{ID: "a", Status: types.StatusPending}})

	b.Update(types.Atom{ID: "a", Status: types.StatusCompleted})
	completed, failed, pending := b.Counts()
	assert.Equal(t, 1, completed)
	assert.Equal(t, 0, failed)
	assert.Equal(t, 0, pending)
}

func TestAtomsSnapshotIsIndependent(t *testing.T) {
	b := New(t.TempDir(), "req", "desc")
	b.SetAtoms([]types.Atom{{ID: "a", Dependencies: []string{"x"}}})

	snap := b.Atoms()
	snap[0].Dependencies[0] = "mutated"

	got, ok := b.Get("a")
	require.True(t, ok)
	assert.Equal(t, "x", got.Dependencies[0])
}

func TestWriteCheckpointCreatesLatestAndTimestamped(t *testing.T) {
	dir := t.TempDir()
	b := New(dir, "req", "desc")
	b.SetAtoms([]types.Atom{{ID: "a", Status: types.StatusCompleted, GeneratedFragment: "package x"}})

	path, err := b.WriteCheckpoint(types.ExecutionCompleted, "run finished")
	require.NoError(t, err)

	assert.FileExists(t, path)
	assert.FileExists(t, filepath.Join(dir, "checkpoints", "latest.json"))
	assert.FileExists(t, filepath.Join(dir, "checkpoints", "latest.md"))
}

func TestResumeNoCheckpointIsNotAnError(t *testing.T) {
	_, ok, err := Resume(t.TempDir(), "req", "desc")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResumeRoundTrip(t *testing.T) {
	dir := t.TempDir()
	b := New(dir, "req", "desc")
	b.SetAtoms([]types.Atom{
		{ID: "a", Status: types.StatusCompleted, GeneratedFragment: "package x"},
		{ID: "b", Status: types.StatusPending, Dependencies: []string{"a"}},
	})
	_, err := b.WriteCheckpoint(types.ExecutionInProgress, "")
	require.NoError(t, err)

	resumed, ok, err := Resume(dir, "req", "desc")
	require.NoError(t, err)
	require.True(t, ok)

	atoms := resumed.Atoms()
	require.Len(t, atoms, 2)
	completed, _, pending := resumed.Counts()
	assert.Equal(t, 1, completed)
	assert.Equal(t, 1, pending)
	assert.Equal(t, b.runID, resumed.runID)
}

func TestNewAssignsDistinctRunIDs(t *testing.T) {
	a := New(t.TempDir(), "req", "desc")
	b := New(t.TempDir(), "req", "desc")
	assert.NotEmpty(t, a.runID)
	assert.NotEqual(t, a.runID, b.runID)
}
