package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"codegen-forge/forge/internal/blackboard"
	"codegen-forge/forge/internal/types"
)

// recordingRun completes every atom it is given and records dispatch
// order under a mutex, so tests can assert the linear-chain wave
// ordering the scenario 1 describes.
func recordingRun(order *[]string, mu *sync.Mutex) RunFunc {
	return func(ctx context.Context, atom types.Atom) types.Atom {
		mu.Lock()
		*order = append(*order, atom.ID)
		mu.Unlock()
		atom.Status = types.StatusCompleted
		atom.GeneratedFragment = "package x"
		return atom
	}
}

func TestLinearChainDispatchesOneWavePerAtom(t *testing.T) {
	defer goleak.VerifyNone(t)

	var order []string
	var mu sync.Mutex
	bb := blackboard.New(t.TempDir(), "req", "desc")
	sched := New(4, time.Second, recordingRun(&order, &mu), bb)

	atoms := []types.Atom{
		{ID: "a", Status: types.StatusPending},
		{ID: "b", Status: types.StatusPending, Dependencies: []string{"a"}},
		{ID: "c", Status: types.StatusPending, Dependencies: []string{"b"}},
	}

	status, err := sched.Run(context.Background(), atoms)
	require.NoError(t, err)
	assert.Equal(t, types.ExecutionCompleted, status)
	assert.Equal(t, []string{"a", "b", "c"}, order)

	completed, failed, pending := bb.Counts()
	assert.Equal(t, 3, completed)
	assert.Equal(t, 0, failed)
	assert.Equal(t, 0, pending)
}

func TestFailedAtomCascadesToDependents(t *testing.T) {
	defer goleak.VerifyNone(t)

	run := func(ctx context.Context, atom types.Atom) types.Atom {
		atom.Status = types.StatusFailed
		atom.FailureCause = "atom_exhausted"
		return atom
	}
	bb := blackboard.New(t.TempDir(), "req", "desc")
	sched := New(4, time.Second, run, bb)

	atoms := []types.Atom{
		{ID: "a", Status: types.StatusPending},
		{ID: "b", Status: types.StatusPending, Dependencies: []string{"a"}},
	}

	status, err := sched.Run(context.Background(), atoms)
	require.NoError(t, err)
	assert.Equal(t, types.ExecutionFailed, status)

	b, ok := bb.Get("b")
	require.True(t, ok)
	assert.Equal(t, types.StatusFailed, b.Status)
	assert.Equal(t, "dependency_failed", b.FailureCause)
}

func TestCancellationProducesAbortedCheckpoint(t *testing.T) {
	defer goleak.VerifyNone(t)

	started := make(chan struct{})
	run := func(ctx context.Context, atom types.Atom) types.Atom {
		close(started)
		<-ctx.Done()
		atom.Status = types.StatusFailed
		atom.FailureCause = "canceled"
		return atom
	}
	bb := blackboard.New(t.TempDir(), "req", "desc")
	sched := New(1, 50*time.Millisecond, run, bb)

	ctx, cancel := context.WithCancel(context.Background())
	atoms := []types.Atom{{ID: "a", Status: types.StatusPending}}

	done := make(chan types.ExecutionStatus, 1)
	go func() {
		status, err := sched.Run(ctx, atoms)
		require.NoError(t, err)
		done <- status
	}()

	<-started
	cancel()

	select {
	case status := <-done:
		assert.Equal(t, types.ExecutionAborted, status)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not return after cancellation")
	}
}

func TestReadySetRespectsDependencies(t *testing.T) {
	atoms := []types.Atom{
		{ID: "a", Status: types.StatusCompleted},
		{ID: "b", Status: types.StatusPending, Dependencies: []string{"a"}},
		{ID: "c", Status: types.StatusPending, Dependencies: []string{"missing"}},
	}
	ready := readySet(atoms)
	require.Len(t, ready, 1)
	assert.Equal(t, "b", ready[0].ID)
}
