// Package scheduler implements the wave-based driver: a single-threaded
// cooperative driver dispatching a bounded worker pool of oracle-driven
// atom executions per wave, built on a dependency-count/dependents DAG
// executor pattern but restructured into discrete, quiescent waves
// instead of a continuously draining channel — a wave is the current
// Ready set evaluated at quiescence.
package scheduler

import (
	"context"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"codegen-forge/forge/internal/blackboard"
	"codegen-forge/forge/internal/logging"
	"codegen-forge/forge/internal/types"
)

// RunFunc executes one atom's full per-atom compile/classify/repair loop
// and returns its terminal state. It must respect ctx cancellation and
// must not mutate any atom other than the one it was given — the
// scheduler is the sole Blackboard writer.
type RunFunc func(ctx context.Context, atom types.Atom) types.Atom

// Scheduler drives a DAG of atoms to completion (or to Aborted/Failed).
type Scheduler struct {
	workerCount int
	gracePeriod time.Duration
	run         RunFunc
	bb          *blackboard.Blackboard
}

// New constructs a Scheduler bound to one Blackboard.
func New(workerCount int, gracePeriod time.Duration, run RunFunc, bb *blackboard.Blackboard) *Scheduler {
	if workerCount < 1 {
		workerCount = 1
	}
	return &Scheduler{workerCount: workerCount, gracePeriod: gracePeriod, run: run, bb: bb}
}

// Run drives atoms to a terminal ExecutionStatus. If the Blackboard was
// seeded via blackboard.Resume, already-Completed atoms are skipped and
// never re-run; otherwise atoms seeds the initial set.
func (s *Scheduler) Run(ctx context.Context, atoms []types.Atom) (types.ExecutionStatus, error) {
	if len(s.bb.Atoms()) == 0 {
		s.bb.SetAtoms(atoms)
	}

	waveIndex := 0
	for {
		if ctx.Err() != nil {
			_, err := s.bb.WriteCheckpoint(types.ExecutionAborted, "canceled before next wave")
			return types.ExecutionAborted, err
		}

		cascadeFailures(s.bb)
		snapshot := s.bb.Atoms()

		ready := readySet(snapshot)
		if len(ready) == 0 {
			break
		}
		sort.Slice(ready, func(i, j int) bool {
			ri, rj := types.LayerRank(ready[i].Layer), types.LayerRank(ready[j].Layer)
			if ri != rj {
				return ri < rj
			}
			return ready[i].ID < ready[j].ID
		})

		dispatch := ready
		if len(dispatch) > s.workerCount {
			dispatch = dispatch[:s.workerCount]
		}
		for _, a := range dispatch {
			a.Status = types.StatusInProgress
			s.bb.Update(a)
		}

		waveCtx, cancel := context.WithCancel(ctx)
		g, gctx := errgroup.WithContext(waveCtx)
		sem := semaphore.NewWeighted(int64(s.workerCount))

		for dispatchIndex, atom := range dispatch {
			atom := atom
			idx := dispatchIndex
			if err := sem.Acquire(gctx, 1); err != nil {
				break
			}
			g.Go(func() error {
				defer sem.Release(1)
				logging.Audit().WaveDispatch(atom.ID, waveIndex, idx)
				logging.SchedulerDebug("wave %d dispatching %s", waveIndex, atom.ID)
				result := s.run(gctx, atom)
				s.bb.Update(result)
				return nil
			})
		}

		waitErr := waitWave(ctx, g, s.gracePeriod)
		cancel()
		waveIndex++

		if _, err := s.bb.WriteCheckpoint(types.ExecutionInProgress, ""); err != nil {
			return types.ExecutionFailed, err
		}

		if waitErr != nil {
			_, err := s.bb.WriteCheckpoint(types.ExecutionAborted, "canceled mid-wave, grace period exceeded")
			return types.ExecutionAborted, err
		}
	}

	completed, failed, _ := s.bb.Counts()
	status := types.ExecutionCompleted
	summary := "all atoms completed"
	if failed > 0 {
		status = types.ExecutionFailed
		summary = "one or more atoms exhausted their retry budget"
	}
	logging.Audit().RunOutcome(string(status), completed, failed)
	if _, err := s.bb.WriteCheckpoint(status, summary); err != nil {
		return status, err
	}
	return status, nil
}

// waitWave blocks until g.Wait() returns, unless ctx is canceled first —
// in which case it grants up to grace additional time for in-flight
// atoms before giving up, so a final checkpoint can still be written.
func waitWave(ctx context.Context, g *errgroup.Group, grace time.Duration) error {
	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		select {
		case err := <-done:
			return err
		case <-time.After(grace):
			return ctx.Err()
		}
	}
}

// readySet returns every Pending atom whose dependencies are all
// Completed.
func readySet(atoms []types.Atom) []types.Atom {
	byID := make(map[string]types.Atom, len(atoms))
	for _, a := range atoms {
		byID[a.ID] = a
	}
	var ready []types.Atom
	for _, a := range atoms {
		if a.Status != types.StatusPending && a.Status != types.StatusReady {
			continue
		}
		allDone := true
		for _, dep := range a.Dependencies {
			if byID[dep].Status != types.StatusCompleted {
				allDone = false
				break
			}
		}
		if allDone {
			ready = append(ready, a)
		}
	}
	return ready
}

// cascadeFailures marks every non-terminal atom Failed(dependency_failed)
// if any of its dependencies has failed, without invoking the oracle —
// its dependents become structurally unreachable. Runs to a fixpoint so
// multi-level cascades resolve within one call.
func cascadeFailures(bb *blackboard.Blackboard) {
	for {
		snapshot := bb.Atoms()
		byID := make(map[string]types.Atom, len(snapshot))
		for _, a := range snapshot {
			byID[a.ID] = a
		}

		changed := false
		for _, a := range snapshot {
			if a.Status.Terminal() {
				continue
			}
			for _, dep := range a.Dependencies {
				if byID[dep].Status == types.StatusFailed {
					a.Status = types.StatusFailed
					a.FailureCause = "dependency_failed"
					bb.Update(a)
					changed = true
					break
				}
			}
		}
		if !changed {
			return
		}
	}
}
