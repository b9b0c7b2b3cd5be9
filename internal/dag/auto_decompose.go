package dag

import (
	"context"
	"encoding/json"
	"fmt"

	"codegen-forge/forge/internal/forgeerr"
	"codegen-forge/forge/internal/logging"
	"codegen-forge/forge/internal/oracle"
	"codegen-forge/forge/internal/types"
)

type subtasksResponse struct {
	Subtasks []struct {
		ID           string   `json:"id"`
		Description  string   `json:"description"`
		Dependencies []string `json:"dependencies"`
	} `json:"subtasks"`
}

// AutoDecompose splits an over-budget atom into subtaskCount subatoms,
// preserving the parent's namespace, having only the first subatom
// inherit the parent's original dependencies, and
// — for the PartialClass strategy — chaining the subatoms into a linear
// dependency order so the target compiler can recombine them
// deterministically. Each subatom's effective line budget is
// maxThreshold-10.
func AutoDecompose(ctx context.Context, adapter oracle.Adapter, parent types.Atom, strategy Strategy, subtaskCount int, maxThreshold int) ([]types.Atom, error) {
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		raw, err := adapter.Generate(ctx, autoDecomposePrompt(parent, strategy, subtaskCount, maxThreshold), oracle.SchemaSubtasks)
		if err != nil {
			lastErr = err
			logging.DAGDebug("auto_decompose attempt %d: oracle error: %v", attempt, err)
			continue
		}

		var resp subtasksResponse
		if err := json.Unmarshal([]byte(raw), &resp); err != nil {
			lastErr = err
			logging.DAGDebug("auto_decompose attempt %d: unparsable response: %v", attempt, err)
			continue
		}
		if len(resp.Subtasks) == 0 {
			lastErr = fmt.Errorf("oracle returned zero subtasks")
			continue
		}

		subs := make([]types.Atom, 0, len(resp.Subtasks))
		for i, s := range resp.Subtasks {
			sub := types.Atom{
				ID:          s.ID,
				Kind:        parent.Kind,
				Layer:       parent.Layer,
				Status:      types.StatusPending,
				Description: s.Description,
				Namespace:   parent.Namespace,
			}
			if i == 0 {
				sub.Dependencies = append(append([]string{}, parent.Dependencies...), s.Dependencies...)
			} else if strategy == StrategyPartialClass {
				sub.Dependencies = []string{resp.Subtasks[i-1].ID}
			} else {
				sub.Dependencies = s.Dependencies
			}
			subs = append(subs, sub)
		}

		// DetectCycle only knows about ids present in the slice it is
		// given; sub[0] legitimately depends on the parent's original
		// (external, already-validated) dependencies, so those ids are
		// stubbed in as dependency-free atoms purely so the check
		// doesn't mistake them for dangling edges.
		checkSet := append([]types.Atom{}, subs...)
		seen := make(map[string]bool, len(subs))
		for _, s := range subs {
			seen[s.ID] = true
		}
		for _, dep := range parent.Dependencies {
			if !seen[dep] {
				checkSet = append(checkSet, types.Atom{ID: dep})
				seen[dep] = true
			}
		}

		hasCycle, dangling := DetectCycle(checkSet)
		if dangling || hasCycle {
			lastErr = fmt.Errorf("auto-decomposition produced an invalid dependency graph")
			logging.DAGDebug("auto_decompose attempt %d: %v", attempt, lastErr)
			continue
		}

		logging.DAG("auto-decomposed %s into %d subatoms via %s", parent.ID, len(subs), strategy)
		return subs, nil
	}
	return nil, forgeerr.New(forgeerr.CycleDetected, "dag.AutoDecompose", lastErr)
}

func autoDecomposePrompt(parent types.Atom, strategy Strategy, subtaskCount int, maxThreshold int) string {
	return fmt.Sprintf(
		"Split the following oversized atom into %d subtasks using the %s strategy. "+
			"Preserve namespace %q. Each subtask's implementation must fit within %d lines.\nAtom %s: %s",
		subtaskCount, strategy, parent.Namespace, maxThreshold-10, parent.ID, parent.Description,
	)
}
