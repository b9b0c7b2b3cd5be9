// Package dag implements the task DAG and complexity analyzer:
// decomposing a request into atoms via the oracle, detecting
// cycles with Kahn's algorithm, scoring complexity against fixed
// weights, and auto-decomposing atoms that exceed the line threshold.
package dag

import "codegen-forge/forge/internal/types"

// DetectCycle reports whether the dependency relation among atoms
// contains a cycle, via Kahn's algorithm. If an edge references a
// non-existent atom id it returns hasCycle=false, danglingEdge=true
// without running the cycle check — callers treat that as its own
// rejection reason distinct from a cycle.
func DetectCycle(atoms []types.Atom) (hasCycle bool, danglingEdge bool) {
	ids := make(map[string]bool, len(atoms))
	for _, a := range atoms {
		ids[a.ID] = true
	}

	indegree := make(map[string]int, len(atoms))
	adj := make(map[string][]string, len(atoms))
	for _, a := range atoms {
		indegree[a.ID] = 0
	}
	for _, a := range atoms {
		for _, dep := range a.Dependencies {
			if !ids[dep] {
				danglingEdge = true
				continue
			}
			adj[dep] = append(adj[dep], a.ID)
			indegree[a.ID]++
		}
	}
	if danglingEdge {
		return false, true
	}

	var queue []string
	for id, deg := range indegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}

	processed := 0
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		processed++
		for _, m := range adj[n] {
			indegree[m]--
			if indegree[m] == 0 {
				queue = append(queue, m)
			}
		}
	}

	return processed != len(atoms), false
}
