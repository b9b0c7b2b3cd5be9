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

type decompositionResponse struct {
	Atoms []atomJSON `json:"atoms"`
}

type atomJSON struct {
	ID            string   `json:"id"`
	Kind          string   `json:"kind"`
	Layer         string   `json:"layer"`
	Dependencies  []string `json:"dependencies"`
	Description   string   `json:"description"`
	Namespace     string   `json:"namespace"`
	ExpectedTypes []string `json:"expected_types"`
}

func (a atomJSON) toAtom() types.Atom {
	return types.Atom{
		ID:            a.ID,
		Kind:          types.AtomKind(a.Kind),
		Layer:         types.Layer(a.Layer),
		Status:        types.StatusPending,
		Dependencies:  a.Dependencies,
		Description:   a.Description,
		Namespace:     a.Namespace,
		ExpectedTypes: a.ExpectedTypes,
	}
}

// Decompose calls the oracle with the DAG-JSON schema and rejects (then
// retries) a result whose edges reference a non-existent id or that
// contains a cycle, per the Exhausting 3 attempts is fatal with
// CycleDetected.
func Decompose(ctx context.Context, adapter oracle.Adapter, request string) ([]types.Atom, error) {
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		raw, err := adapter.Generate(ctx, decompositionPrompt(request), oracle.SchemaDecomposition)
		if err != nil {
			lastErr = err
			logging.DAGDebug("decompose attempt %d: oracle error: %v", attempt, err)
			continue
		}

		var resp decompositionResponse
		if err := json.Unmarshal([]byte(raw), &resp); err != nil {
			lastErr = err
			logging.DAGDebug("decompose attempt %d: unparsable response: %v", attempt, err)
			continue
		}

		atoms := make([]types.Atom, 0, len(resp.Atoms))
		for _, a := range resp.Atoms {
			atoms = append(atoms, a.toAtom())
		}

		hasCycle, dangling := DetectCycle(atoms)
		if dangling {
			lastErr = fmt.Errorf("decomposition references a non-existent atom id")
			logging.DAGDebug("decompose attempt %d: %v", attempt, lastErr)
			continue
		}
		if hasCycle {
			lastErr = fmt.Errorf("decomposition contains a dependency cycle")
			logging.DAGDebug("decompose attempt %d: %v", attempt, lastErr)
			continue
		}

		logging.DAG("decomposed request into %d atoms", len(atoms))
		return atoms, nil
	}
	return nil, forgeerr.New(forgeerr.CycleDetected, "dag.Decompose", lastErr)
}

func decompositionPrompt(request string) string {
	return fmt.Sprintf("Decompose the following request into a DAG of atomic code-generation tasks. Every dependency id must reference another atom in the same result, and the dependency graph must be acyclic.\nRequest: %s", request)
}
