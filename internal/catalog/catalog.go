// Package catalog implements the Contract Catalog: the freeze-once
// registry of shared symbols every atom must agree with before
// implementation begins.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"codegen-forge/forge/internal/forgeerr"
	"codegen-forge/forge/internal/logging"
	"codegen-forge/forge/internal/oracle"
	"codegen-forge/forge/internal/policy"
	"codegen-forge/forge/internal/types"
)

// DefaultNamespace resolves the namespace default policy: Models for
// enums/DTOs, Services for interfaces/abstracts, unless overridden.
func DefaultNamespace(kind types.ContractKind) string {
	switch kind {
	case types.ContractEnum, types.ContractModel:
		return "Models"
	case types.ContractInterface, types.ContractAbstract:
		return "Services"
	default:
		return "Models"
	}
}

// Catalog is the mutable-until-frozen contract registry.
type Catalog struct {
	mu        sync.RWMutex
	contracts []types.Contract
	byFQN     map[string]types.Contract
	bySimple  map[string][]types.Contract
	frozen    bool
	guard     *policy.Engine
}

// New constructs an empty, unfrozen Catalog backed by its own policy
// engine for guardrail evaluation.
func New() (*Catalog, error) {
	g, err := policy.New()
	if err != nil {
		return nil, fmt.Errorf("catalog: new policy engine: %w", err)
	}
	return &Catalog{
		byFQN:    make(map[string]types.Contract),
		bySimple: make(map[string][]types.Contract),
		guard:    g,
	}, nil
}

// Add registers one contract. It is idempotent-unsafe by design: a
// duplicate fqn is a fatal ContractOverlap, never silently merged.
func (c *Catalog) Add(contract types.Contract) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.frozen {
		return forgeerr.New(forgeerr.ContractOverlap, "catalog.Add", fmt.Errorf("catalog is frozen"))
	}
	if contract.Namespace == "" {
		contract.Namespace = DefaultNamespace(contract.Kind)
	}
	fqn := contract.FQN()
	if _, exists := c.byFQN[fqn]; exists {
		return forgeerr.New(forgeerr.ContractOverlap, "catalog.Add", fmt.Errorf("duplicate fqn %s", fqn))
	}
	if contract.Kind == types.ContractEnum {
		seen := make(map[string]bool, len(contract.Members))
		for _, m := range contract.Members {
			if seen[m] {
				return forgeerr.New(forgeerr.ContractOverlap, "catalog.Add", fmt.Errorf("enum %s declares member %s twice", fqn, m))
			}
			seen[m] = true
		}
	}

	c.contracts = append(c.contracts, contract)
	c.byFQN[fqn] = contract
	c.bySimple[contract.Name] = append(c.bySimple[contract.Name], contract)
	return nil
}

// Freeze is the one-shot transition to a frozen, read-only catalog.
func (c *Catalog) Freeze() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.frozen {
		return forgeerr.New(forgeerr.ContractOverlap, "catalog.Freeze", fmt.Errorf("already frozen"))
	}
	c.frozen = true
	logging.Catalog("froze %d contracts", len(c.contracts))
	return nil
}

func (c *Catalog) Frozen() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.frozen
}

func (c *Catalog) LookupByFQN(fqn string) (types.Contract, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ct, ok := c.byFQN[fqn]
	return ct, ok
}

func (c *Catalog) LookupBySimple(name string) []types.Contract {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]types.Contract, len(c.bySimple[name]))
	copy(out, c.bySimple[name])
	return out
}

func (c *Catalog) ListByKind(kind types.ContractKind) []types.Contract {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []types.Contract
	for _, ct := range c.contracts {
		if ct.Kind == kind {
			out = append(out, ct)
		}
	}
	return out
}

// All returns every registered contract, sorted by fqn for deterministic
// iteration (consumed by prompt assembly and by documentation export).
func (c *Catalog) All() []types.Contract {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]types.Contract, len(c.contracts))
	copy(out, c.contracts)
	sort.Slice(out, func(i, j int) bool { return out[i].FQN() < out[j].FQN() })
	return out
}

// AmbiguousSimpleNames returns every simple name mapping to more than one
// fqn, used by prompt assembly to surface ambiguity warnings for every
// simple name that maps to more than one fqn.
func (c *Catalog) AmbiguousSimpleNames() map[string][]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string][]string)
	for simple, cs := range c.bySimple {
		if len(cs) < 2 {
			continue
		}
		var fqns []string
		for _, ct := range cs {
			fqns = append(fqns, ct.FQN())
		}
		sort.Strings(fqns)
		out[simple] = fqns
	}
	return out
}

// ValidateFragment runs the purely syntactic guardrail scan against one
// generated fragment's extracted facts.
func (c *Catalog) ValidateFragment(facts policy.FragmentFacts) ([]types.Violation, error) {
	c.mu.RLock()
	snapshot := make([]types.Contract, len(c.contracts))
	copy(snapshot, c.contracts)
	c.mu.RUnlock()

	return c.guard.CheckFragment(snapshot, facts)
}

// Close releases the catalog's policy engine.
func (c *Catalog) Close() error {
	return c.guard.Close()
}

// contractsResponse mirrors the oracle.SchemaContracts JSON shape.
type contractsResponse struct {
	Contracts []struct {
		Kind       string   `json:"kind"`
		Name       string   `json:"name"`
		Namespace  string   `json:"namespace"`
		Members    []string `json:"members"`
		IsSealed   bool     `json:"is_sealed"`
		Methods    []struct {
			Name       string   `json:"name"`
			Params     []string `json:"params"`
			ReturnType string   `json:"return_type"`
		} `json:"methods"`
		Properties []struct {
			Name string `json:"name"`
			Type string `json:"type"`
		} `json:"properties"`
	} `json:"contracts"`
}

// BuildFromDecomposition consults the oracle with a JSON-schema-constrained
// prompt to propose the shared contracts for this request's atom set.
// A malformed response is retried up to 3 times with exponential
// backoff; final failure is fatal.
func BuildFromDecomposition(ctx context.Context, adapter oracle.Adapter, atoms []types.Atom, request string) (*Catalog, error) {
	prompt := buildContractPrompt(atoms, request)

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		raw, err := adapter.Generate(ctx, prompt, oracle.SchemaContracts)
		if err != nil {
			lastErr = err
			logging.CatalogDebug("contract proposal attempt %d failed: %v", attempt, err)
			if sleepErr := exponentialSleep(ctx, attempt); sleepErr != nil {
				return nil, forgeerr.New(forgeerr.Canceled, "catalog.BuildFromDecomposition", sleepErr)
			}
			continue
		}

		var resp contractsResponse
		if err := json.Unmarshal([]byte(raw), &resp); err != nil {
			lastErr = err
			logging.CatalogDebug("contract proposal unparsable on attempt %d: %v", attempt, err)
			if sleepErr := exponentialSleep(ctx, attempt); sleepErr != nil {
				return nil, forgeerr.New(forgeerr.Canceled, "catalog.BuildFromDecomposition", sleepErr)
			}
			continue
		}

		cat, err := New()
		if err != nil {
			return nil, err
		}
		overlap := false
		for _, rc := range resp.Contracts {
			contract := types.Contract{
				Kind:      types.ContractKind(rc.Kind),
				Name:      rc.Name,
				Namespace: rc.Namespace,
				Members:   rc.Members,
				IsSealed:  rc.IsSealed,
			}
			for _, m := range rc.Methods {
				contract.Methods = append(contract.Methods, types.MethodSignature{Name: m.Name, Params: m.Params, ReturnType: m.ReturnType})
			}
			for _, p := range rc.Properties {
				contract.Properties = append(contract.Properties, types.Property{Name: p.Name, Type: p.Type})
			}
			if err := cat.Add(contract); err != nil {
				lastErr = err
				overlap = true
				break
			}
		}
		if overlap {
			return nil, forgeerr.New(forgeerr.ContractOverlap, "catalog.BuildFromDecomposition", lastErr)
		}
		logging.Catalog("built catalog with %d contracts from %d atoms", len(resp.Contracts), len(atoms))
		return cat, nil
	}
	return nil, forgeerr.New(forgeerr.OracleMalformed, "catalog.BuildFromDecomposition", lastErr)
}

func buildContractPrompt(atoms []types.Atom, request string) string {
	var sb strings.Builder
	sb.WriteString("Propose the shared contract catalog (enums, interfaces, models, abstracts) for the following request.\n")
	sb.WriteString("Request: ")
	sb.WriteString(request)
	sb.WriteString("\nAtoms:\n")
	for _, a := range atoms {
		sb.WriteString(fmt.Sprintf("- %s [%s/%s]: %s\n", a.ID, a.Kind, a.Layer, a.Description))
	}
	sb.WriteString("Every fqn (namespace.name) must be unique. No two enum members of the same enum may share a name.\n")
	return sb.String()
}

// LoadFrozen reconstructs an already-frozen Catalog from a previously
// written contracts.json (catalog.All()'s serialization), used on resume
// so a relaunched run does not re-consult the oracle for contracts that
// were already agreed. It restores contracts only; atom state comes from
// the checkpoint.
func LoadFrozen(data []byte) (*Catalog, error) {
	var contracts []types.Contract
	if err := json.Unmarshal(data, &contracts); err != nil {
		return nil, fmt.Errorf("catalog: parse frozen contracts: %w", err)
	}
	cat, err := New()
	if err != nil {
		return nil, err
	}
	for _, c := range contracts {
		if err := cat.Add(c); err != nil {
			return nil, fmt.Errorf("catalog: reload contract %s: %w", c.FQN(), err)
		}
	}
	if err := cat.Freeze(); err != nil {
		return nil, err
	}
	return cat, nil
}

func exponentialSleep(ctx context.Context, attempt int) error {
	// 200ms, 400ms, 800ms
	return sleepFor(ctx, (1<<uint(attempt))*200)
}
