// Package policy reasons over contract guardrails and merge conflict
// resolution declaratively, on top of the internal/mangle Datalog
// engine. Rather than hand-coding the guardrail
// checks and the conflict-resolution lookup table as Go conditionals,
// both are expressed as Mangle facts and rules (guardrails.mg,
// conflict_resolution.mg) loaded once at construction; each check call
// clears the fact store, asserts the facts describing one fragment or
// one conflict instance, and reads back the rule-derived conclusions.
package policy

import (
	_ "embed"
	"fmt"

	"codegen-forge/forge/internal/mangle"
	"codegen-forge/forge/internal/types"
)

//go:embed guardrails.mg
var guardrailsSchema string

//go:embed conflict_resolution.mg
var conflictSchema string

// Engine wraps a single Mangle engine instance carrying both rule sets.
// It is not safe for concurrent use — callers serialize CheckFragment
// and Resolve calls; the merge and atom-loop packages each own one
// Engine and call it from a single goroutine at a time.
type Engine struct {
	mg *mangle.Engine
}

// New constructs a policy Engine with both rule sets loaded.
func New() (*Engine, error) {
	cfg := mangle.DefaultConfig()
	mg, err := mangle.NewEngine(cfg)
	if err != nil {
		return nil, fmt.Errorf("policy: new engine: %w", err)
	}
	if err := mg.LoadSchemaString(guardrailsSchema); err != nil {
		return nil, fmt.Errorf("policy: load guardrails: %w", err)
	}
	if err := mg.LoadSchemaString(conflictSchema); err != nil {
		return nil, fmt.Errorf("policy: load conflict resolution: %w", err)
	}
	return &Engine{mg: mg}, nil
}

// FragmentFacts describes everything one generated fragment declares or
// references that the contract guardrails need to see.
type FragmentFacts struct {
	AtomID string

	// DeclaredSymbols are the top-level type/member names the fragment
	// defines.
	DeclaredSymbols []string

	// EnumRefs are EnumName.Member references the fragment makes.
	EnumRefs []EnumRef

	// Inheritances are Child : Parent relationships the fragment declares.
	Inheritances []Inheritance
}

type EnumRef struct {
	EnumName string
	Member   string
}

type Inheritance struct {
	Child  string
	Parent string
}

// CheckFragment asserts the frozen catalog plus one fragment's facts and
// returns every guardrail violation the Datalog rules derive.
func (e *Engine) CheckFragment(catalog []types.Contract, frag FragmentFacts) ([]types.Violation, error) {
	e.mg.Clear()

	for _, c := range catalog {
		if err := e.mg.AddFact("contract_symbol", c.Name); err != nil {
			return nil, fmt.Errorf("policy: assert contract_symbol: %w", err)
		}
		if c.Kind == types.ContractAbstract && c.IsSealed {
			if err := e.mg.AddFact("sealed_contract", c.Name); err != nil {
				return nil, fmt.Errorf("policy: assert sealed_contract: %w", err)
			}
		}
		if c.Kind == types.ContractEnum {
			for _, m := range c.Members {
				if err := e.mg.AddFact("enum_member", c.Name, m); err != nil {
					return nil, fmt.Errorf("policy: assert enum_member: %w", err)
				}
			}
		}
	}

	for _, sym := range frag.DeclaredSymbols {
		if err := e.mg.AddFact("fragment_decl", frag.AtomID, sym); err != nil {
			return nil, fmt.Errorf("policy: assert fragment_decl: %w", err)
		}
	}
	for _, ref := range frag.EnumRefs {
		if err := e.mg.AddFact("fragment_enum_ref", frag.AtomID, ref.EnumName, ref.Member); err != nil {
			return nil, fmt.Errorf("policy: assert fragment_enum_ref: %w", err)
		}
	}
	for _, inh := range frag.Inheritances {
		if err := e.mg.AddFact("fragment_inherits", frag.AtomID, inh.Child, inh.Parent); err != nil {
			return nil, fmt.Errorf("policy: assert fragment_inherits: %w", err)
		}
	}

	var violations []types.Violation

	redefs, err := e.mg.GetFacts("violation_redefinition")
	if err != nil {
		return nil, fmt.Errorf("policy: read violation_redefinition: %w", err)
	}
	for _, f := range redefs {
		if len(f.Args) < 2 {
			continue
		}
		violations = append(violations, types.Violation{
			Kind:   types.ViolationRedefinition,
			Symbol: fmt.Sprint(f.Args[1]),
			Detail: fmt.Sprintf("%s redefines catalog symbol %v", frag.AtomID, f.Args[1]),
		})
	}

	enumViol, err := e.mg.GetFacts("violation_undeclared_enum_member")
	if err != nil {
		return nil, fmt.Errorf("policy: read violation_undeclared_enum_member: %w", err)
	}
	for _, f := range enumViol {
		if len(f.Args) < 3 {
			continue
		}
		violations = append(violations, types.Violation{
			Kind:   types.ViolationUndeclaredMember,
			Symbol: fmt.Sprintf("%v.%v", f.Args[1], f.Args[2]),
			Detail: fmt.Sprintf("%s references undeclared enum member %v.%v", frag.AtomID, f.Args[1], f.Args[2]),
		})
	}

	sealedViol, err := e.mg.GetFacts("violation_illegal_inheritance")
	if err != nil {
		return nil, fmt.Errorf("policy: read violation_illegal_inheritance: %w", err)
	}
	for _, f := range sealedViol {
		if len(f.Args) < 3 {
			continue
		}
		violations = append(violations, types.Violation{
			Kind:   types.ViolationSealedInheritance,
			Symbol: fmt.Sprint(f.Args[1]),
			Detail: fmt.Sprintf("%s: %v inherits from sealed contract %v", frag.AtomID, f.Args[1], f.Args[2]),
		})
	}

	return violations, nil
}

// ConflictInstance describes one merge conflict the resolution policy
// table needs attributes of: both-class status and signature
// compatibility for DuplicateType, and exact signature equality for
// DuplicateMember. AmbiguousSimpleName needs no extra attributes.
type ConflictInstance struct {
	ID                   string
	Kind                 types.ConflictKind
	BothClass            bool
	CompatibleSignatures bool
	SameSignature        bool
}

// Resolve asserts one conflict instance and the interactive/non-interactive
// merge mode, then reads back the single derived Resolution. If the rules
// derive none (a gap in the policy table) it returns ResolutionFailFast —
// the safe default for an unresolved conflict.
func (e *Engine) Resolve(inst ConflictInstance, interactive bool) (types.Resolution, error) {
	e.mg.Clear()

	if err := e.mg.AddFact("conflict_kind", inst.ID, string(inst.Kind)); err != nil {
		return "", fmt.Errorf("policy: assert conflict_kind: %w", err)
	}
	if inst.BothClass {
		if err := e.mg.AddFact("conflict_both_class", inst.ID); err != nil {
			return "", fmt.Errorf("policy: assert conflict_both_class: %w", err)
		}
	}
	if inst.CompatibleSignatures {
		if err := e.mg.AddFact("conflict_compatible_signatures", inst.ID); err != nil {
			return "", fmt.Errorf("policy: assert conflict_compatible_signatures: %w", err)
		}
	}
	if inst.SameSignature {
		if err := e.mg.AddFact("conflict_same_signature", inst.ID); err != nil {
			return "", fmt.Errorf("policy: assert conflict_same_signature: %w", err)
		}
	}
	mode := "noninteractive"
	if interactive {
		mode = "interactive"
	}
	if err := e.mg.AddFact("merge_mode", mode); err != nil {
		return "", fmt.Errorf("policy: assert merge_mode: %w", err)
	}

	facts, err := e.mg.GetFacts("resolution")
	if err != nil {
		return "", fmt.Errorf("policy: read resolution: %w", err)
	}
	for _, f := range facts {
		if len(f.Args) < 2 {
			continue
		}
		if fmt.Sprint(f.Args[0]) == inst.ID {
			return types.Resolution(fmt.Sprint(f.Args[1])), nil
		}
	}
	return types.ResolutionFailFast, nil
}

// Close releases the underlying engine.
func (e *Engine) Close() error {
	return e.mg.Close()
}
