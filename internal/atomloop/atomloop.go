// Package atomloop implements the per-atom generate -> compile ->
// classify -> repair -> retry state machine, the hottest code path in
// the system. It is wired as a scheduler.RunFunc: the
// scheduler dispatches one atom per worker slot and this package owns
// everything that happens between Ready and a terminal status.
package atomloop

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"codegen-forge/forge/internal/catalog"
	"codegen-forge/forge/internal/compiler"
	"codegen-forge/forge/internal/forgeerr"
	"codegen-forge/forge/internal/logging"
	"codegen-forge/forge/internal/oracle"
	"codegen-forge/forge/internal/types"
)

// DependencyLookup resolves a completed dependency atom by id, used to
// pull extracted type contracts (and, when small, full fragments) into
// the prompt.
type DependencyLookup func(id string) (types.Atom, bool)

// Budgets mirrors the relevant slice of config.BudgetConfig without
// importing internal/config, avoiding a cycle (internal/config has no
// business knowing about the atom loop's internals).
type Budgets struct {
	OracleRoundTrips int
	AutoRepairPasses int
}

// DefaultBudgets returns the fixed caps: 3 oracle round-trips, 3
// auto-repair passes.
func DefaultBudgets() Budgets {
	return Budgets{OracleRoundTrips: 3, AutoRepairPasses: 3}
}

// smallFragmentThreshold is the cutoff for including a dependency's
// full fragment verbatim in the prompt: only under 500 characters.
const smallFragmentThreshold = 500

// Loop drives one atom through its full compile/classify/repair cycle.
// A Loop is stateless across atoms; Run is safe to call concurrently for
// distinct atoms, since at most one worker mutates a given atom.
type Loop struct {
	Adapter  oracle.Adapter
	Catalog  *catalog.Catalog
	Frontend compiler.Frontend
	Budgets  Budgets
	Deps     DependencyLookup
}

// New constructs a Loop with the default compile frontend and budgets.
func New(adapter oracle.Adapter, cat *catalog.Catalog, deps DependencyLookup) *Loop {
	return &Loop{
		Adapter:  adapter,
		Catalog:  cat,
		Frontend: compiler.NewDefaultFrontend(),
		Budgets:  DefaultBudgets(),
		Deps:     deps,
	}
}

// Run executes the full state machine for one atom and returns its
// terminal (or, on cancellation, its last observed) state. It matches
// scheduler.RunFunc's signature so a *Loop's Run method value can be
// passed straight to scheduler.New.
func (l *Loop) Run(ctx context.Context, atom types.Atom) types.Atom {
	atom.Status = types.StatusInProgress
	logging.Atom("%s: entering generate/compile/classify loop", atom.ID)

	var diags []types.Diagnostic
	var fragment string

	for roundTrip := 0; roundTrip < l.Budgets.OracleRoundTrips; roundTrip++ {
		if ctx.Err() != nil {
			return atom
		}

		atom.RetryCount = roundTrip
		prompt := l.buildPrompt(atom, fragment, diags, roundTrip)

		generated, err := l.generateWithRetry(ctx, prompt)
		if err != nil {
			logging.AtomDebug("%s: round-trip %d: generate failed: %v", atom.ID, roundTrip, err)
			diags = []types.Diagnostic{{
				Category: types.CategoryOther,
				Message:  fmt.Sprintf("oracle generate failed: %v", err),
			}}
			continue
		}
		fragment = generated

		fragment, diags = l.compileClassifyRepair(atom, fragment)

		remaining := types.FilterContractViolations(diags)
		if len(remaining) == 0 {
			return l.accept(atom, fragment, diags)
		}
		logging.AtomDebug("%s: round-trip %d: %d unfixable diagnostic(s) remain", atom.ID, roundTrip, len(remaining))
	}

	atom.GeneratedFragment = fragment
	atom.Diagnostics = diags
	atom.Status = types.StatusFailed
	atom.FailureCause = "atom_exhausted"
	logging.Atom("%s: exhausted oracle round-trip budget, failing", atom.ID)
	return atom
}

// compileClassifyRepair compiles the fragment against its compile unit,
// classifies diagnostics, and applies up to Budgets.AutoRepairPasses
// auto-fix passes, recompiling after each.
func (l *Loop) compileClassifyRepair(atom types.Atom, fragment string) (string, []types.Diagnostic) {
	var diags []types.Diagnostic

	for pass := 0; pass <= l.Budgets.AutoRepairPasses; pass++ {
		unit := l.compileUnit(atom, fragment)
		result, err := l.Frontend.Compile(unit)
		if err != nil {
			diags = []types.Diagnostic{{Category: types.CategoryOther, Message: err.Error()}}
			return fragment, diags
		}

		relevant := l.relevantContracts(atom)
		complianceDiags, err := compiler.CheckContractCompliance(unit, relevant)
		if err == nil {
			result.Diagnostics = append(result.Diagnostics, complianceDiags...)
		}

		diags = classify(result.Diagnostics)
		if l.Catalog != nil {
			facts := extractFragmentFacts(atom.ID, fragment, relevant)
			if violations, vErr := l.Catalog.ValidateFragment(facts); vErr == nil {
				diags = append(diags, violationDiagnostics(violations)...)
			}
		}
		atom.ValidationAttemptCount = pass

		if pass == l.Budgets.AutoRepairPasses {
			break
		}

		fixable := fixableDiagnostics(diags)
		if len(fixable) == 0 {
			break
		}

		repaired, changed := applyRepairs(fragment, fixable, l.Catalog)
		if !changed {
			break
		}
		fragment = repaired
		logging.AtomDebug("%s: auto-repair pass %d applied %d fix(es)", atom.ID, pass, len(fixable))
	}

	return fragment, diags
}

// classify maps every compiler.Diagnostic onto the closed
// types.DiagnosticCategory taxonomy.
func classify(raw []compiler.Diagnostic) []types.Diagnostic {
	out := make([]types.Diagnostic, 0, len(raw))
	for _, d := range raw {
		if d.Severity != compiler.SeverityError {
			continue // warnings suppressed by policy
		}
		cat, fixable := compiler.Classify(d)
		out = append(out, types.Diagnostic{
			ID:          d.ID,
			Category:    cat,
			Message:     d.Message,
			Location:    fmt.Sprintf("%s:%d", d.File, d.Line),
			AutoFixable: fixable,
		})
	}
	return out
}

// violationDiagnostics maps catalog guardrail violations onto the same
// closed taxonomy the compiler's diagnostics use, so the rest of the
// loop treats both sources uniformly.
func violationDiagnostics(violations []types.Violation) []types.Diagnostic {
	out := make([]types.Diagnostic, 0, len(violations))
	for _, v := range violations {
		var cat types.DiagnosticCategory
		fixable := false
		switch v.Kind {
		case types.ViolationRedefinition:
			cat, fixable = types.CategorySymbolCollision, true
		case types.ViolationUndeclaredMember:
			cat, fixable = types.CategoryMissingEnumMember, false
		case types.ViolationSealedInheritance:
			cat, fixable = types.CategoryIllegalInheritanceSealed, true
		default:
			cat = types.CategoryOther
		}
		out = append(out, types.Diagnostic{
			Category:    cat,
			Message:     v.Detail,
			Location:    v.Symbol,
			AutoFixable: fixable,
		})
	}
	return out
}

func fixableDiagnostics(diags []types.Diagnostic) []types.Diagnostic {
	var out []types.Diagnostic
	for _, d := range diags {
		if d.AutoFixable {
			out = append(out, d)
		}
	}
	return out
}

// accept finalizes a successfully-validated atom: publish the fragment
// and its extracted type-contract.
func (l *Loop) accept(atom types.Atom, fragment string, diags []types.Diagnostic) types.Atom {
	atom.Status = types.StatusReview
	atom.GeneratedFragment = fragment
	atom.Diagnostics = diags
	atom.TypeContractExtract = ExtractTypeContract(fragment)
	atom.Summary = summarize(atom)
	atom.Status = types.StatusCompleted
	logging.Atom("%s: completed (%d bytes generated)", atom.ID, len(fragment))
	return atom
}

func summarize(atom types.Atom) string {
	if len(atom.ExpectedTypes) == 0 {
		return fmt.Sprintf("%s: %s", atom.ID, firstLine(atom.Description))
	}
	return fmt.Sprintf("%s produces %s", atom.ID, strings.Join(atom.ExpectedTypes, ", "))
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}

// relevantContracts selects the frozen contracts this atom's prompt and
// compliance check should consider: by namespace match, by
// expected_types membership, by name appearing in description, or by
// presence in consumed_types.
func (l *Loop) relevantContracts(atom types.Atom) []types.Contract {
	if l.Catalog == nil {
		return nil
	}
	seen := make(map[string]bool)
	var out []types.Contract
	add := func(c types.Contract) {
		if !seen[c.FQN()] {
			seen[c.FQN()] = true
			out = append(out, c)
		}
	}

	for _, c := range l.Catalog.All() {
		if c.Namespace == atom.Namespace {
			add(c)
			continue
		}
		for _, et := range atom.ExpectedTypes {
			if c.Name == et {
				add(c)
				break
			}
		}
		if strings.Contains(atom.Description, c.Name) {
			add(c)
		}
		for _, names := range atom.ConsumedTypes {
			for _, n := range names {
				if n == c.Name {
					add(c)
				}
			}
		}
	}
	return out
}

// generateWithRetry wraps one oracle.Generate call with the step-2 linear
// backoff retry (transport/JSON failure, up to 3 attempts) that sits
// underneath the coarser oracle-round-trip budget in Run.
func (l *Loop) generateWithRetry(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		raw, err := l.Adapter.Generate(ctx, prompt, oracle.SchemaFragment)
		if err == nil {
			fragment, decodeErr := decodeFragmentResponse(raw)
			if decodeErr == nil {
				return fragment, nil
			}
			lastErr = decodeErr
		} else {
			lastErr = err
		}
		if me, ok := err.(*oracle.ModelError); ok && me.Kind == oracle.ErrSchema {
			// Malformed response is not transport-retriable by this loop;
			// the outer oracle-round-trip loop re-prompts with more context.
			return "", err
		}
		t := time.NewTimer(time.Duration(attempt+1) * 150 * time.Millisecond)
		select {
		case <-ctx.Done():
			t.Stop()
			return "", forgeerr.New(forgeerr.Canceled, "atomloop.generateWithRetry", ctx.Err())
		case <-t.C:
		}
	}
	return "", forgeerr.New(forgeerr.OracleTransient, "atomloop.generateWithRetry", lastErr)
}

// compileUnit assembles the fragment-level compile unit: the candidate
// fragment concatenated with contract stubs and completed dependencies'
// type-contract extracts.
func (l *Loop) compileUnit(atom types.Atom, fragment string) []compiler.SourceFile {
	files := []compiler.SourceFile{{Name: atom.ID + ".go", Content: fragment}}

	for i, c := range l.relevantContracts(atom) {
		files = append(files, compiler.SourceFile{
			Name:    fmt.Sprintf("contract_%d.go", i),
			Content: contractStub(c),
		})
	}

	for i, depID := range atom.Dependencies {
		dep, ok := l.depAtom(depID)
		if !ok || dep.Status != types.StatusCompleted {
			continue
		}
		content := dep.TypeContractExtract
		if content == "" && len(dep.GeneratedFragment) < smallFragmentThreshold {
			content = dep.GeneratedFragment
		}
		if content == "" {
			continue
		}
		files = append(files, compiler.SourceFile{
			Name:    fmt.Sprintf("dep_%d_%s.go", i, depID),
			Content: content,
		})
	}
	return files
}

func (l *Loop) depAtom(id string) (types.Atom, bool) {
	if l.Deps == nil {
		return types.Atom{}, false
	}
	return l.Deps(id)
}

// fragmentEnvelope is the one-field JSON shape oracle.SchemaFragment
// responses carry the candidate fragment in.
type fragmentEnvelope struct {
	Fragment string `json:"fragment"`
}

func decodeFragmentResponse(raw string) (string, error) {
	var env fragmentEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return "", err
	}
	if strings.TrimSpace(env.Fragment) == "" {
		return "", fmt.Errorf("atomloop: empty fragment in oracle response")
	}
	return env.Fragment, nil
}
