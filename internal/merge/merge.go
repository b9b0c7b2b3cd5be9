// Package merge implements the Project Merge & Deduplication Pipeline:
// parse every completed atom's fragment, populate a TypeRegistry,
// resolve conflicts through the same policy.Engine the contract
// guardrails use, and emit a single deduplicated, namespace-grouped
// project tree. The conflict table itself is expressed as Datalog facts
// in internal/policy rather than re-implemented here.
package merge

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"sort"
	"strings"

	"codegen-forge/forge/internal/compiler"
	"codegen-forge/forge/internal/forgeerr"
	"codegen-forge/forge/internal/logging"
	"codegen-forge/forge/internal/policy"
	"codegen-forge/forge/internal/types"
)

// Result is the outcome of one merge run: the assembled project tree
// (relative path -> Go source), the final TypeRegistry, every conflict
// encountered and how it was resolved, and whatever diagnostics survived
// the bounded project-level auto-repair pass.
type Result struct {
	Files       map[string]string
	Registry    []types.RegistryEntry
	Conflicts   []types.Conflict
	Diagnostics []types.Diagnostic
}

// parsedFragment is one Completed atom's fragment after parsing,
// carrying enough to rebuild it post-conflict-resolution.
type parsedFragment struct {
	atomID    string
	namespace string
	kind      types.AtomKind
	file      *ast.File
	fset      *token.FileSet
}

// typeUnit accumulates everything the emit phase needs for one FQN:
// the canonical struct/interface shape plus every method contributed
// across duplicate declarations, after conflicts have been resolved.
type typeUnit struct {
	entry      types.RegistryEntry
	structType *ast.StructType // nil for non-struct kinds
	ifaceType  *ast.InterfaceType
	underlying ast.Expr     // Enum's underlying type (e.g. int)
	constDecl  *ast.GenDecl // Enum
	methods    []*ast.FuncDecl
	imports    map[string]string // path -> local name ("" = default)
}

// Run executes all five merge phases and returns the assembled
// project. It never mutates atoms; interactive controls how an
// otherwise-unresolvable DuplicateMember conflict is handled during the
// registry-resolution phase.
func Run(atoms []types.Atom, pol *policy.Engine, frontend compiler.Frontend, maxAutoRepairPasses int, interactive bool) (*Result, error) {
	logging.Merge("starting merge over %d atom(s)", len(atoms))

	parsed, err := parseCompleted(atoms)
	if err != nil {
		return nil, err
	}

	units, conflicts, err := buildRegistry(parsed, pol, interactive)
	if err != nil {
		return nil, err
	}

	ambConflicts, err := resolveAmbiguousNames(units, pol, interactive)
	if err != nil {
		return nil, err
	}
	conflicts = append(conflicts, ambConflicts...)

	files := emit(units)

	files, diags := autoRepairProject(files, frontend, maxAutoRepairPasses)

	registry := make([]types.RegistryEntry, 0, len(units))
	for _, fqn := range sortedKeys(units) {
		registry = append(registry, units[fqn].entry)
	}

	diags = append(diags, checkExpectedTypesCovered(atoms, units)...)
	logging.Merge("merge complete: %d type(s), %d conflict(s), %d remaining diagnostic(s)", len(registry), len(conflicts), len(diags))

	return &Result{Files: files, Registry: registry, Conflicts: conflicts, Diagnostics: diags}, nil
}

// checkExpectedTypesCovered verifies that the assembled project's
// declared types are a superset of every Completed atom's
// expected_types; a gap surfaces as a diagnostic rather than aborting
// the merge, since the oracle may have named its own type differently.
func checkExpectedTypesCovered(atoms []types.Atom, units map[string]*typeUnit) []types.Diagnostic {
	bySimple := make(map[string]bool, len(units))
	for _, u := range units {
		bySimple[u.entry.SimpleName] = true
	}
	var diags []types.Diagnostic
	for _, a := range atoms {
		if a.Status != types.StatusCompleted {
			continue
		}
		for _, et := range a.ExpectedTypes {
			if !bySimple[et] {
				diags = append(diags, types.Diagnostic{
					Category: types.CategoryOther,
					Message:  fmt.Sprintf("atom %s expected type %q not found in assembled project", a.ID, et),
					Location: a.ID,
				})
			}
		}
	}
	return diags
}

// parseCompleted parses every Completed atom with a non-empty fragment,
// in a stable (atom id) order so the rest of the pipeline is
// deterministic given the same atom set.
func parseCompleted(atoms []types.Atom) ([]parsedFragment, error) {
	sorted := append([]types.Atom(nil), atoms...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	var out []parsedFragment
	for _, a := range sorted {
		if a.Status != types.StatusCompleted || strings.TrimSpace(a.GeneratedFragment) == "" {
			continue
		}
		fset := token.NewFileSet()
		file, err := parser.ParseFile(fset, a.ID+".go", a.GeneratedFragment, parser.ParseComments)
		if err != nil {
			return nil, forgeerr.New(forgeerr.ConflictUnresolvable, "merge.parseCompleted", fmt.Errorf("atom %s: %w", a.ID, err))
		}
		out = append(out, parsedFragment{atomID: a.ID, namespace: a.Namespace, kind: a.Kind, file: file, fset: fset})
	}
	return out, nil
}

// buildRegistry registers every declared type, resolving DuplicateType
// and DuplicateMember conflicts through the policy table as they're
// found.
func buildRegistry(parsed []parsedFragment, pol *policy.Engine, interactive bool) (map[string]*typeUnit, []types.Conflict, error) {
	units := make(map[string]*typeUnit)
	var conflicts []types.Conflict

	for _, pf := range parsed {
		imports := importMap(pf.file)
		for _, decl := range pf.file.Decls {
			gd, ok := decl.(*ast.GenDecl)
			if !ok || gd.Tok != token.TYPE {
				continue
			}
			for _, spec := range gd.Specs {
				ts, ok := spec.(*ast.TypeSpec)
				if !ok {
					continue
				}
				entry, unit := buildUnit(pf.atomID, pf.namespace, pf.kind, ts, pf.file, imports)

				existing, dup := units[entry.FQN]
				if !dup {
					units[entry.FQN] = unit
					continue
				}

				res, conflict, err := resolveDuplicateType(pol, existing, unit, interactive)
				if err != nil {
					return nil, nil, err
				}
				conflicts = append(conflicts, conflict)

				switch res {
				case types.ResolutionMergeAsPartial:
					memberConflicts, err := mergeUnits(pol, existing, unit, interactive)
					if err != nil {
						return nil, nil, err
					}
					conflicts = append(conflicts, memberConflicts...)
					existing.entry.IsPartial = true
				case types.ResolutionKeepFirst:
					// second declaration dropped entirely.
				default:
					return nil, nil, forgeerr.New(forgeerr.ConflictUnresolvable, "merge.buildRegistry",
						fmt.Errorf("unresolvable DuplicateType conflict for %s: resolution %s", entry.FQN, res))
				}
			}
		}
	}
	return units, conflicts, nil
}

func resolveDuplicateType(pol *policy.Engine, existing, incoming *typeUnit, interactive bool) (types.Resolution, types.Conflict, error) {
	bothClass := existing.entry.Kind == types.TypeClass && incoming.entry.Kind == types.TypeClass
	compatible := signaturesCompatible(existing.methods, incoming.methods)

	res, err := pol.Resolve(policy.ConflictInstance{
		ID: existing.entry.FQN, Kind: types.ConflictDuplicateType,
		BothClass: bothClass, CompatibleSignatures: compatible,
	}, interactive)
	if err != nil {
		return "", types.Conflict{}, fmt.Errorf("merge: resolve DuplicateType %s: %w", existing.entry.FQN, err)
	}
	logging.MergeDebug("DuplicateType %s -> %s", existing.entry.FQN, res)
	return res, types.Conflict{
		Kind: types.ConflictDuplicateType, First: existing.entry, Second: incoming.entry, Resolution: res,
		Detail: fmt.Sprintf("both_class=%v compatible_signatures=%v", bothClass, compatible),
	}, nil
}

// mergeUnits folds incoming's members into existing when the table says
// MergeAsPartial: every method name already present is itself a
// DuplicateMember conflict, resolved independently.
func mergeUnits(pol *policy.Engine, existing, incoming *typeUnit, interactive bool) ([]types.Conflict, error) {
	var conflicts []types.Conflict

	if existing.structType != nil && incoming.structType != nil {
		seen := make(map[string]bool, len(existing.structType.Fields.List))
		for _, f := range existing.structType.Fields.List {
			for _, n := range f.Names {
				seen[n.Name] = true
			}
		}
		for _, f := range incoming.structType.Fields.List {
			var keep []*ast.Ident
			for _, n := range f.Names {
				if !seen[n.Name] {
					keep = append(keep, n)
					seen[n.Name] = true
				}
			}
			if len(keep) > 0 {
				f.Names = keep
				existing.structType.Fields.List = append(existing.structType.Fields.List, f)
			}
		}
	}

	have := make(map[string]*ast.FuncDecl, len(existing.methods))
	for _, m := range existing.methods {
		have[m.Name.Name] = m
	}
	for _, m := range incoming.methods {
		prior, exists := have[m.Name.Name]
		if !exists {
			existing.methods = append(existing.methods, m)
			have[m.Name.Name] = m
			continue
		}
		same := funcSignature(prior) == funcSignature(m)
		res, err := pol.Resolve(policy.ConflictInstance{
			ID: existing.entry.FQN + "#" + m.Name.Name, Kind: types.ConflictDuplicateMember, SameSignature: same,
		}, interactive)
		if err != nil {
			return nil, fmt.Errorf("merge: resolve DuplicateMember %s.%s: %w", existing.entry.FQN, m.Name.Name, err)
		}
		conflicts = append(conflicts, types.Conflict{
			Kind: types.ConflictDuplicateMember,
			First: types.RegistryEntry{FQN: existing.entry.FQN, SimpleName: m.Name.Name},
			Second: types.RegistryEntry{FQN: incoming.entry.FQN, SimpleName: m.Name.Name},
			Resolution: res,
		})
		switch res {
		case types.ResolutionRemoveDuplicate:
			// incoming's copy is simply not appended.
		default:
			return nil, forgeerr.New(forgeerr.ConflictUnresolvable, "merge.mergeUnits",
				fmt.Errorf("unresolvable DuplicateMember conflict for %s.%s: resolution %s", existing.entry.FQN, m.Name.Name, res))
		}
	}

	for path, name := range incoming.imports {
		if _, ok := existing.imports[path]; !ok {
			existing.imports[path] = name
		}
	}
	existing.entry.Members = collectMembers(existing)
	return conflicts, nil
}

func signaturesCompatible(a, b []*ast.FuncDecl) bool {
	bySig := make(map[string]string, len(a))
	for _, m := range a {
		bySig[m.Name.Name] = funcSignature(m)
	}
	for _, m := range b {
		if prior, ok := bySig[m.Name.Name]; ok && prior != funcSignature(m) {
			return false
		}
	}
	return true
}

func sortedKeys(units map[string]*typeUnit) []string {
	keys := make([]string, 0, len(units))
	for k := range units {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
