// Package orchestrator wires the leaf components (catalog, dag,
// scheduler, atomloop, merge, blackboard, oracle) into the single data
// flow this system uses: request -> decomposition -> frozen catalog ->
// scheduled generation -> merge -> emitted project.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"codegen-forge/forge/internal/atomloop"
	"codegen-forge/forge/internal/blackboard"
	"codegen-forge/forge/internal/catalog"
	"codegen-forge/forge/internal/compiler"
	"codegen-forge/forge/internal/config"
	"codegen-forge/forge/internal/dag"
	"codegen-forge/forge/internal/forgeerr"
	"codegen-forge/forge/internal/logging"
	"codegen-forge/forge/internal/merge"
	"codegen-forge/forge/internal/oracle"
	"codegen-forge/forge/internal/policy"
	"codegen-forge/forge/internal/scheduler"
	"codegen-forge/forge/internal/types"
)

// Options bundles everything one Run needs, mirroring the "Run
// entry point" contract (request, output directory, resume flag) plus
// the dependencies a Go port has to pass explicitly instead of reading
// from ambient globals.
type Options struct {
	OutputDir   string
	Request     string
	Description string
	Config      *config.Config
	Adapter     oracle.Adapter
	Resume      bool
}

// Outcome is what the CLI layer reports back to the user and maps onto
// the exit codes.
type Outcome struct {
	Status         types.ExecutionStatus
	CheckpointPath string
	FailedAtomIDs  []string
	ProjectDir     string
}

const maxRequestChars = 2000

// SanitizeRequest enforces the "free-text request (<= 2000 chars;
// control characters stripped)".
func SanitizeRequest(raw string) string {
	out := make([]rune, 0, len(raw))
	for _, r := range raw {
		if r == '\n' || r == '\t' || r >= 0x20 {
			out = append(out, r)
		}
	}
	s := string(out)
	if len(s) > maxRequestChars {
		runes := []rune(s)
		if len(runes) > maxRequestChars {
			runes = runes[:maxRequestChars]
		}
		s = string(runes)
	}
	return s
}

// Run drives one end-to-end project generation (or resumes one in
// progress), returning the Outcome or a *forgeerr.Error identifying
// which failure kind ended the run.
func Run(ctx context.Context, opts Options) (*Outcome, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	request := SanitizeRequest(opts.Request)

	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("orchestrator: create output dir: %w", err)
	}

	bb, atoms, cat, err := loadOrDecompose(ctx, opts, cfg, request)
	if err != nil {
		return nil, err
	}
	defer cat.Close()

	pol, err := policy.New()
	if err != nil {
		return nil, fmt.Errorf("orchestrator: new policy engine: %w", err)
	}
	defer pol.Close()

	loop := atomloop.New(opts.Adapter, cat, bb.Get)
	loop.Budgets = atomloop.Budgets{
		OracleRoundTrips: cfg.Budgets.OracleRoundTrips,
		AutoRepairPasses: cfg.Budgets.AutoRepairPasses,
	}

	sched := scheduler.New(cfg.Scheduler.WorkerCount, cfg.Scheduler.GracePeriod(), loop.Run, bb)
	status, err := sched.Run(ctx, atoms)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: scheduler run: %w", err)
	}

	outcome := &Outcome{Status: status}
	if cpPath, cpErr := latestCheckpointPath(opts.OutputDir); cpErr == nil {
		outcome.CheckpointPath = cpPath
	}

	if status == types.ExecutionAborted {
		return outcome, forgeerr.New(forgeerr.Canceled, "orchestrator.Run", nil)
	}

	final := bb.Atoms()
	var completed []types.Atom
	for _, a := range final {
		switch a.Status {
		case types.StatusCompleted:
			completed = append(completed, a)
		case types.StatusFailed:
			outcome.FailedAtomIDs = append(outcome.FailedAtomIDs, a.ID)
		}
	}

	if len(completed) == 0 {
		return outcome, forgeerr.New(forgeerr.AtomExhausted, "orchestrator.Run", fmt.Errorf("no atom completed"))
	}

	result, err := merge.Run(completed, pol, compiler.NewDefaultFrontend(), cfg.Budgets.MergeAutoRepairPasses, cfg.Merge.Interactive)
	if err != nil {
		return outcome, forgeerr.New(forgeerr.ConflictUnresolvable, "orchestrator.Run", err)
	}

	summary := architectureSummary(ctx, opts.Adapter, result)
	if err := merge.WriteProject(opts.OutputDir, result, cat, final, summary); err != nil {
		return outcome, fmt.Errorf("orchestrator: write project: %w", err)
	}
	outcome.ProjectDir = filepath.Join(opts.OutputDir, "project")

	if len(outcome.FailedAtomIDs) > 0 && status != types.ExecutionCompleted {
		return outcome, forgeerr.New(forgeerr.AtomExhausted, "orchestrator.Run", fmt.Errorf("%d atom(s) failed", len(outcome.FailedAtomIDs)))
	}
	return outcome, nil
}

// loadOrDecompose resumes an in-progress Blackboard and its frozen
// catalog from outputDir when opts.Resume is set and a checkpoint
// exists; otherwise it runs decomposition, complexity-driven
// auto-decomposition, and contract freezing fresh.
func loadOrDecompose(ctx context.Context, opts Options, cfg *config.Config, request string) (*blackboard.Blackboard, []types.Atom, *catalog.Catalog, error) {
	if opts.Resume {
		bb, ok, err := blackboard.Resume(opts.OutputDir, request, opts.Description)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("orchestrator: resume blackboard: %w", err)
		}
		if ok {
			cat, err := loadFrozenCatalog(opts.OutputDir)
			if err != nil {
				return nil, nil, nil, err
			}
			logging.CLI("resumed run from %s: %d atom(s) restored", opts.OutputDir, len(bb.Atoms()))
			return bb, bb.Atoms(), cat, nil
		}
		logging.CLI("resume requested but no checkpoint found under %s; starting fresh", opts.OutputDir)
	}

	atoms, err := dag.Decompose(ctx, opts.Adapter, request)
	if err != nil {
		return nil, nil, nil, err
	}

	atoms, err = decomposeOversizedAtoms(ctx, opts.Adapter, atoms, cfg.Complexity.MaxLineThreshold)
	if err != nil {
		return nil, nil, nil, err
	}

	cat, err := catalog.BuildFromDecomposition(ctx, opts.Adapter, atoms, request)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := cat.Freeze(); err != nil {
		return nil, nil, nil, err
	}
	logging.Audit().ContractFreeze(len(cat.All()))

	if err := writeFrozenCatalog(opts.OutputDir, cat); err != nil {
		return nil, nil, nil, err
	}
	if err := writePackageVersions(ctx, opts.Adapter, opts.OutputDir, request, atoms); err != nil {
		logging.CLI("package version recording skipped: %v", err)
	}

	bb := blackboard.New(opts.OutputDir, request, opts.Description)
	bb.SetAtoms(atoms)
	return bb, atoms, cat, nil
}

// decomposeOversizedAtoms runs the analyze_complexity over every
// atom and replaces any atom whose metrics require decomposition with its
// auto-decomposed subatoms, splicing the subatoms into the dependency
// graph in place of the parent (dependents of the parent now depend on
// the parent's final subatom).
func decomposeOversizedAtoms(ctx context.Context, adapter oracle.Adapter, atoms []types.Atom, maxThreshold int) ([]types.Atom, error) {
	out := make([]types.Atom, 0, len(atoms))
	replacedBy := make(map[string]string) // parent id -> id dependents should now point to

	for _, a := range atoms {
		metrics := dag.AnalyzeComplexity(dag.ComplexityInput{
			ExpectedTypeCount: len(a.ExpectedTypes),
			DependencyCount:   len(a.Dependencies),
			Description:       a.Description,
		}, maxThreshold)

		if !metrics.RequiresDecomposition {
			out = append(out, a)
			continue
		}

		strategy := dag.SelectStrategy(a, metrics)
		subs, err := dag.AutoDecompose(ctx, adapter, a, strategy, metrics.RecommendedSubtaskCount, maxThreshold)
		if err != nil {
			logging.DAG("auto-decompose failed for %s, keeping atom whole: %v", a.ID, err)
			out = append(out, a)
			continue
		}
		logging.Audit().Log(logging.AuditEvent{Type: "auto_decompose", AtomID: a.ID, Success: true,
			Fields: map[string]interface{}{"subtask_count": len(subs), "strategy": string(strategy)}})

		out = append(out, subs...)
		replacedBy[a.ID] = subs[len(subs)-1].ID
	}

	for i := range out {
		for j, dep := range out[i].Dependencies {
			if newID, ok := replacedBy[dep]; ok {
				out[i].Dependencies[j] = newID
			}
		}
	}
	return out, nil
}

type packageVersionsResponse struct {
	Packages []struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"packages"`
}

// writePackageVersions records the oracle-proposed package manifest at
// <outputDir>/packages.json. Failure here is non-fatal; it is a
// supplemental artifact, not a correctness requirement.
func writePackageVersions(ctx context.Context, adapter oracle.Adapter, outputDir, request string, atoms []types.Atom) error {
	prompt := fmt.Sprintf("List the third-party package names and versions a project implementing the following request would need. Request: %s", request)
	raw, err := adapter.Generate(ctx, prompt, oracle.SchemaPackageVersions)
	if err != nil {
		return err
	}
	var resp packageVersionsResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return err
	}
	data, err := json.MarshalIndent(resp.Packages, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(outputDir, "packages.json"), data, 0644)
}

type summaryResponse struct {
	Summary string `json:"summary"`
}

// architectureSummary issues the post-merge oracle call under the
// ArchitectureSummary schema; a failure here degrades to an empty
// summary rather than failing the run, since the project has already
// been successfully assembled by this point.
func architectureSummary(ctx context.Context, adapter oracle.Adapter, result *merge.Result) string {
	if adapter == nil {
		return ""
	}
	prompt := fmt.Sprintf("Describe the architecture of an assembled project with %d type(s) across its namespaces in two or three sentences.", len(result.Registry))
	raw, err := adapter.Generate(ctx, prompt, oracle.SchemaArchitectureSummary)
	if err != nil {
		logging.CLI("architecture summary skipped: %v", err)
		return ""
	}
	var resp summaryResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return ""
	}
	return resp.Summary
}

func writeFrozenCatalog(outputDir string, cat *catalog.Catalog) error {
	data, err := json.MarshalIndent(cat.All(), "", "  ")
	if err != nil {
		return fmt.Errorf("orchestrator: marshal catalog: %w", err)
	}
	return os.WriteFile(filepath.Join(outputDir, "contracts.json"), data, 0644)
}

func loadFrozenCatalog(outputDir string) (*catalog.Catalog, error) {
	data, err := os.ReadFile(filepath.Join(outputDir, "contracts.json"))
	if err != nil {
		return nil, fmt.Errorf("orchestrator: read contracts.json: %w", err)
	}
	return catalog.LoadFrozen(data)
}

func latestCheckpointPath(outputDir string) (string, error) {
	path := filepath.Join(outputDir, "checkpoints", "latest.json")
	if _, err := os.Stat(path); err != nil {
		return "", err
	}
	return path, nil
}
