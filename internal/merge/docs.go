package merge

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"codegen-forge/forge/internal/catalog"
	"codegen-forge/forge/internal/types"
)

// WriteProject writes the assembled project tree under
// <outputDir>/project, one file per path in Result.Files, and the
// documentation exports under <outputDir>/docs: architecture.md (one
// section per namespace), contracts.json (the frozen catalog
// re-serialized), and training_export.jsonl (one record per Completed or
// Failed atom). All writes are atomic write-then-rename, matching
// internal/blackboard's checkpoint convention.
func WriteProject(outputDir string, result *Result, cat *catalog.Catalog, atoms []types.Atom, architectureSummary string) error {
	projectDir := filepath.Join(outputDir, "project")
	for path, content := range result.Files {
		full := filepath.Join(projectDir, filepath.FromSlash(path))
		if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
			return fmt.Errorf("merge: create dir for %s: %w", full, err)
		}
		if err := writeFileAtomic(full, []byte(content)); err != nil {
			return err
		}
	}

	docsDir := filepath.Join(outputDir, "docs")
	if err := os.MkdirAll(docsDir, 0755); err != nil {
		return fmt.Errorf("merge: create docs dir: %w", err)
	}

	if err := writeFileAtomic(filepath.Join(docsDir, "architecture.md"), []byte(renderArchitectureDoc(result.Registry, architectureSummary))); err != nil {
		return err
	}
	if err := writeJSONAtomic(filepath.Join(docsDir, "contracts.json"), cat.All()); err != nil {
		return err
	}
	if err := writeFileAtomic(filepath.Join(docsDir, "training_export.jsonl"), []byte(renderTrainingExport(atoms))); err != nil {
		return err
	}
	return nil
}

// renderArchitectureDoc groups the final registry by namespace
// (lexicographically sorted, matching the emit phase's own grouping) and
// lists each type's members under a heading.
func renderArchitectureDoc(registry []types.RegistryEntry, summary string) string {
	var sb strings.Builder
	sb.WriteString("# Architecture\n\n")
	if summary != "" {
		sb.WriteString(summary)
		sb.WriteString("\n\n")
	}

	byNamespace := make(map[string][]types.RegistryEntry)
	for _, e := range registry {
		byNamespace[e.Namespace] = append(byNamespace[e.Namespace], e)
	}
	namespaces := make([]string, 0, len(byNamespace))
	for ns := range byNamespace {
		namespaces = append(namespaces, ns)
	}
	sort.Strings(namespaces)

	for _, ns := range namespaces {
		fmt.Fprintf(&sb, "## %s\n\n", ns)
		entries := byNamespace[ns]
		sort.Slice(entries, func(i, j int) bool { return entries[i].SimpleName < entries[j].SimpleName })
		for _, e := range entries {
			fmt.Fprintf(&sb, "- **%s** (%s)", e.SimpleName, e.Kind)
			if e.IsPartial {
				sb.WriteString(" — partial")
			}
			sb.WriteString("\n")
			for _, m := range e.Members {
				fmt.Fprintf(&sb, "  - %s\n", m.Signature)
			}
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// trainingRecord is one line of docs/training_export.jsonl: the
// context an atom was generated under, the outcome, and its final
// diagnostics, intended for offline replay/fine-tuning analysis.
type trainingRecord struct {
	AtomID       string             `json:"atom_id"`
	Kind         types.AtomKind     `json:"kind"`
	Namespace    string             `json:"namespace"`
	Description  string             `json:"description"`
	Status       types.AtomStatus   `json:"status"`
	Fragment     string             `json:"fragment,omitempty"`
	Diagnostics  []types.Diagnostic `json:"diagnostics,omitempty"`
	RetryCount   int                `json:"retry_count"`
	FailureCause string             `json:"failure_cause,omitempty"`
}

func renderTrainingExport(atoms []types.Atom) string {
	sorted := append([]types.Atom(nil), atoms...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	var sb strings.Builder
	for _, a := range sorted {
		if !a.Status.Terminal() {
			continue
		}
		rec := trainingRecord{
			AtomID: a.ID, Kind: a.Kind, Namespace: a.Namespace, Description: a.Description,
			Status: a.Status, Fragment: a.GeneratedFragment, Diagnostics: a.Diagnostics,
			RetryCount: a.RetryCount, FailureCause: a.FailureCause,
		}
		data, err := json.Marshal(rec)
		if err != nil {
			continue
		}
		sb.Write(data)
		sb.WriteString("\n")
	}
	return sb.String()
}

func writeJSONAtomic(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("merge: marshal %s: %w", path, err)
	}
	return writeFileAtomic(path, data)
}

// writeFileAtomic writes to a temp file in the same directory then
// renames it over the target (same convention as internal/blackboard's
// checkpoint writer).
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("merge: create temp file for %s: %w", path, err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("merge: write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("merge: close %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("merge: rename into %s: %w", path, err)
	}
	return nil
}
