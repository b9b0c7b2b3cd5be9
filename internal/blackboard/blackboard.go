// Package blackboard implements the single-writer Checkpoint/Blackboard:
// the scheduler's owned mutable project state, persisted via atomic
// write-then-rename checkpoints with a "latest" pointer for resume.
package blackboard

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"codegen-forge/forge/internal/logging"
	"codegen-forge/forge/internal/types"
)

// Blackboard holds every atom's current state. The scheduler is the only
// writer — the Blackboard is the only shared mutable resource, and all
// writes go through the driver; classifiers and the merge pipeline only
// read snapshots via Atoms/Get.
type Blackboard struct {
	mu          sync.Mutex
	outputDir   string
	runID       string
	request     string
	description string
	atoms       map[string]types.Atom
	order       []string
	version     int
}

// New constructs an empty Blackboard rooted at outputDir, stamped with a
// fresh run id used to correlate checkpoints across process restarts.
// Audit log entries carry the run id passed to logging.InitAudit instead.
func New(outputDir, request, description string) *Blackboard {
	return &Blackboard{
		outputDir:   outputDir,
		runID:       uuid.New().String(),
		request:     request,
		description: description,
		atoms:       make(map[string]types.Atom),
	}
}

// SetAtoms seeds the blackboard with the initial atom set from
// decomposition. It is only valid before any Update call.
func (b *Blackboard) SetAtoms(atoms []types.Atom) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, a := range atoms {
		if _, exists := b.atoms[a.ID]; !exists {
			b.order = append(b.order, a.ID)
		}
		b.atoms[a.ID] = a
	}
}

// Get returns a copy of one atom's current state.
func (b *Blackboard) Get(id string) (types.Atom, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	a, ok := b.atoms[id]
	if !ok {
		return types.Atom{}, false
	}
	return *a.Clone(), true
}

// Atoms returns a deterministically ordered snapshot of every atom.
func (b *Blackboard) Atoms() []types.Atom {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]types.Atom, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, *b.atoms[id].Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Update applies the scheduler's sole write path: replace one atom's
// state and emit a transition audit event. It writes no checkpoint; the
// scheduler calls WriteCheckpoint after each wave.
func (b *Blackboard) Update(atom types.Atom) {
	b.mu.Lock()
	prior, existed := b.atoms[atom.ID]
	if !existed {
		b.order = append(b.order, atom.ID)
	}
	b.atoms[atom.ID] = *atom.Clone()
	b.mu.Unlock()

	from := "none"
	if existed {
		from = string(prior.Status)
	}
	logging.Blackboard("atom %s: %s -> %s", atom.ID, from, atom.Status)
	logging.Audit().AtomTransition(atom.ID, from, string(atom.Status))
}

// Counts returns the number of atoms in each terminal/non-terminal
// bucket, used to populate Checkpoint summary counters.
func (b *Blackboard) Counts() (completed, failed, pending int) {
	for _, a := range b.Atoms() {
		switch a.Status {
		case types.StatusCompleted:
			completed++
		case types.StatusFailed:
			failed++
		default:
			pending++
		}
	}
	return
}

// checkpointDir returns outputDir/checkpoints, creating it if absent.
func (b *Blackboard) checkpointDir() (string, error) {
	dir := filepath.Join(b.outputDir, "checkpoints")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("blackboard: create checkpoint dir: %w", err)
	}
	return dir, nil
}

// WriteCheckpoint snapshots the current atom set into a timestamped
// checkpoint (both JSON and a human-readable markdown summary), then
// atomically (write-then-rename) updates the "latest" pointer.
func (b *Blackboard) WriteCheckpoint(status types.ExecutionStatus, summary string) (string, error) {
	dir, err := b.checkpointDir()
	if err != nil {
		return "", err
	}

	b.mu.Lock()
	b.version++
	version := b.version
	b.mu.Unlock()

	completed, failed, pending := b.Counts()
	cp := types.Checkpoint{
		RunID:           b.runID,
		Version:         version,
		Timestamp:       time.Now().UTC(),
		Request:         b.request,
		Description:     b.description,
		Summary:         summary,
		ExecutionStatus: status,
		CompletedCount:  completed,
		FailedCount:     failed,
		PendingCount:    pending,
	}
	for _, a := range b.Atoms() {
		cp.Atoms = append(cp.Atoms, types.AtomSnapshot{
			ID:                a.ID,
			Kind:              a.Kind,
			Layer:             a.Layer,
			Namespace:         a.Namespace,
			Description:       a.Description,
			ExpectedTypes:     a.ExpectedTypes,
			Status:            a.Status,
			Dependencies:      a.Dependencies,
			GeneratedFragment: a.GeneratedFragment,
			Diagnostics:       a.Diagnostics,
			RetryCount:        a.RetryCount,
			FailureCause:      a.FailureCause,
		})
	}

	stamp := cp.Timestamp.Format("20060102_150405")
	jsonPath := filepath.Join(dir, fmt.Sprintf("checkpoint_%s.json", stamp))
	mdPath := filepath.Join(dir, fmt.Sprintf("checkpoint_%s.md", stamp))

	if err := writeJSONAtomic(jsonPath, cp); err != nil {
		return "", err
	}
	if err := writeFileAtomic(mdPath, []byte(renderMarkdown(cp))); err != nil {
		return "", err
	}
	if err := writeJSONAtomic(filepath.Join(dir, "latest.json"), cp); err != nil {
		return "", err
	}
	if err := writeFileAtomic(filepath.Join(dir, "latest.md"), []byte(renderMarkdown(cp))); err != nil {
		return "", err
	}

	logging.Blackboard("wrote checkpoint v%d (%d completed, %d failed, %d pending)", version, completed, failed, pending)
	logging.Audit().CheckpointWrite(jsonPath)
	return jsonPath, nil
}

func writeJSONAtomic(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("blackboard: marshal %s: %w", path, err)
	}
	return writeFileAtomic(path, data)
}

// writeFileAtomic writes to a temp file in the same directory then
// renames it over the target, so a crash never leaves a partial
// checkpoint visible at path.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("blackboard: create temp file for %s: %w", path, err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("blackboard: write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("blackboard: close %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("blackboard: rename into %s: %w", path, err)
	}
	return nil
}

func renderMarkdown(cp types.Checkpoint) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Checkpoint v%d\n\n", cp.Version)
	fmt.Fprintf(&sb, "- Run: %s\n", cp.RunID)
	fmt.Fprintf(&sb, "- Status: %s\n", cp.ExecutionStatus)
	fmt.Fprintf(&sb, "- Completed: %d\n", cp.CompletedCount)
	fmt.Fprintf(&sb, "- Failed: %d\n", cp.FailedCount)
	fmt.Fprintf(&sb, "- Pending: %d\n", cp.PendingCount)
	fmt.Fprintf(&sb, "- Timestamp: %s\n\n", cp.Timestamp.Format(time.RFC3339))
	if cp.Summary != "" {
		fmt.Fprintf(&sb, "%s\n\n", cp.Summary)
	}
	fmt.Fprintf(&sb, "## Atoms\n\n")
	for _, a := range cp.Atoms {
		fmt.Fprintf(&sb, "- `%s` (%s)", a.ID, a.Status)
		if a.FailureCause != "" {
			fmt.Fprintf(&sb, " — %s", a.FailureCause)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// Resume loads the "latest" checkpoint under outputDir, if present, and
// returns a Blackboard seeded with the persisted atom states: on startup
// the run resumes and Completed atoms are not re-run. ok is false with a
// nil error if no checkpoint exists yet.
func Resume(outputDir, request, description string) (bb *Blackboard, ok bool, err error) {
	path := filepath.Join(outputDir, "checkpoints", "latest.json")
	data, readErr := os.ReadFile(path)
	if readErr != nil {
		if os.IsNotExist(readErr) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("blackboard: read %s: %w", path, readErr)
	}

	var cp types.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, false, fmt.Errorf("blackboard: parse %s: %w", path, err)
	}

	b := New(outputDir, request, description)
	if cp.RunID != "" {
		b.runID = cp.RunID
	}
	atoms := make([]types.Atom, 0, len(cp.Atoms))
	for _, s := range cp.Atoms {
		atoms = append(atoms, types.Atom{
			ID:                s.ID,
			Kind:              s.Kind,
			Layer:             s.Layer,
			Namespace:         s.Namespace,
			Description:       s.Description,
			ExpectedTypes:     s.ExpectedTypes,
			Status:            s.Status,
			Dependencies:      s.Dependencies,
			GeneratedFragment: s.GeneratedFragment,
			Diagnostics:       s.Diagnostics,
			RetryCount:        s.RetryCount,
			FailureCause:      s.FailureCause,
		})
	}
	b.SetAtoms(atoms)
	b.version = cp.Version
	return b, true, nil
}
