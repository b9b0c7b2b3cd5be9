package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// AuditEventType names a single auditable event, feeding the offline
// analysis surface's structured report naming the failed atoms,
// remaining diagnostics per atom, and the checkpoint path. No
// downstream Datalog EDB consumes the audit log itself — internal/policy
// reasons over the live Blackboard, not over a log file — so this keeps
// a plain structured-JSON-per-line event log instead of Mangle facts.
type AuditEventType string

const (
	AuditAtomTransition   AuditEventType = "atom_transition"
	AuditContractFreeze   AuditEventType = "contract_freeze"
	AuditContractOverlap  AuditEventType = "contract_overlap"
	AuditMergeConflict    AuditEventType = "merge_conflict"
	AuditCheckpointWrite  AuditEventType = "checkpoint_write"
	AuditOracleCall       AuditEventType = "oracle_call"
	AuditWaveDispatch     AuditEventType = "wave_dispatch"
	AuditRunOutcome       AuditEventType = "run_outcome"
)

// AuditEvent is one structured record.
type AuditEvent struct {
	Type      AuditEventType         `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	RunID     string                 `json:"run_id,omitempty"`
	AtomID    string                 `json:"atom_id,omitempty"`
	Success   bool                   `json:"success"`
	Detail    string                 `json:"detail,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// AuditLogger writes newline-delimited JSON audit events to a single file.
type AuditLogger struct {
	mu    sync.Mutex
	file  *os.File
	runID string
}

var (
	auditInstance *AuditLogger
	auditMu       sync.Mutex
)

// InitAudit opens <outputDir>/audit.jsonl, appending across resumes so
// the audit trail survives a checkpoint/resume cycle.
func InitAudit(outputDir, runID string) error {
	auditMu.Lock()
	defer auditMu.Unlock()

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("audit: create output dir: %w", err)
	}
	path := filepath.Join(outputDir, "audit.jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("audit: open %s: %w", path, err)
	}
	auditInstance = &AuditLogger{file: f, runID: runID}
	return nil
}

// CloseAudit closes the underlying file. Safe to call when never
// initialized.
func CloseAudit() {
	auditMu.Lock()
	defer auditMu.Unlock()
	if auditInstance != nil && auditInstance.file != nil {
		auditInstance.file.Close()
	}
	auditInstance = nil
}

// Audit returns the process-wide audit logger, or a discarding stub if
// InitAudit was never called (for example in unit tests).
func Audit() *AuditLogger {
	auditMu.Lock()
	defer auditMu.Unlock()
	if auditInstance == nil {
		return &AuditLogger{}
	}
	return auditInstance
}

func (a *AuditLogger) Log(e AuditEvent) {
	if a == nil || a.file == nil {
		return
	}
	e.Timestamp = time.Now()
	if e.RunID == "" {
		e.RunID = a.runID
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	data, err := json.Marshal(e)
	if err != nil {
		return
	}
	a.file.Write(data)
	a.file.Write([]byte("\n"))
}

func (a *AuditLogger) AtomTransition(atomID string, from, to string) {
	a.Log(AuditEvent{Type: AuditAtomTransition, AtomID: atomID, Success: true,
		Fields: map[string]interface{}{"from": from, "to": to}})
}

func (a *AuditLogger) ContractFreeze(count int) {
	a.Log(AuditEvent{Type: AuditContractFreeze, Success: true,
		Fields: map[string]interface{}{"contract_count": count}})
}

func (a *AuditLogger) ContractOverlap(fqn string) {
	a.Log(AuditEvent{Type: AuditContractOverlap, Success: false, Detail: fqn})
}

func (a *AuditLogger) MergeConflict(kind, fqn, resolution string) {
	a.Log(AuditEvent{Type: AuditMergeConflict, Success: true,
		Fields: map[string]interface{}{"kind": kind, "fqn": fqn, "resolution": resolution}})
}

func (a *AuditLogger) CheckpointWrite(path string) {
	a.Log(AuditEvent{Type: AuditCheckpointWrite, Success: true, Detail: path})
}

func (a *AuditLogger) OracleCall(schema string, durationMs int64, success bool, errMsg string) {
	a.Log(AuditEvent{Type: AuditOracleCall, Success: success, Detail: errMsg,
		Fields: map[string]interface{}{"schema": schema, "duration_ms": durationMs}})
}

func (a *AuditLogger) WaveDispatch(atomID string, waveIndex, dispatchIndex int) {
	a.Log(AuditEvent{Type: AuditWaveDispatch, AtomID: atomID, Success: true,
		Fields: map[string]interface{}{"wave": waveIndex, "dispatch_index": dispatchIndex}})
}

func (a *AuditLogger) RunOutcome(status string, completed, failed int) {
	a.Log(AuditEvent{Type: AuditRunOutcome, Success: status == "Completed", Detail: status,
		Fields: map[string]interface{}{"completed": completed, "failed": failed}})
}
