package types

import "time"

// ExecutionStatus is the overall run status carried in a Checkpoint.
type ExecutionStatus string

const (
	ExecutionInProgress ExecutionStatus = "InProgress"
	ExecutionCompleted  ExecutionStatus = "Completed"
	ExecutionFailed     ExecutionStatus = "Failed"
	ExecutionAborted    ExecutionStatus = "Aborted"
)

// AtomSnapshot is the durable slice of an Atom a Checkpoint records —
// enough to resume (status, dependencies, latest fragment) without
// carrying transient generation-loop state.
type AtomSnapshot struct {
	ID                string       `json:"id"`
	Kind              AtomKind     `json:"kind"`
	Layer             Layer        `json:"layer"`
	Namespace         string       `json:"namespace"`
	Description       string       `json:"description"`
	ExpectedTypes     []string     `json:"expected_types,omitempty"`
	Status            AtomStatus   `json:"status"`
	Dependencies      []string     `json:"dependencies"`
	GeneratedFragment string       `json:"generated_fragment,omitempty"`
	Diagnostics       []Diagnostic `json:"diagnostics,omitempty"`
	RetryCount        int          `json:"retry_count"`
	FailureCause      string       `json:"failure_cause,omitempty"`
}

// Checkpoint is a durable, versioned snapshot of the Blackboard.
type Checkpoint struct {
	RunID           string          `json:"run_id"`
	Version         int             `json:"version"`
	Timestamp       time.Time       `json:"timestamp"`
	Request         string          `json:"request"`
	Description     string          `json:"description"`
	Atoms           []AtomSnapshot  `json:"atoms"`
	Summary         string          `json:"summary,omitempty"`
	ExecutionStatus ExecutionStatus `json:"execution_status"`

	CompletedCount int `json:"completed_count"`
	FailedCount    int `json:"failed_count"`
	PendingCount   int `json:"pending_count"`
}
