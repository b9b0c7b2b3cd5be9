package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAuditRoundTrip(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, InitAudit(dir, "run-1"))
	defer CloseAudit()

	Audit().AtomTransition("a1", "Ready", "InProgress")
	Audit().ContractOverlap("Models.Status")
	Audit().RunOutcome("Completed", 4, 0)

	data, err := os.ReadFile(filepath.Join(dir, "audit.jsonl"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	require.Contains(t, lines[0], `"atom_transition"`)
	require.Contains(t, lines[0], `"run-1"`)
}

func TestAuditWithoutInitIsSafe(t *testing.T) {
	CloseAudit()
	require.NotPanics(t, func() {
		Audit().AtomTransition("a1", "Pending", "Ready")
	})
}
