package forgeerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorIsMatchesKind(t *testing.T) {
	err := New(ContractOverlap, "catalog.build", fmt.Errorf("duplicate Status"))
	require.True(t, errors.Is(err, Sentinel(ContractOverlap)))
	require.False(t, errors.Is(err, Sentinel(CycleDetected)))
}

func TestKindOf(t *testing.T) {
	err := New(AtomExhausted, "atomloop.run", nil)
	wrapped := fmt.Errorf("wave 2: %w", err)
	kind, ok := KindOf(wrapped)
	require.True(t, ok)
	assert.Equal(t, AtomExhausted, kind)

	_, ok = KindOf(errors.New("plain"))
	assert.False(t, ok)
}

func TestKindFatalAndRetriable(t *testing.T) {
	assert.True(t, ContractOverlap.Fatal())
	assert.True(t, CycleDetected.Fatal())
	assert.True(t, ConflictUnresolvable.Fatal())
	assert.True(t, Canceled.Fatal())
	assert.False(t, AtomExhausted.Fatal())

	assert.True(t, OracleTransient.Retriable())
	assert.True(t, OracleMalformed.Retriable())
	assert.False(t, ContractOverlap.Retriable())
}
