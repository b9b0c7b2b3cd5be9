package atomloop

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codegen-forge/forge/internal/catalog"
	"codegen-forge/forge/internal/oracle"
	"codegen-forge/forge/internal/types"
)

func newTestCatalog(t *testing.T, contracts ...types.Contract) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.New()
	require.NoError(t, err)
	for _, c := range contracts {
		require.NoError(t, cat.Add(c))
	}
	require.NoError(t, cat.Freeze())
	t.Cleanup(func() { cat.Close() })
	return cat
}

func TestRunAcceptsCleanFragmentOnFirstAttempt(t *testing.T) {
	cat := newTestCatalog(t)
	adapter := oracle.NewFixtureAdapter()
	adapter.RespondAny(oracle.SchemaFragment, `{"fragment":"package models\n\ntype Order struct {\n\tID string\n}\n"}`)

	loop := New(adapter, cat, nil)
	atom := types.Atom{ID: "a1", Kind: types.KindDto, Namespace: "Models", ExpectedTypes: []string{"Order"}}

	result := loop.Run(context.Background(), atom)
	assert.Equal(t, types.StatusCompleted, result.Status)
	assert.NotEmpty(t, result.GeneratedFragment)
	assert.Empty(t, types.FilterContractViolations(result.Diagnostics))
}

func TestRunRepairsMissingImport(t *testing.T) {
	cat := newTestCatalog(t)
	adapter := oracle.NewFixtureAdapter()
	adapter.RespondAny(oracle.SchemaFragment, `{"fragment":"package models\n\nfunc greet() string {\n\treturn fmt.Sprintf(\"hi\")\n}\n"}`)

	loop := New(adapter, cat, nil)
	atom := types.Atom{ID: "a2", Kind: types.KindImplementation, Namespace: "Models"}

	result := loop.Run(context.Background(), atom)
	assert.Equal(t, types.StatusCompleted, result.Status)
	assert.Contains(t, result.GeneratedFragment, `"fmt"`)
}

func TestRunRepairsSealedInheritance(t *testing.T) {
	cat := newTestCatalog(t, types.Contract{
		Kind: types.ContractAbstract, Name: "AbstractReporter", Namespace: "Core", IsSealed: true,
	})
	adapter := oracle.NewFixtureAdapter()
	adapter.RespondAny(oracle.SchemaFragment, `{"fragment":"package presentation\n\ntype FastReporter struct {\n\tAbstractReporter\n}\n"}`)

	loop := New(adapter, cat, nil)
	atom := types.Atom{ID: "a3", Kind: types.KindImplementation, Namespace: "Presentation"}

	result := loop.Run(context.Background(), atom)
	assert.Equal(t, types.StatusCompleted, result.Status)
	assert.Contains(t, result.GeneratedFragment, "innerAbstractReporter")
	assert.NotContains(t, result.GeneratedFragment, "\tAbstractReporter\n")
}

func TestRunFailsAfterExhaustingRoundTrips(t *testing.T) {
	cat := newTestCatalog(t)
	adapter := oracle.NewFixtureAdapter()
	// Always returns a syntactically broken fragment: compile never
	// succeeds and there is nothing auto-fixable, so every round-trip is
	// consumed without the unfixable-diagnostic count reaching zero.
	adapter.RespondAny(oracle.SchemaFragment, `{"fragment":"package models\n\nfunc broken( {\n"}`)

	loop := New(adapter, cat, nil)
	atom := types.Atom{ID: "a4", Kind: types.KindImplementation, Namespace: "Models"}

	result := loop.Run(context.Background(), atom)
	assert.Equal(t, types.StatusFailed, result.Status)
	assert.Equal(t, "atom_exhausted", result.FailureCause)
	assert.NotEmpty(t, result.Diagnostics)
}

func TestRunUsesDependencyExtractInPrompt(t *testing.T) {
	cat := newTestCatalog(t)
	adapter := oracle.NewFixtureAdapter()
	adapter.RespondAny(oracle.SchemaFragment, `{"fragment":"package models\n\ntype Invoice struct{}\n"}`)

	dep := types.Atom{
		ID: "dep1", Status: types.StatusCompleted,
		TypeContractExtract: "package models\n\ntype Order struct {\n\tID string\n}\n",
	}
	deps := func(id string) (types.Atom, bool) {
		if id == "dep1" {
			return dep, true
		}
		return types.Atom{}, false
	}

	loop := New(adapter, cat, deps)
	atom := types.Atom{ID: "a5", Namespace: "Models", Dependencies: []string{"dep1"}}

	result := loop.Run(context.Background(), atom)
	require.Equal(t, types.StatusCompleted, result.Status)

	calls := adapter.Calls()
	require.NotEmpty(t, calls)
	assert.Contains(t, calls[0].Prompt, "type Order struct")
}

func TestRunRespectsCancellation(t *testing.T) {
	cat := newTestCatalog(t)
	adapter := oracle.NewFixtureAdapter()
	adapter.RespondAny(oracle.SchemaFragment, `{"fragment":"package models\n\ntype X struct{}\n"}`)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	loop := New(adapter, cat, nil)
	result := loop.Run(ctx, types.Atom{ID: "a6"})
	assert.NotEqual(t, types.StatusCompleted, result.Status)
}

func TestExtractTypeContractStripsBodies(t *testing.T) {
	src := `package models

type Order struct {
	ID string
}

func (o *Order) Total() int {
	return 42
}
`
	extract := ExtractTypeContract(src)
	assert.Contains(t, extract, "type Order struct")
	assert.Contains(t, extract, "func (o *Order) Total() int")
	assert.NotContains(t, extract, "return 42")
}
