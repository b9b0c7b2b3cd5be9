package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codegen-forge/forge/internal/oracle"
	"codegen-forge/forge/internal/policy"
	"codegen-forge/forge/internal/types"
)

func TestAddAssignsDefaultNamespace(t *testing.T) {
	c, err := New()
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Add(types.Contract{Kind: types.ContractEnum, Name: "Status"}))
	ct, ok := c.LookupByFQN("Models.Status")
	require.True(t, ok)
	assert.Equal(t, "Models", ct.Namespace)
}

func TestAddDuplicateFQNIsOverlap(t *testing.T) {
	c, err := New()
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Add(types.Contract{Kind: types.ContractEnum, Name: "Status", Namespace: "Models"}))
	err = c.Add(types.Contract{Kind: types.ContractEnum, Name: "Status", Namespace: "Models"})
	require.Error(t, err)
}

func TestFreezeIsOneShot(t *testing.T) {
	c, err := New()
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Freeze())
	require.Error(t, c.Freeze())
	assert.Error(t, c.Add(types.Contract{Kind: types.ContractEnum, Name: "Status"}))
}

func TestAmbiguousSimpleNames(t *testing.T) {
	c, err := New()
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Add(types.Contract{Kind: types.ContractModel, Name: "Record", Namespace: "Models"}))
	require.NoError(t, c.Add(types.Contract{Kind: types.ContractModel, Name: "Record", Namespace: "Services"}))

	amb := c.AmbiguousSimpleNames()
	require.Contains(t, amb, "Record")
	assert.ElementsMatch(t, []string{"Models.Record", "Services.Record"}, amb["Record"])
}

func TestListByKind(t *testing.T) {
	c, err := New()
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Add(types.Contract{Kind: types.ContractEnum, Name: "Status"}))
	require.NoError(t, c.Add(types.Contract{Kind: types.ContractModel, Name: "Order"}))

	enums := c.ListByKind(types.ContractEnum)
	require.Len(t, enums, 1)
	assert.Equal(t, "Status", enums[0].Name)
}

func TestValidateFragmentUsesGuardrails(t *testing.T) {
	c, err := New()
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Add(types.Contract{Kind: types.ContractModel, Name: "Order", Namespace: "Models"}))

	violations, err := c.ValidateFragment(policy.FragmentFacts{
		AtomID:          "atom-1",
		DeclaredSymbols: []string{"Order"},
	})
	require.NoError(t, err)
	require.Len(t, violations, 1)
	assert.Equal(t, types.ViolationRedefinition, violations[0].Kind)
}

func TestBuildFromDecompositionSuccess(t *testing.T) {
	adapter := oracle.NewFixtureAdapter()
	adapter.RespondAny(oracle.SchemaContracts, `{"contracts":[
		{"kind":"Enum","name":"OrderStatus","namespace":"Models","members":["Pending","Shipped"]},
		{"kind":"Interface","name":"IOrderService","namespace":"Services","methods":[{"name":"Place","params":["order Order"],"return_type":"error"}]}
	]}`)

	cat, err := BuildFromDecomposition(context.Background(), adapter, []types.Atom{{ID: "a1", Kind: types.KindContractEnum}}, "build an order system")
	require.NoError(t, err)
	defer cat.Close()

	require.Len(t, cat.All(), 2)
	ct, ok := cat.LookupByFQN("Models.OrderStatus")
	require.True(t, ok)
	assert.Equal(t, []string{"Pending", "Shipped"}, ct.Members)
}

func TestBuildFromDecompositionOverlapIsFatal(t *testing.T) {
	adapter := oracle.NewFixtureAdapter()
	adapter.RespondAny(oracle.SchemaContracts, `{"contracts":[
		{"kind":"Enum","name":"Status","namespace":"Models"},
		{"kind":"Enum","name":"Status","namespace":"Models"}
	]}`)

	_, err := BuildFromDecomposition(context.Background(), adapter, nil, "request")
	require.Error(t, err)
}

func TestBuildFromDecompositionMalformedExhaustsRetries(t *testing.T) {
	adapter := oracle.NewFixtureAdapter()
	adapter.RespondAny(oracle.SchemaContracts, `not json`)

	_, err := BuildFromDecomposition(context.Background(), adapter, nil, "request")
	require.Error(t, err)
	assert.Equal(t, 3, len(adapter.Calls()))
}
