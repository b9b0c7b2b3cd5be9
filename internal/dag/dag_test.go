package dag

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codegen-forge/forge/internal/oracle"
	"codegen-forge/forge/internal/types"
)

func TestDetectCycleLinearChain(t *testing.T) {
	atoms := []types.Atom{
		{ID: "a"},
		{ID: "b", Dependencies: []string{"a"}},
		{ID: "c", Dependencies: []string{"b"}},
	}
	cycle, dangling := DetectCycle(atoms)
	assert.False(t, cycle)
	assert.False(t, dangling)
}

func TestDetectCycleSelfReferential(t *testing.T) {
	atoms := []types.Atom{
		{ID: "a", Dependencies: []string{"b"}},
		{ID: "b", Dependencies: []string{"a"}},
	}
	cycle, dangling := DetectCycle(atoms)
	assert.True(t, cycle)
	assert.False(t, dangling)
}

func TestDetectCycleDanglingEdge(t *testing.T) {
	atoms := []types.Atom{
		{ID: "a", Dependencies: []string{"ghost"}},
	}
	cycle, dangling := DetectCycle(atoms)
	assert.False(t, cycle)
	assert.True(t, dangling)
}

func TestAnalyzeComplexityBoundaryAtThreshold(t *testing.T) {
	// Tuned so estimated_lines (22) lands exactly at the threshold: the
	// spec requires equality not to trigger decomposition, threshold+1 to.
	m := AnalyzeComplexity(ComplexityInput{ExpectedTypeCount: 0, DependencyCount: 0, Description: ""}, 22)
	assert.Equal(t, 22, m.EstimatedLines)
	assert.False(t, m.RequiresDecomposition)

	over := AnalyzeComplexity(ComplexityInput{ExpectedTypeCount: 0, DependencyCount: 0, Description: ""}, 21)
	assert.True(t, over.RequiresDecomposition)
}

func TestAnalyzeComplexityOverThresholdRequiresDecomposition(t *testing.T) {
	m := AnalyzeComplexity(ComplexityInput{ExpectedTypeCount: 5, DependencyCount: 3, Description: "a fairly long description with many words describing many responsibilities across the board"}, 40)
	assert.True(t, m.RequiresDecomposition)
	assert.GreaterOrEqual(t, m.RecommendedSubtaskCount, 2)
}

func TestAnalyzeComplexityManyTypesForcesDecomposition(t *testing.T) {
	m := AnalyzeComplexity(ComplexityInput{ExpectedTypeCount: 4}, 1000)
	assert.True(t, m.RequiresDecomposition)
}

func TestSelectStrategyPrefersFunctional(t *testing.T) {
	atom := types.Atom{Kind: types.KindImplementation}
	m := Metrics{TypeCount: 2}
	assert.Equal(t, StrategyFunctional, SelectStrategy(atom, m))
}

func TestSelectStrategyFallsBackToLayerBased(t *testing.T) {
	atom := types.Atom{Kind: types.KindTest}
	m := Metrics{TypeCount: 0}
	assert.Equal(t, StrategyLayerBased, SelectStrategy(atom, m))
}

func TestDecomposeSuccess(t *testing.T) {
	adapter := oracle.NewFixtureAdapter()
	adapter.RespondAny(oracle.SchemaDecomposition, `{"atoms":[
		{"id":"a","kind":"Interface","layer":"Core","description":"define IOrderService"},
		{"id":"b","kind":"Implementation","layer":"Core","dependencies":["a"],"description":"implement OrderService"}
	]}`)

	atoms, err := Decompose(context.Background(), adapter, "build an order system")
	require.NoError(t, err)
	require.Len(t, atoms, 2)
	assert.Equal(t, []string{"a"}, atoms[1].Dependencies)
}

func TestDecomposeCycleIsFatalAfterRetries(t *testing.T) {
	adapter := oracle.NewFixtureAdapter()
	adapter.RespondAny(oracle.SchemaDecomposition, `{"atoms":[
		{"id":"a","dependencies":["b"]},
		{"id":"b","dependencies":["a"]}
	]}`)

	_, err := Decompose(context.Background(), adapter, "request")
	require.Error(t, err)
	assert.Equal(t, 3, len(adapter.Calls()))
}

func TestAutoDecomposePartialClassChainsLinearly(t *testing.T) {
	adapter := oracle.NewFixtureAdapter()
	adapter.RespondAny(oracle.SchemaSubtasks, `{"subtasks":[
		{"id":"p1","description":"part one"},
		{"id":"p2","description":"part two"},
		{"id":"p3","description":"part three"}
	]}`)

	parent := types.Atom{ID: "p", Namespace: "Core", Dependencies: []string{"root"}}
	subs, err := AutoDecompose(context.Background(), adapter, parent, StrategyPartialClass, 3, 150)
	require.NoError(t, err)
	require.Len(t, subs, 3)
	assert.Equal(t, []string{"root"}, subs[0].Dependencies)
	assert.Equal(t, []string{"p1"}, subs[1].Dependencies)
	assert.Equal(t, []string{"p2"}, subs[2].Dependencies)
	for _, s := range subs {
		assert.Equal(t, "Core", s.Namespace)
	}
}
