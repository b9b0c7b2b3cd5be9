package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codegen-forge/forge/internal/types"
)

func TestCompileCleanFragment(t *testing.T) {
	f := NewDefaultFrontend()
	res, err := f.Compile([]SourceFile{{Name: "a.go", Content: `package models

type Order struct {
	ID string
}
`}})
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Empty(t, res.Diagnostics)
}

func TestCompileSyntaxError(t *testing.T) {
	f := NewDefaultFrontend()
	res, err := f.Compile([]SourceFile{{Name: "bad.go", Content: `package models

func broken( {
`}})
	require.NoError(t, err)
	assert.False(t, res.OK)
	require.NotEmpty(t, res.Diagnostics)
	assert.Equal(t, idSyntaxError, res.Diagnostics[0].ID)
}

func TestCompileDuplicateDeclaration(t *testing.T) {
	f := NewDefaultFrontend()
	res, err := f.Compile([]SourceFile{
		{Name: "a.go", Content: "package models\n\ntype Order struct{}\n"},
		{Name: "b.go", Content: "package models\n\ntype Order struct{}\n"},
	})
	require.NoError(t, err)
	assert.False(t, res.OK)
	found := false
	for _, d := range res.Diagnostics {
		if d.ID == idSymbolCollision {
			found = true
		}
	}
	assert.True(t, found)
}

func TestCompileMissingImport(t *testing.T) {
	f := NewDefaultFrontend()
	res, err := f.Compile([]SourceFile{{Name: "a.go", Content: `package models

func greet() string {
	return fmt.Sprintf("hi")
}
`}})
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, idMissingImport, res.Diagnostics[0].ID)
}

func TestClassifyMapsKnownIDs(t *testing.T) {
	cat, fixable := Classify(Diagnostic{ID: idMissingImport})
	assert.Equal(t, types.CategoryMissingImport, cat)
	assert.True(t, fixable)

	cat, fixable = Classify(Diagnostic{ID: "unknown"})
	assert.Equal(t, types.CategoryOther, cat)
	assert.False(t, fixable)
}

func TestCheckContractComplianceSealedInheritance(t *testing.T) {
	contracts := []types.Contract{
		{Kind: types.ContractAbstract, Name: "AbstractReporter", Namespace: "Core", IsSealed: true},
	}
	files := []SourceFile{{Name: "a.go", Content: `package presentation

type FastReporter struct {
	AbstractReporter
}
`}}
	diags, err := CheckContractCompliance(files, contracts)
	require.NoError(t, err)
	require.Len(t, diags, 1)
	assert.Equal(t, idIllegalInheritanceSealed, diags[0].ID)
}

func TestCheckContractComplianceMissingMember(t *testing.T) {
	contracts := []types.Contract{
		{
			Kind: types.ContractInterface, Name: "IOrderService", Namespace: "Services",
			Methods: []types.MethodSignature{{Name: "Place", Params: []string{"order Order"}, ReturnType: "error"}},
		},
	}
	files := []SourceFile{{Name: "a.go", Content: `package services

// implements:IOrderService
type OrderService struct{}
`}}
	diags, err := CheckContractCompliance(files, contracts)
	require.NoError(t, err)
	require.Len(t, diags, 1)
	assert.Equal(t, idMissingInterfaceMember, diags[0].ID)
}

func TestCheckContractComplianceSatisfied(t *testing.T) {
	contracts := []types.Contract{
		{
			Kind: types.ContractInterface, Name: "IOrderService", Namespace: "Services",
			Methods: []types.MethodSignature{{Name: "Place", Params: []string{"order Order"}, ReturnType: "error"}},
		},
	}
	files := []SourceFile{{Name: "a.go", Content: `package services

// implements:IOrderService
type OrderService struct{}

func (s *OrderService) Place(order Order) error {
	return nil
}
`}}
	diags, err := CheckContractCompliance(files, contracts)
	require.NoError(t, err)
	assert.Empty(t, diags)
}
