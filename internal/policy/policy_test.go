package policy

import (
	"testing"

	"github.com/stretchr/testify/require"

	"codegen-forge/forge/internal/types"
)

func catalogFixture() []types.Contract {
	return []types.Contract{
		{Kind: types.ContractEnum, Name: "OrderStatus", Namespace: "Models", Members: []string{"Pending", "Shipped"}},
		{Kind: types.ContractAbstract, Name: "BaseHandler", Namespace: "Core", IsSealed: true},
		{Kind: types.ContractModel, Name: "Order", Namespace: "Models"},
	}
}

func TestCheckFragmentRedefinition(t *testing.T) {
	e, err := New()
	require.NoError(t, err)
	defer e.Close()

	violations, err := e.CheckFragment(catalogFixture(), FragmentFacts{
		AtomID:          "atom-1",
		DeclaredSymbols: []string{"Order"},
	})
	require.NoError(t, err)
	require.Len(t, violations, 1)
	require.Equal(t, types.ViolationRedefinition, violations[0].Kind)
}

func TestCheckFragmentUndeclaredEnumMember(t *testing.T) {
	e, err := New()
	require.NoError(t, err)
	defer e.Close()

	violations, err := e.CheckFragment(catalogFixture(), FragmentFacts{
		AtomID: "atom-2",
		EnumRefs: []EnumRef{
			{EnumName: "OrderStatus", Member: "Cancelled"},
			{EnumName: "OrderStatus", Member: "Pending"},
		},
	})
	require.NoError(t, err)
	require.Len(t, violations, 1)
	require.Equal(t, types.ViolationUndeclaredMember, violations[0].Kind)
	require.Contains(t, violations[0].Symbol, "Cancelled")
}

func TestCheckFragmentSealedInheritance(t *testing.T) {
	e, err := New()
	require.NoError(t, err)
	defer e.Close()

	violations, err := e.CheckFragment(catalogFixture(), FragmentFacts{
		AtomID: "atom-3",
		Inheritances: []Inheritance{
			{Child: "FastHandler", Parent: "BaseHandler"},
		},
	})
	require.NoError(t, err)
	require.Len(t, violations, 1)
	require.Equal(t, types.ViolationSealedInheritance, violations[0].Kind)
}

func TestCheckFragmentClean(t *testing.T) {
	e, err := New()
	require.NoError(t, err)
	defer e.Close()

	violations, err := e.CheckFragment(catalogFixture(), FragmentFacts{
		AtomID:          "atom-4",
		DeclaredSymbols: []string{"OrderRepository"},
	})
	require.NoError(t, err)
	require.Empty(t, violations)
}

func TestResolveDuplicateTypeBothClassCompatible(t *testing.T) {
	e, err := New()
	require.NoError(t, err)
	defer e.Close()

	res, err := e.Resolve(ConflictInstance{
		ID:                   "c1",
		Kind:                 types.ConflictDuplicateType,
		BothClass:            true,
		CompatibleSignatures: true,
	}, false)
	require.NoError(t, err)
	require.Equal(t, types.ResolutionMergeAsPartial, res)
}

func TestResolveDuplicateTypeNonClass(t *testing.T) {
	e, err := New()
	require.NoError(t, err)
	defer e.Close()

	res, err := e.Resolve(ConflictInstance{
		ID:   "c2",
		Kind: types.ConflictDuplicateType,
	}, false)
	require.NoError(t, err)
	require.Equal(t, types.ResolutionKeepFirst, res)
}

func TestResolveDuplicateTypeBothClassIncompatible(t *testing.T) {
	e, err := New()
	require.NoError(t, err)
	defer e.Close()

	res, err := e.Resolve(ConflictInstance{
		ID:        "c3",
		Kind:      types.ConflictDuplicateType,
		BothClass: true,
	}, false)
	require.NoError(t, err)
	require.Equal(t, types.ResolutionKeepFirst, res)
}

func TestResolveDuplicateMemberConflictingSignatureInteractive(t *testing.T) {
	e, err := New()
	require.NoError(t, err)
	defer e.Close()

	res, err := e.Resolve(ConflictInstance{
		ID:   "c4",
		Kind: types.ConflictDuplicateMember,
	}, true)
	require.NoError(t, err)
	require.Equal(t, types.ResolutionManualInterventionReq, res)
}

func TestResolveDuplicateMemberConflictingSignatureNonInteractive(t *testing.T) {
	e, err := New()
	require.NoError(t, err)
	defer e.Close()

	res, err := e.Resolve(ConflictInstance{
		ID:   "c4b",
		Kind: types.ConflictDuplicateMember,
	}, false)
	require.NoError(t, err)
	require.Equal(t, types.ResolutionFailFast, res)
}

func TestResolveDuplicateMemberIdenticalSignature(t *testing.T) {
	e, err := New()
	require.NoError(t, err)
	defer e.Close()

	res, err := e.Resolve(ConflictInstance{
		ID:            "c5",
		Kind:          types.ConflictDuplicateMember,
		SameSignature: true,
	}, false)
	require.NoError(t, err)
	require.Equal(t, types.ResolutionRemoveDuplicate, res)
}

func TestResolveAmbiguousSimpleName(t *testing.T) {
	e, err := New()
	require.NoError(t, err)
	defer e.Close()

	res, err := e.Resolve(ConflictInstance{
		ID:   "c6",
		Kind: types.ConflictAmbiguousSimpleName,
	}, false)
	require.NoError(t, err)
	require.Equal(t, types.ResolutionUseFullyQualifiedName, res)
}

func TestResolveCallsAreIndependent(t *testing.T) {
	e, err := New()
	require.NoError(t, err)
	defer e.Close()

	res1, err := e.Resolve(ConflictInstance{ID: "c7", Kind: types.ConflictDuplicateType, BothClass: true, CompatibleSignatures: true}, false)
	require.NoError(t, err)
	require.Equal(t, types.ResolutionMergeAsPartial, res1)

	res2, err := e.Resolve(ConflictInstance{ID: "c8", Kind: types.ConflictDuplicateType}, false)
	require.NoError(t, err)
	require.Equal(t, types.ResolutionKeepFirst, res2)
}
