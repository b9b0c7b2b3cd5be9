package mangle

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const guardrailSchema = `
Decl contract_symbol(Name).
Decl sealed_contract(Name).
Decl enum_member(EnumName, Member).
Decl fragment_decl(AtomID, Name).
Decl fragment_enum_ref(AtomID, EnumName, Member).
Decl fragment_inherits(AtomID, Child, Parent).

Decl violation_redefinition(AtomID, Name).
violation_redefinition(AtomID, Name) :-
	fragment_decl(AtomID, Name), contract_symbol(Name).

Decl violation_undeclared_enum_member(AtomID, EnumName, Member).
violation_undeclared_enum_member(AtomID, EnumName, Member) :-
	fragment_enum_ref(AtomID, EnumName, Member), !enum_member(EnumName, Member).

Decl violation_illegal_inheritance(AtomID, Child, Parent).
violation_illegal_inheritance(AtomID, Child, Parent) :-
	fragment_inherits(AtomID, Child, Parent), sealed_contract(Parent).
`

func newGuardrailEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, e.LoadSchemaString(guardrailSchema))
	return e
}

func TestLoadSchemaStringDeclaresPredicates(t *testing.T) {
	e := newGuardrailEngine(t)
	defer e.Close()

	_, ok := e.predicateIndex["contract_symbol"]
	require.True(t, ok)
	_, ok = e.predicateIndex["violation_redefinition"]
	require.True(t, ok)
}

func TestAddFactBeforeSchemaLoadedFails(t *testing.T) {
	e, err := NewEngine(DefaultConfig())
	require.NoError(t, err)
	defer e.Close()

	err = e.AddFact("contract_symbol", "Order")
	require.Error(t, err)
}

func TestAddFactUnknownPredicateFails(t *testing.T) {
	e := newGuardrailEngine(t)
	defer e.Close()

	err := e.AddFact("not_declared", "x")
	require.Error(t, err)
}

func TestAddFactWrongArityFails(t *testing.T) {
	e := newGuardrailEngine(t)
	defer e.Close()

	err := e.AddFact("enum_member", "OrderStatus")
	require.Error(t, err)
}

func TestDerivesRedefinitionViolation(t *testing.T) {
	e := newGuardrailEngine(t)
	defer e.Close()

	require.NoError(t, e.AddFact("contract_symbol", "Order"))
	require.NoError(t, e.AddFact("fragment_decl", "atom-1", "Order"))

	facts, err := e.GetFacts("violation_redefinition")
	require.NoError(t, err)
	require.Len(t, facts, 1)
	require.Equal(t, "atom-1", facts[0].Args[0])
	require.Equal(t, "Order", facts[0].Args[1])
}

func TestDerivesUndeclaredEnumMemberViolation(t *testing.T) {
	e := newGuardrailEngine(t)
	defer e.Close()

	require.NoError(t, e.AddFact("enum_member", "OrderStatus", "Pending"))
	require.NoError(t, e.AddFact("fragment_enum_ref", "atom-2", "OrderStatus", "Pending"))
	require.NoError(t, e.AddFact("fragment_enum_ref", "atom-2", "OrderStatus", "Cancelled"))

	facts, err := e.GetFacts("violation_undeclared_enum_member")
	require.NoError(t, err)
	require.Len(t, facts, 1)
	require.Equal(t, "Cancelled", facts[0].Args[2])
}

func TestDerivesIllegalInheritanceViolation(t *testing.T) {
	e := newGuardrailEngine(t)
	defer e.Close()

	require.NoError(t, e.AddFact("sealed_contract", "BaseHandler"))
	require.NoError(t, e.AddFact("fragment_inherits", "atom-3", "FastHandler", "BaseHandler"))

	facts, err := e.GetFacts("violation_illegal_inheritance")
	require.NoError(t, err)
	require.Len(t, facts, 1)
	require.Equal(t, "FastHandler", facts[0].Args[1])
}

func TestClearResetsFactsButKeepsSchema(t *testing.T) {
	e := newGuardrailEngine(t)
	defer e.Close()

	require.NoError(t, e.AddFact("contract_symbol", "Order"))
	require.NoError(t, e.AddFact("fragment_decl", "atom-1", "Order"))
	facts, err := e.GetFacts("violation_redefinition")
	require.NoError(t, err)
	require.Len(t, facts, 1)

	e.Clear()

	facts, err = e.GetFacts("violation_redefinition")
	require.NoError(t, err)
	require.Empty(t, facts)

	// the schema survives Clear, so asserting fresh facts still works.
	require.NoError(t, e.AddFact("contract_symbol", "Invoice"))
}

func TestFactLimitEnforced(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FactLimit = 1
	e, err := NewEngine(cfg)
	require.NoError(t, err)
	require.NoError(t, e.LoadSchemaString(guardrailSchema))
	defer e.Close()

	require.NoError(t, e.AddFact("contract_symbol", "Order"))
	err = e.AddFact("contract_symbol", "Invoice")
	require.Error(t, err)
}

func TestGetFactsUnknownPredicateFails(t *testing.T) {
	e := newGuardrailEngine(t)
	defer e.Close()

	_, err := e.GetFacts("not_declared")
	require.Error(t, err)
}

func TestAutoEvalDisabledSuppressesDerivation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AutoEval = false
	e, err := NewEngine(cfg)
	require.NoError(t, err)
	require.NoError(t, e.LoadSchemaString(guardrailSchema))
	defer e.Close()

	require.NoError(t, e.AddFact("contract_symbol", "Order"))
	require.NoError(t, e.AddFact("fragment_decl", "atom-1", "Order"))

	facts, err := e.GetFacts("violation_redefinition")
	require.NoError(t, err)
	require.Empty(t, facts, "rules never re-evaluate without AutoEval")
}

func TestFactStringRendersNameAndStringArgs(t *testing.T) {
	f := Fact{Predicate: "conflict_kind", Args: []interface{}{"c1", "DuplicateType"}}
	require.Equal(t, `conflict_kind("c1", "DuplicateType").`, f.String())

	named := Fact{Predicate: "merge_mode", Args: []interface{}{"/interactive"}}
	require.Equal(t, `merge_mode(/interactive).`, named.String())
}
