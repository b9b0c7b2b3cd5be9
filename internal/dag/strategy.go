package dag

import "codegen-forge/forge/internal/types"

// Strategy is the decomposition approach chosen for an over-budget atom.
type Strategy string

const (
	StrategyFunctional    Strategy = "Functional"
	StrategyPartialClass  Strategy = "PartialClass"
	StrategyInterfaceBased Strategy = "InterfaceBased"
	StrategyLayerBased    Strategy = "LayerBased"
)

// strategyPreference is the tie-break order from the
var strategyPreference = []Strategy{
	StrategyFunctional,
	StrategyPartialClass,
	StrategyInterfaceBased,
	StrategyLayerBased,
}

// SelectStrategy deterministically picks a decomposition strategy from an
// atom's kind and its complexity metrics, applying a fixed tie-break
// order (Functional > PartialClass > InterfaceBased > LayerBased) over
// whichever strategies are structurally applicable.
func SelectStrategy(atom types.Atom, m Metrics) Strategy {
	applicable := map[Strategy]bool{
		StrategyFunctional:    atom.Kind == types.KindImplementation && m.TypeCount > 1,
		StrategyPartialClass:  atom.Kind == types.KindImplementation,
		StrategyInterfaceBased: atom.Kind == types.KindInterface || m.TypeCount > 0,
		StrategyLayerBased:    true,
	}
	for _, s := range strategyPreference {
		if applicable[s] {
			return s
		}
	}
	return StrategyLayerBased
}
