package main

import (
	"errors"

	"codegen-forge/forge/internal/forgeerr"
)

// exitCodeFor maps a run's terminal error onto the fixed exit
// codes: 0 success, 1 decomposition/contract failure, 2 per-atom
// failures exceeded policy, 3 merge failure, 4 user-canceled.
func exitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	var fe *forgeerr.Error
	if errors.As(err, &fe) {
		switch fe.Kind {
		case forgeerr.CycleDetected, forgeerr.ContractOverlap, forgeerr.OracleMalformed:
			return 1
		case forgeerr.AtomExhausted:
			return 2
		case forgeerr.ConflictUnresolvable:
			return 3
		case forgeerr.Canceled:
			return 4
		}
	}
	return 1
}
