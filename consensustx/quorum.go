// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package consensustx

import (
	"github.com/luxfi/ids"
	"github.com/luxfi/validators"
)

// WeightTable is the minimal surface the randomness DKG quorum check
// (spec §4.6) and the JWK stake-quorum check (spec §4.7) need from the
// committee's stake distribution, kept small and local the way the
// teacher scopes weight-table interfaces down to just what a caller
// needs (e.g. the Beacons.TotalWeight shape in engine/dag/bootstrap).
type WeightTable interface {
	Weight(authority ids.NodeID) uint64
	TotalWeight() uint64
}

// ValidatorSetWeightTable adapts a github.com/luxfi/validators.Set (the
// committee handed to this core at epoch start, scoped outside it the
// way spec §6 describes ProtocolConfig being handed in) into a
// WeightTable. validators.Manager is deliberately not used here: every
// Manager method in the pack (validators/validators.go's
// GetWeight/TotalWeight) is keyed by a chainID this per-epoch core has
// no notion of, while Set's Has/List/Light need nothing beyond the
// committee itself.
type ValidatorSetWeightTable struct {
	Set validators.Set
}

func (w ValidatorSetWeightTable) Weight(authority ids.NodeID) uint64 {
	if !w.Set.Has(authority) {
		return 0
	}
	for _, v := range w.Set.List() {
		if v.ID() == authority {
			return v.Light()
		}
	}
	return 0
}

func (w ValidatorSetWeightTable) TotalWeight() uint64 {
	return w.Set.Light()
}

// HasQuorum reports whether the combined weight of members crosses the
// committee's BFT quorum threshold, using the same floor((2n/3)+1)
// supermajority convention the teacher's AlphaPreference defaulting uses
// (config.Builder: (k*2/3)+1).
func HasQuorum(weights WeightTable, members []ids.NodeID) bool {
	var sum uint64
	for _, m := range members {
		sum += weights.Weight(m)
	}
	threshold := weights.TotalWeight()*2/3 + 1
	return sum >= threshold
}
