// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package congestion

import (
	"github.com/luxfi/consensus-core/consensustx"
	"github.com/luxfi/consensus-core/protocolconfig"
)

// Outcome is the per-transaction admission decision (spec §4.4: possible
// outcomes Schedule, Defer(key), Cancel(reason) — Cancel is decided one
// layer up by the commit handler, which also consults DKG status).
type Outcome uint8

const (
	Admit Outcome = iota
	Defer
)

// Tracker accumulates execution cost touching each shared object within
// a single consensus commit and decides whether a candidate transaction
// may be admitted (spec §4.4). Two independent trackers exist per
// commit, one regular and one randomness-using; callers construct one
// Tracker per set.
type Tracker struct {
	mode          protocolconfig.CongestionMode
	capFactor     float64
	perCommitCap  uint64 // perCommitLimit + overageBudget, the hard ceiling an object's cost may reach this commit
	estimator     *Estimator

	cost map[consensustx.OID]uint64
}

// NewTracker returns a tracker seeded from initialDebts (the
// quarantine's decayed per-object debt carried over from the previous
// commit, spec §4.2 LoadInitialObjectDebts).
func NewTracker(mode protocolconfig.CongestionMode, capFactor float64, perCommitLimit, overageBudget uint64, estimator *Estimator, initialDebts map[consensustx.OID]uint64) *Tracker {
	cost := make(map[consensustx.OID]uint64, len(initialDebts))
	for k, v := range initialDebts {
		cost[k] = v
	}
	return &Tracker{
		mode:         mode,
		capFactor:    capFactor,
		perCommitCap: perCommitLimit + overageBudget,
		estimator:    estimator,
		cost:         cost,
	}
}

// costOf computes cost(T) under the tracker's configured mode (spec
// §4.4 table).
func (t *Tracker) costOf(tx *consensustx.UserCertificate) uint64 {
	switch t.mode {
	case protocolconfig.CongestionTotalGasBudget:
		return tx.GasBudget
	case protocolconfig.CongestionTotalTxCount:
		return 1
	case protocolconfig.CongestionTotalGasBudgetWithCap:
		cap := uint64(t.capFactor * float64(tx.NumInputs+tx.NumCommands))
		if tx.GasBudget < cap {
			return tx.GasBudget
		}
		return cap
	case protocolconfig.CongestionExecutionTimeEstimate:
		return t.estimator.EstimateTx(tx)
	default:
		return 0
	}
}

// Decide reports whether tx may be admitted into this commit. On Defer
// it also returns the deferral key the caller should use to re-queue
// tx to the next round (spec §4.4: "produce a deferral key
// (next_round, consensus-round-kind)").
func (t *Tracker) Decide(tx *consensustx.UserCertificate, currentRound uint64) (Outcome, consensustx.DeferralKey) {
	if t.mode == protocolconfig.CongestionNone {
		return Admit, consensustx.DeferralKey{}
	}

	cost := t.costOf(tx)

	var current uint64
	for _, si := range tx.SharedInputs {
		if c := t.cost[si.Object]; c > current {
			current = c
		}
	}

	if current+cost > t.perCommitCap {
		return Defer, consensustx.NewConsensusRoundDeferralKey(currentRound+1, currentRound)
	}

	for _, si := range tx.SharedInputs {
		t.cost[si.Object] += cost
	}
	return Admit, consensustx.DeferralKey{}
}

// Debts reports, per object touched this commit, max(0, final_cost -
// per_commit_limit): the amount to be decayed and carried forward into
// the next commit's initial debts (spec §4.4 "After all admissions,
// emit per-object debts").
func (t *Tracker) Debts(perCommitLimit uint64) map[consensustx.OID]uint64 {
	out := make(map[consensustx.OID]uint64, len(t.cost))
	for obj, cost := range t.cost {
		if cost > perCommitLimit {
			out[obj] = cost - perCommitLimit
		}
	}
	return out
}
