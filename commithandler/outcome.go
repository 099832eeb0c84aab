// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package commithandler

import (
	"fmt"

	"github.com/luxfi/consensus-core/consensustx"
)

// OutcomeKind is the tag of a ScheduleOutcome (spec §9 "tagged variants for
// ... scheduling outcomes", enumerated in §4.9 step 6 and the Commit
// Handler result type).
type OutcomeKind uint8

const (
	Schedule OutcomeKind = iota
	Defer
	Cancel
	RandomnessMessage
	ConsensusMessage
	Ignored
	IgnoredSystem
)

func (k OutcomeKind) String() string {
	switch k {
	case Schedule:
		return "schedule"
	case Defer:
		return "defer"
	case Cancel:
		return "cancel"
	case RandomnessMessage:
		return "randomness_message"
	case ConsensusMessage:
		return "consensus_message"
	case Ignored:
		return "ignored"
	case IgnoredSystem:
		return "ignored_system"
	default:
		return "unknown"
	}
}

// CancelKind distinguishes why a transaction was routed to execution with
// sentinel shared-object inputs instead of being scheduled normally (spec
// §4.4, §4.6, §4.9 step 6).
type CancelKind uint8

const (
	// CancelCongestion is raised when the per-object congestion budget is
	// exhausted after max_deferral_rounds of deferral.
	CancelCongestion CancelKind = iota
	// CancelDkgFailed is raised when a randomness-using transaction is
	// scheduled after the DKG has transitioned to Failed.
	CancelDkgFailed
)

// CancelReason names a Cancel outcome's kind and, for congestion
// cancellations, the objects whose budget was exhausted (spec §8 scenario
// S2: "cancelled ... with reason CongestionOnObjects([O2])").
type CancelReason struct {
	Kind    CancelKind
	Objects []consensustx.OID
}

func (r CancelReason) String() string {
	if r.Kind == CancelDkgFailed {
		return "dkg_failed"
	}
	return fmt.Sprintf("congestion_on_objects(%v)", r.Objects)
}

// DeferralReason names why a transaction was postponed rather than
// scheduled this commit. It mirrors consensustx.DeferralKind but is the
// outcome-facing value, kept separate so the outcome type does not need to
// know how the deferral key was constructed.
type DeferralReason struct {
	randomnessBlocked bool
	objects           []consensustx.OID
}

// DeferralReasonRandomnessBlocked builds the reason used when a
// randomness-using transaction is postponed until the DKG succeeds.
func DeferralReasonRandomnessBlocked() DeferralReason {
	return DeferralReason{randomnessBlocked: true}
}

// DeferralReasonCongestion builds the reason used when a transaction is
// postponed because admitting it would exceed this commit's per-object
// congestion budget.
func DeferralReasonCongestion(objects []consensustx.OID) DeferralReason {
	return DeferralReason{objects: objects}
}

func (r DeferralReason) String() string {
	if r.randomnessBlocked {
		return "randomness_blocked"
	}
	return fmt.Sprintf("congestion_on_objects(%v)", r.objects)
}

// ScheduleOutcome is the per-transaction result of the commit handler's
// classification-and-admission pipeline (spec §4.9 step 6, §9). Tx is set
// for every Kind; DeferralKey and Reason are meaningful only for Defer, and
// CancelWhy only for Cancel.
type ScheduleOutcome struct {
	Kind OutcomeKind

	Tx          *consensustx.SequencedConsensusTransaction
	DeferralKey consensustx.DeferralKey
	Reason      DeferralReason
	CancelWhy   CancelReason
}

func scheduled(tx consensustx.SequencedConsensusTransaction) ScheduleOutcome {
	return ScheduleOutcome{Kind: Schedule, Tx: &tx}
}

func deferred(tx consensustx.SequencedConsensusTransaction, key consensustx.DeferralKey, reason DeferralReason) ScheduleOutcome {
	return ScheduleOutcome{Kind: Defer, Tx: &tx, DeferralKey: key, Reason: reason}
}

func cancelled(tx consensustx.SequencedConsensusTransaction, why CancelReason) ScheduleOutcome {
	return ScheduleOutcome{Kind: Cancel, Tx: &tx, CancelWhy: why}
}

func ignored(tx consensustx.SequencedConsensusTransaction) ScheduleOutcome {
	return ScheduleOutcome{Kind: Ignored, Tx: &tx}
}

func ignoredSystem(tx consensustx.SequencedConsensusTransaction) ScheduleOutcome {
	return ScheduleOutcome{Kind: IgnoredSystem, Tx: &tx}
}

func appliedConsensusMessage(tx consensustx.SequencedConsensusTransaction) ScheduleOutcome {
	return ScheduleOutcome{Kind: ConsensusMessage, Tx: &tx}
}

func appliedRandomnessMessage(tx consensustx.SequencedConsensusTransaction) ScheduleOutcome {
	return ScheduleOutcome{Kind: RandomnessMessage, Tx: &tx}
}
