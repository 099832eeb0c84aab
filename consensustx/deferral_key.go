// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package consensustx

import (
	"encoding/binary"
	"fmt"
)

// DeferralKind distinguishes the two reasons a transaction can be
// postponed: waiting for randomness, or waiting for a future consensus
// round (congestion).
type DeferralKind uint8

const (
	// DeferralRandomness groups all transactions deferred until a
	// randomness round becomes available. This bucket sorts before
	// DeferralConsensusRound so that a commit which is generating
	// randomness can cheaply range over just the randomness-blocked
	// entries.
	DeferralRandomness DeferralKind = iota
	// DeferralConsensusRound groups transactions deferred until the
	// commit round reaches at least TargetRound (congestion control).
	DeferralConsensusRound
)

// DeferralKey is the sortable composite key under which the deferral
// store (C5) queues a batch of postponed transactions. Keys strictly
// advance: a transaction deferred once cannot be re-deferred to an
// earlier round, and DeferralKey implements a total order such that
// every DeferralRandomness key sorts before every DeferralConsensusRound
// key, each bucket sub-sorted by round.
type DeferralKey struct {
	Kind DeferralKind
	// TargetRound is the round at or after which the entry becomes
	// eligible to be loaded back into a commit. For DeferralRandomness
	// this is unused (randomness readiness is a DKG state, not a round).
	TargetRound uint64
	// DeferredFromRound is the round the transaction was first deferred
	// at; it is preserved across re-deferrals for the deferral-bound
	// check (spec §4.5, §8 property 5).
	DeferredFromRound uint64
}

// NewRandomnessDeferralKey builds the key used to postpone a transaction
// until a randomness round is available.
func NewRandomnessDeferralKey(deferredFromRound uint64) DeferralKey {
	return DeferralKey{Kind: DeferralRandomness, DeferredFromRound: deferredFromRound}
}

// NewConsensusRoundDeferralKey builds the key used to postpone a
// transaction until the commit round reaches targetRound.
func NewConsensusRoundDeferralKey(targetRound, deferredFromRound uint64) DeferralKey {
	return DeferralKey{Kind: DeferralConsensusRound, TargetRound: targetRound, DeferredFromRound: deferredFromRound}
}

// Bytes renders the key in the byte order used for range scans: kind
// first, then TargetRound, then DeferredFromRound, all big-endian so
// lexicographic byte comparison matches Compare.
func (k DeferralKey) Bytes() []byte {
	buf := make([]byte, 1+8+8)
	buf[0] = byte(k.Kind)
	binary.BigEndian.PutUint64(buf[1:9], k.TargetRound)
	binary.BigEndian.PutUint64(buf[9:17], k.DeferredFromRound)
	return buf
}

// Compare returns -1, 0, or 1 as k sorts before, equal to, or after o.
func (k DeferralKey) Compare(o DeferralKey) int {
	if k.Kind != o.Kind {
		if k.Kind < o.Kind {
			return -1
		}
		return 1
	}
	if k.TargetRound != o.TargetRound {
		if k.TargetRound < o.TargetRound {
			return -1
		}
		return 1
	}
	if k.DeferredFromRound != o.DeferredFromRound {
		if k.DeferredFromRound < o.DeferredFromRound {
			return -1
		}
		return 1
	}
	return 0
}

// Less reports whether k sorts strictly before o.
func (k DeferralKey) Less(o DeferralKey) bool {
	return k.Compare(o) < 0
}

func (k DeferralKey) String() string {
	if k.Kind == DeferralRandomness {
		return fmt.Sprintf("randomness(from=%d)", k.DeferredFromRound)
	}
	return fmt.Sprintf("round(>=%d,from=%d)", k.TargetRound, k.DeferredFromRound)
}

// RandomnessRangeBounds returns the [min, max) bounds that select every
// DeferralRandomness entry regardless of round.
func RandomnessRangeBounds() (min, max DeferralKey) {
	return DeferralKey{Kind: DeferralRandomness},
		DeferralKey{Kind: DeferralConsensusRound}
}

// ConsensusRoundRangeBounds returns the [min, max) bounds that select
// every DeferralConsensusRound entry whose TargetRound is <= upTo.
func ConsensusRoundRangeBounds(upTo uint64) (min, max DeferralKey) {
	min = DeferralKey{Kind: DeferralConsensusRound}
	if upTo == ^uint64(0) {
		max = DeferralKey{Kind: DeferralConsensusRound + 1}
		return
	}
	max = DeferralKey{Kind: DeferralConsensusRound, TargetRound: upTo + 1}
	return
}
