// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package checkpoint

import (
	"fmt"

	"github.com/luxfi/consensus-core/consensustx"
	"github.com/luxfi/consensus-core/epochstore"
	"github.com/luxfi/consensus-core/quarantine"
	"github.com/luxfi/log"
)

// Builder proposes pending checkpoints from a commit's scheduled roots
// and records constructed checkpoints once the builder service finishes
// signing them (C10).
type Builder struct {
	quarantine *quarantine.Quarantine
	logger     log.Logger
}

// New returns a Builder fronting q.
func New(q *quarantine.Quarantine, logger log.Logger) *Builder {
	return &Builder{quarantine: q, logger: logger}
}

// Propose stages one PendingCheckpoint for regularRoots at height, plus
// a second one at height+1 for randomnessRoots when non-empty (spec
// §4.9 step 9, §4.10). lastOfEpoch is attached to whichever checkpoint
// is the last one emitted this commit. Duplicate emission at an
// already-used height is an invariant violation (spec §4.10).
func (b *Builder) Propose(cco *quarantine.CCO, height, timestampMs uint64, regularRoots, randomnessRoots []consensustx.TK, lastOfEpoch bool) error {
	regularIsLast := lastOfEpoch && len(randomnessRoots) == 0
	if err := b.proposeAt(cco, height, timestampMs, regularRoots, regularIsLast, false); err != nil {
		return err
	}
	if len(randomnessRoots) == 0 {
		return nil
	}
	return b.proposeAt(cco, height+1, timestampMs, randomnessRoots, lastOfEpoch, true)
}

func (b *Builder) proposeAt(cco *quarantine.CCO, height, timestampMs uint64, roots []consensustx.TK, lastOfEpoch, isRandomness bool) error {
	exists, err := b.quarantine.PendingCheckpointExists(height)
	if err != nil {
		return err
	}
	if exists {
		consensustx.Fatal(b.logger, fmt.Errorf("%w: height %d", consensustx.ErrPendingCheckpointExists, height))
	}

	cco.AddPendingCheckpoint(consensustx.PendingCheckpoint{
		Height:       height,
		Roots:        roots,
		TimestampMs:  timestampMs,
		LastOfEpoch:  lastOfEpoch,
		IsRandomness: isRandomness,
	})
	return nil
}

// RecordConstructed records a checkpoint summary/contents digest pair
// that has come back from the builder service, and attempts to promote
// the quarantine up through this sequence number if local execution has
// already caught up that far (spec §4.10: "attempts to promote if sync
// has caught up").
func (b *Builder) RecordConstructed(cc consensustx.ConstructedCheckpoint, syncedThroughSeq uint64, batch *epochstore.Batch) error {
	cco := quarantine.NewCCO(0, cc.SequenceNumber)
	cco.AddConstructedCheckpoint(cc)
	b.quarantine.Push(cco)

	if cc.SequenceNumber > syncedThroughSeq {
		return nil
	}
	return b.quarantine.UpdateHighestExecutedCheckpoint(cc.SequenceNumber, batch)
}
