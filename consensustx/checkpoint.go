// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package consensustx

import "github.com/luxfi/ids"

// PendingCheckpoint is a proposed, not-yet-signed checkpoint held before
// the checkpoint builder finalizes it (spec §3, §4.10).
type PendingCheckpoint struct {
	Height       uint64
	Roots        []TK
	TimestampMs  uint64
	LastOfEpoch  bool
	// IsRandomness marks the odd-height sub-checkpoint (height+1) carrying
	// randomness-using roots for the same commit (spec §4.9 step 9).
	IsRandomness bool
}

// ConstructedCheckpoint is what comes back from the checkpoint builder
// once a PendingCheckpoint has been turned into a real, signable
// checkpoint (spec §4.10: "records (sequence_number, summary, contents)
// in C2").
type ConstructedCheckpoint struct {
	SequenceNumber uint64
	SummaryDigest  ids.ID
	ContentsDigest ids.ID
}
