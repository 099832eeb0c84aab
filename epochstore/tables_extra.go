// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package epochstore

import (
	"github.com/luxfi/consensus-core/consensustx"
	"github.com/luxfi/ids"
)

// --- pending_checkpoint_signatures --------------------------------------------

func sigKey(seq uint64, authority ids.NodeID) []byte {
	buf := make([]byte, 0, 8+len(authority))
	buf = append(buf, encodeUint64(seq)...)
	buf = append(buf, authority[:]...)
	return buf
}

func (s *Store) GetPendingCheckpointSignature(seq uint64, authority ids.NodeID) (consensustx.CheckpointSignature, bool, error) {
	var out consensustx.CheckpointSignature
	ok, err := s.get(tablePendingCheckpointSignatures, sigKey(seq, authority), &out)
	return out, ok, err
}

func (b *Batch) PutPendingCheckpointSignature(sig consensustx.CheckpointSignature) error {
	return b.put(tablePendingCheckpointSignatures, sigKey(sig.Sequence, sig.Authority), sig)
}

// --- state_hash_by_checkpoint / running_root_accumulators ---------------------
//
// Carried for completeness with spec §4.1's table list. Neither the
// commit handler nor any of C2-C10's operations in this core read them
// back (they belong to the state-accumulator subsystem this core treats
// as an external collaborator, spec §1); they are exposed only so a
// future accumulator component has somewhere durable to write without a
// schema change.

func (s *Store) GetStateHash(checkpointSeq uint64) (ids.ID, bool, error) {
	var out ids.ID
	ok, err := s.get(tableStateHashByCheckpoint, encodeUint64(checkpointSeq), &out)
	return out, ok, err
}

func (b *Batch) PutStateHash(checkpointSeq uint64, hash ids.ID) error {
	return b.put(tableStateHashByCheckpoint, encodeUint64(checkpointSeq), hash)
}

func (s *Store) GetRunningRootAccumulator(checkpointSeq uint64) ([]byte, bool, error) {
	var out []byte
	ok, err := s.get(tableRunningRootAccumulators, encodeUint64(checkpointSeq), &out)
	return out, ok, err
}

func (b *Batch) PutRunningRootAccumulator(checkpointSeq uint64, digest []byte) error {
	return b.put(tableRunningRootAccumulators, encodeUint64(checkpointSeq), digest)
}
