// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package epochstore

import (
	"bytes"
	"fmt"

	"github.com/luxfi/consensus-core/consensustx"
	"github.com/luxfi/ids"
)

// --- signed_transactions ------------------------------------------------

func (s *Store) GetSignedTransaction(digest consensustx.TD) ([]byte, bool, error) {
	var out []byte
	ok, err := s.get(tableSignedTransactions, digest[:], &out)
	return out, ok, err
}

func (b *Batch) PutSignedTransaction(digest consensustx.TD, envelope []byte) error {
	return b.put(tableSignedTransactions, digest[:], envelope)
}

// --- owned_object_locks ---------------------------------------------------
//
// Keyed (object_id, version) -> digest of the tx holding the
// lock, enforcing the single-writer-per-owned-object invariant that
// prevents equivocation (spec §4.1, §8 property 8).

func ownedObjectLockKey(obj consensustx.OID, v consensustx.Version) []byte {
	buf := make([]byte, 0, 32+8)
	buf = append(buf, obj[:]...)
	buf = append(buf, encodeUint64(uint64(v))...)
	return buf
}

// GetOwnedObjectLock returns the digest currently holding the lock for
// (obj, v), if any.
func (s *Store) GetOwnedObjectLock(obj consensustx.OID, v consensustx.Version) (consensustx.TD, bool, error) {
	var out consensustx.TD
	ok, err := s.get(tableOwnedObjectLocks, ownedObjectLockKey(obj, v), &out)
	return out, ok, err
}

// PutOwnedObjectLock records digest as the writer of (obj, v). Callers
// must have already verified via GetOwnedObjectLock that no conflicting
// digest holds the lock; a second, different digest written here would
// be an equivocation (spec §8 property 8) and is the caller's invariant
// to police, not this layer's (this layer is a dumb KV table).
func (b *Batch) PutOwnedObjectLock(obj consensustx.OID, v consensustx.Version, digest consensustx.TD) error {
	return b.put(tableOwnedObjectLocks, ownedObjectLockKey(obj, v), digest)
}

// --- effects_signatures / signed_effects_digests --------------------------

func (s *Store) GetEffectsSignature(digest consensustx.TD) ([]byte, bool, error) {
	var out []byte
	ok, err := s.get(tableEffectsSignatures, digest[:], &out)
	return out, ok, err
}

func (b *Batch) PutEffectsSignature(digest consensustx.TD, sig []byte) error {
	return b.put(tableEffectsSignatures, digest[:], sig)
}

func (s *Store) GetSignedEffectsDigest(digest consensustx.TD) (consensustx.TD, bool, error) {
	var out consensustx.TD
	ok, err := s.get(tableSignedEffectsDigests, digest[:], &out)
	return out, ok, err
}

func (b *Batch) PutSignedEffectsDigest(digest, effectsDigest consensustx.TD) error {
	return b.put(tableSignedEffectsDigests, digest[:], effectsDigest)
}

// --- executed_in_epoch / executed_transactions_to_checkpoint ---------------

func (s *Store) IsExecutedInEpoch(digest consensustx.TD) (bool, error) {
	return s.has(tableExecutedInEpoch, digest[:])
}

func (b *Batch) MarkExecutedInEpoch(digest consensustx.TD) error {
	return b.putRaw(tableExecutedInEpoch, digest[:], []byte{1})
}

func (s *Store) GetExecutedCheckpoint(digest consensustx.TD) (uint64, bool, error) {
	raw, err := s.db.Get(s.key(tableExecutedTransactionsToCheckpoint, digest[:]))
	if err != nil {
		if isNotFound(err) {
			return 0, false, nil
		}
		return 0, false, consensustx.NewStorageError("get/"+tableExecutedTransactionsToCheckpoint, err)
	}
	return decodeUint64(raw), true, nil
}

func (b *Batch) PutExecutedCheckpoint(digest consensustx.TD, seq uint64) error {
	return b.putRaw(tableExecutedTransactionsToCheckpoint, digest[:], encodeUint64(seq))
}

// --- next_shared_object_versions --------------------------------------------

func nextVersionKey(k consensustx.ConsensusObjectSequenceKey) []byte {
	buf := make([]byte, 0, 32+8)
	buf = append(buf, k.Object[:]...)
	buf = append(buf, encodeUint64(uint64(k.InitialSharedVersion))...)
	return buf
}

func (s *Store) GetNextSharedObjectVersion(k consensustx.ConsensusObjectSequenceKey) (consensustx.Version, bool, error) {
	raw, err := s.db.Get(s.key(tableNextSharedObjectVersions, nextVersionKey(k)))
	if err != nil {
		if isNotFound(err) {
			return 0, false, nil
		}
		return 0, false, consensustx.NewStorageError("get/"+tableNextSharedObjectVersions, err)
	}
	return consensustx.Version(decodeUint64(raw)), true, nil
}

func (b *Batch) PutNextSharedObjectVersion(k consensustx.ConsensusObjectSequenceKey, v consensustx.Version) error {
	return b.putRaw(tableNextSharedObjectVersions, nextVersionKey(k), encodeUint64(uint64(v)))
}

// --- pending_consensus_transactions / consensus_message_processed ----------

func (s *Store) GetPendingConsensusTransaction(ctk consensustx.CTK) (consensustx.SequencedConsensusTransaction, bool, error) {
	var out consensustx.SequencedConsensusTransaction
	ok, err := s.get(tablePendingConsensusTransactions, ctk[:], &out)
	return out, ok, err
}

func (b *Batch) PutPendingConsensusTransaction(ctk consensustx.CTK, tx consensustx.SequencedConsensusTransaction) error {
	return b.put(tablePendingConsensusTransactions, ctk[:], tx)
}

func (b *Batch) DeletePendingConsensusTransaction(ctk consensustx.CTK) error {
	return b.delete(tablePendingConsensusTransactions, ctk[:])
}

func (s *Store) IsConsensusMessageProcessed(ctk consensustx.CTK) (bool, error) {
	return s.has(tableConsensusMessageProcessed, ctk[:])
}

func (b *Batch) MarkConsensusMessageProcessed(ctk consensustx.CTK) error {
	return b.putRaw(tableConsensusMessageProcessed, ctk[:], []byte{1})
}

// --- last_consensus_stats ---------------------------------------------------

func (s *Store) GetLastConsensusStats() (consensustx.LastConsensusStats, bool, error) {
	var out consensustx.LastConsensusStats
	ok, err := s.get(tableLastConsensusStats, singletonKey, &out)
	return out, ok, err
}

func (b *Batch) PutLastConsensusStats(stats consensustx.LastConsensusStats) error {
	if stats.SchemaVersion == 0 {
		stats.SchemaVersion = 1
	}
	return b.put(tableLastConsensusStats, singletonKey, stats)
}

// --- reconfig_state ----------------------------------------------------------

func (s *Store) GetReconfigState() (uint8, bool, error) {
	var out uint8
	ok, err := s.get(tableReconfigState, singletonKey, &out)
	return out, ok, err
}

func (b *Batch) PutReconfigState(state uint8) error {
	return b.put(tableReconfigState, singletonKey, state)
}

// --- end_of_publish ------------------------------------------------------------

func (s *Store) HasEndOfPublish(authority ids.NodeID) (bool, error) {
	return s.has(tableEndOfPublish, authority[:])
}

func (b *Batch) PutEndOfPublish(authority ids.NodeID) error {
	return b.putRaw(tableEndOfPublish, authority[:], []byte{1})
}

// ListEndOfPublish scans the table to recover the observed-authority
// set after a restart (used to rebuild in-memory quorum state).
func (s *Store) ListEndOfPublish() ([]ids.NodeID, error) {
	var out []ids.NodeID
	err := s.iterateTable(tableEndOfPublish, func([]byte) error { return nil }, func(localKey []byte) error {
		var n ids.NodeID
		if len(localKey) != len(n) {
			return fmt.Errorf("corrupt end_of_publish key length %d", len(localKey))
		}
		copy(n[:], localKey)
		out = append(out, n)
		return nil
	})
	return out, err
}

// --- deferred_transactions ------------------------------------------------

func (s *Store) GetDeferredTransactions(key consensustx.DeferralKey) ([]consensustx.SequencedConsensusTransaction, bool, error) {
	var out []consensustx.SequencedConsensusTransaction
	ok, err := s.get(tableDeferredTransactions, key.Bytes(), &out)
	return out, ok, err
}

func (b *Batch) PutDeferredTransactions(key consensustx.DeferralKey, txs []consensustx.SequencedConsensusTransaction) error {
	return b.put(tableDeferredTransactions, key.Bytes(), txs)
}

func (b *Batch) DeleteDeferredTransactions(key consensustx.DeferralKey) error {
	return b.delete(tableDeferredTransactions, key.Bytes())
}

// ListDeferredKeys enumerates every key currently in the table, used to
// rebuild the in-memory deferral store ordering after a restart.
func (s *Store) ListDeferredKeys() ([]consensustx.DeferralKey, error) {
	var out []consensustx.DeferralKey
	err := s.iterateTable(tableDeferredTransactions, func([]byte) error { return nil }, func(localKey []byte) error {
		if len(localKey) != 17 {
			return fmt.Errorf("corrupt deferral key length %d", len(localKey))
		}
		out = append(out, consensustx.DeferralKey{
			Kind:               consensustx.DeferralKind(localKey[0]),
			TargetRound:        decodeUint64(localKey[1:9]),
			DeferredFromRound:  decodeUint64(localKey[9:17]),
		})
		return nil
	})
	return out, err
}

// --- authority_capabilities_{v1,v2} ----------------------------------------

func (s *Store) GetCapabilityV1(authority ids.NodeID) (consensustx.CapabilityVote, bool, error) {
	var out consensustx.CapabilityVote
	ok, err := s.get(tableAuthorityCapabilitiesV1, authority[:], &out)
	return out, ok, err
}

func (b *Batch) PutCapabilityV1(authority ids.NodeID, c consensustx.CapabilityVote) error {
	return b.put(tableAuthorityCapabilitiesV1, authority[:], c)
}

func (s *Store) GetCapabilityV2(authority ids.NodeID) (consensustx.CapabilityVote, bool, error) {
	var out consensustx.CapabilityVote
	ok, err := s.get(tableAuthorityCapabilitiesV2, authority[:], &out)
	return out, ok, err
}

func (b *Batch) PutCapabilityV2(authority ids.NodeID, c consensustx.CapabilityVote) error {
	return b.put(tableAuthorityCapabilitiesV2, authority[:], c)
}

// --- JWK voting tables ----------------------------------------------------

func jwkKey(id consensustx.JwkID) []byte {
	return []byte(id.Issuer + "\x00" + id.KeyID)
}

func (s *Store) GetPendingJWK(id consensustx.JwkID) (consensustx.Jwk, bool, error) {
	var out consensustx.Jwk
	ok, err := s.get(tablePendingJWKs, jwkKey(id), &out)
	return out, ok, err
}

func (b *Batch) PutPendingJWK(id consensustx.JwkID, jwk consensustx.Jwk) error {
	return b.put(tablePendingJWKs, jwkKey(id), jwk)
}

func (s *Store) GetActiveJWK(id consensustx.JwkID) (ActiveJWK, bool, error) {
	var out ActiveJWK
	ok, err := s.get(tableActiveJWKs, jwkKey(id), &out)
	return out, ok, err
}

func (b *Batch) PutActiveJWK(id consensustx.JwkID, jwk consensustx.Jwk, round, epoch uint64) error {
	return b.put(tableActiveJWKs, jwkKey(id), ActiveJWK{Jwk: jwk, ActivatedAtRound: round, ActivatedAtEpoch: epoch})
}

// ActiveJWK records a JWK that has crossed quorum: the round it did
// within that epoch, and the epoch itself (eviction by
// max_age_of_jwk_in_epochs compares against ActivatedAtEpoch, spec §4.7).
type ActiveJWK struct {
	Jwk              consensustx.Jwk
	ActivatedAtRound uint64
	ActivatedAtEpoch uint64
}

func voteKey(id consensustx.JwkID, authority ids.NodeID) []byte {
	return append(jwkKey(id), authority[:]...)
}

func (s *Store) HasJWKVote(id consensustx.JwkID, authority ids.NodeID) (bool, error) {
	return s.has(tableJWKAggregatorVotes, voteKey(id, authority))
}

func (b *Batch) PutJWKVote(id consensustx.JwkID, authority ids.NodeID) error {
	return b.putRaw(tableJWKAggregatorVotes, voteKey(id, authority), []byte{1})
}

func (b *Batch) DeleteActiveJWK(id consensustx.JwkID) error {
	return b.delete(tableActiveJWKs, jwkKey(id))
}

// parseJwkKey recovers a JwkID from the issuer\x00keyID encoding jwkKey
// produces. Panics on a corrupt key since that can only mean on-disk
// corruption, not caller error.
func parseJwkKey(raw []byte) consensustx.JwkID {
	i := bytes.IndexByte(raw, 0)
	if i < 0 {
		panic(fmt.Sprintf("corrupt jwk key %q: missing NUL separator", raw))
	}
	return consensustx.JwkID{Issuer: string(raw[:i]), KeyID: string(raw[i+1:])}
}

// JWKVote pairs a JwkID with the authority that voted for it, recovered
// from a scan of the votes table.
type JWKVote struct {
	ID        consensustx.JwkID
	Authority ids.NodeID
}

// ListJWKVotes enumerates every (jwk id, authority) vote on file, used to
// rebuild the in-memory aggregator's vote counts after a restart.
func (s *Store) ListJWKVotes() ([]JWKVote, error) {
	var out []JWKVote
	err := s.iterateTable(tableJWKAggregatorVotes, func([]byte) error { return nil }, func(localKey []byte) error {
		var n ids.NodeID
		if len(localKey) <= len(n) {
			return fmt.Errorf("corrupt jwk vote key length %d", len(localKey))
		}
		idBytes := localKey[:len(localKey)-len(n)]
		copy(n[:], localKey[len(localKey)-len(n):])
		out = append(out, JWKVote{ID: parseJwkKey(idBytes), Authority: n})
		return nil
	})
	return out, err
}

// ActiveJWKEntry pairs a JwkID with its ActiveJWK record, recovered from
// a scan of the active_jwks table.
type ActiveJWKEntry struct {
	ID     consensustx.JwkID
	Record ActiveJWK
}

// ListActiveJWKs enumerates every currently active JWK, used both to
// rebuild in-memory state after a restart and to evaluate eviction by
// age at epoch boundaries.
func (s *Store) ListActiveJWKs() ([]ActiveJWKEntry, error) {
	var out []ActiveJWKEntry
	var cur ActiveJWK
	err := s.iterateTable(tableActiveJWKs, func(raw []byte) error {
		return decodeValue(raw, &cur)
	}, func(localKey []byte) error {
		out = append(out, ActiveJWKEntry{ID: parseJwkKey(localKey), Record: cur})
		return nil
	})
	return out, err
}

// --- DKG state --------------------------------------------------------------

func (s *Store) GetDKGProcessedMessage(authority ids.NodeID) (consensustx.DKGMessage, bool, error) {
	var out consensustx.DKGMessage
	ok, err := s.get(tableDKGProcessedMessages, authority[:], &out)
	return out, ok, err
}

func (b *Batch) PutDKGProcessedMessage(authority ids.NodeID, msg consensustx.DKGMessage) error {
	return b.put(tableDKGProcessedMessages, authority[:], msg)
}

func (s *Store) IsDKGMessageUsed(authority ids.NodeID) (bool, error) {
	return s.has(tableDKGUsedMessages, authority[:])
}

func (b *Batch) MarkDKGMessageUsed(authority ids.NodeID) error {
	return b.putRaw(tableDKGUsedMessages, authority[:], []byte{1})
}

func (s *Store) GetDKGConfirmation(authority ids.NodeID) (consensustx.DKGConfirmation, bool, error) {
	var out consensustx.DKGConfirmation
	ok, err := s.get(tableDKGConfirmations, authority[:], &out)
	return out, ok, err
}

func (b *Batch) PutDKGConfirmation(authority ids.NodeID, conf consensustx.DKGConfirmation) error {
	return b.put(tableDKGConfirmations, authority[:], conf)
}

func (s *Store) GetDKGOutput() ([]byte, bool, error) {
	var out []byte
	ok, err := s.get(tableDKGOutput, singletonKey, &out)
	return out, ok, err
}

func (b *Batch) PutDKGOutput(output []byte) error {
	return b.put(tableDKGOutput, singletonKey, output)
}

// ListDKGProcessedAuthorities enumerates the authorities with a recorded
// DKG message, used to rebuild the in-memory quorum count after a restart.
func (s *Store) ListDKGProcessedAuthorities() ([]ids.NodeID, error) {
	var out []ids.NodeID
	err := s.iterateTable(tableDKGProcessedMessages, func([]byte) error { return nil }, func(localKey []byte) error {
		var n ids.NodeID
		if len(localKey) != len(n) {
			return fmt.Errorf("corrupt dkg_processed_messages key length %d", len(localKey))
		}
		copy(n[:], localKey)
		out = append(out, n)
		return nil
	})
	return out, err
}

// ListDKGConfirmedAuthorities enumerates the authorities with a recorded
// DKG confirmation.
func (s *Store) ListDKGConfirmedAuthorities() ([]ids.NodeID, error) {
	var out []ids.NodeID
	err := s.iterateTable(tableDKGConfirmations, func([]byte) error { return nil }, func(localKey []byte) error {
		var n ids.NodeID
		if len(localKey) != len(n) {
			return fmt.Errorf("corrupt dkg_confirmations key length %d", len(localKey))
		}
		copy(n[:], localKey)
		out = append(out, n)
		return nil
	})
	return out, err
}

// --- randomness rounds -------------------------------------------------------

func (s *Store) GetRandomnessNextRound() (uint64, bool, error) {
	raw, err := s.db.Get(s.key(tableRandomnessNextRound, singletonKey))
	if err != nil {
		if isNotFound(err) {
			return 0, false, nil
		}
		return 0, false, consensustx.NewStorageError("get/"+tableRandomnessNextRound, err)
	}
	return decodeUint64(raw), true, nil
}

func (b *Batch) PutRandomnessNextRound(round uint64) error {
	return b.putRaw(tableRandomnessNextRound, singletonKey, encodeUint64(round))
}

func (s *Store) GetRandomnessHighestCompletedRound() (uint64, bool, error) {
	raw, err := s.db.Get(s.key(tableRandomnessHighestCompletedRound, singletonKey))
	if err != nil {
		if isNotFound(err) {
			return 0, false, nil
		}
		return 0, false, consensustx.NewStorageError("get/"+tableRandomnessHighestCompletedRound, err)
	}
	return decodeUint64(raw), true, nil
}

func (b *Batch) PutRandomnessHighestCompletedRound(round uint64) error {
	return b.putRaw(tableRandomnessHighestCompletedRound, singletonKey, encodeUint64(round))
}

func (s *Store) GetRandomnessLastRoundTimestamp() (uint64, bool, error) {
	raw, err := s.db.Get(s.key(tableRandomnessLastRoundTimestamp, singletonKey))
	if err != nil {
		if isNotFound(err) {
			return 0, false, nil
		}
		return 0, false, consensustx.NewStorageError("get/"+tableRandomnessLastRoundTimestamp, err)
	}
	return decodeUint64(raw), true, nil
}

func (b *Batch) PutRandomnessLastRoundTimestamp(ts uint64) error {
	return b.putRaw(tableRandomnessLastRoundTimestamp, singletonKey, encodeUint64(ts))
}

// --- pending checkpoints ------------------------------------------------------

func (s *Store) GetPendingCheckpoint(height uint64) (consensustx.PendingCheckpoint, bool, error) {
	var out consensustx.PendingCheckpoint
	ok, err := s.get(tablePendingCheckpoints, encodeUint64(height), &out)
	return out, ok, err
}

func (b *Batch) PutPendingCheckpoint(cp consensustx.PendingCheckpoint) error {
	return b.put(tablePendingCheckpoints, encodeUint64(cp.Height), cp)
}

func (s *Store) ListPendingCheckpoints(sinceHeight uint64) ([]consensustx.PendingCheckpoint, error) {
	var out []consensustx.PendingCheckpoint
	var cur consensustx.PendingCheckpoint
	err := s.iterateTable(tablePendingCheckpoints,
		func(raw []byte) error { return decodeValue(raw, &cur) },
		func([]byte) error {
			if cur.Height >= sinceHeight {
				out = append(out, cur)
			}
			return nil
		})
	return out, err
}

func (b *Batch) PutConstructedCheckpoint(cc consensustx.ConstructedCheckpoint) error {
	return b.put(tableBuilderCheckpointSummary, encodeUint64(cc.SequenceNumber), cc)
}

func (s *Store) GetConstructedCheckpoint(seq uint64) (consensustx.ConstructedCheckpoint, bool, error) {
	var out consensustx.ConstructedCheckpoint
	ok, err := s.get(tableBuilderCheckpointSummary, encodeUint64(seq), &out)
	return out, ok, err
}

// --- congestion debts ----------------------------------------------------------

func (s *Store) GetCongestionObjectDebts(randomness bool) (map[consensustx.OID]uint64, error) {
	table := tableCongestionControlObjectDebts
	if randomness {
		table = tableCongestionControlRandomnessObjectDebts
	}
	var out map[consensustx.OID]uint64
	_, err := s.get(table, singletonKey, &out)
	if out == nil {
		out = make(map[consensustx.OID]uint64)
	}
	return out, err
}

func (b *Batch) PutCongestionObjectDebts(randomness bool, debts map[consensustx.OID]uint64) error {
	table := tableCongestionControlObjectDebts
	if randomness {
		table = tableCongestionControlRandomnessObjectDebts
	}
	return b.put(table, singletonKey, debts)
}

// --- protocol-upgrade buffer-stake override -----------------------------------

func (s *Store) GetOverrideProtocolUpgradeBufferStake() (uint64, bool, error) {
	var out uint64
	ok, err := s.get(tableOverrideProtocolUpgradeBufferStake, singletonKey, &out)
	return out, ok, err
}

func (b *Batch) PutOverrideProtocolUpgradeBufferStake(bps uint64) error {
	return b.put(tableOverrideProtocolUpgradeBufferStake, singletonKey, bps)
}
