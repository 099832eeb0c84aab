// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package quarantine

import (
	"sort"
	"sync"

	"github.com/luxfi/consensus-core/consensustx"
	"github.com/luxfi/consensus-core/epochstore"
)

// Quarantine is the in-memory staging area described in spec §4.2. It
// holds a FIFO-ordered list of not-yet-certified CCOs in front of a
// durable epochstore.Store, and answers every read by checking the
// quarantine first.
//
// Concurrency: many goroutines may call the read methods concurrently
// with each other and with Push; only one goroutine may ever call
// UpdateHighestExecutedCheckpoint at a time (the checkpoint-promotion
// path is single-threaded per epoch, matching spec §4.2's "concurrent
// readers may coexist with a single promoter").
type Quarantine struct {
	store *epochstore.Store

	mu      sync.RWMutex
	pending []*CCO

	processed      map[consensustx.CTK]struct{}
	versionOverlay map[consensustx.ConsensusObjectSequenceKey]consensustx.Version
}

// New returns an empty quarantine fronting store.
func New(store *epochstore.Store) *Quarantine {
	return &Quarantine{
		store:          store,
		processed:      make(map[consensustx.CTK]struct{}),
		versionOverlay: make(map[consensustx.ConsensusObjectSequenceKey]consensustx.Version),
	}
}

// Push appends cco as the newest not-yet-certified commit output.
// Callers must push CCOs in non-decreasing height order; promotion and
// the stacked-view overlay both assume it.
func (q *Quarantine) Push(cco *CCO) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.pending = append(q.pending, cco)
	for _, ctk := range cco.ProcessedMessages {
		q.processed[ctk] = struct{}{}
	}
	for k, v := range cco.NextSharedObjectVersions {
		q.versionOverlay[k] = v
	}
}

// IsConsensusMessageProcessed reports whether ctk has already been
// handled, consulting quarantine first and falling through to the
// durable store on a miss (spec §4.2, §9 invariant: quarantine hit
// implies store miss and vice versa).
func (q *Quarantine) IsConsensusMessageProcessed(ctk consensustx.CTK) (bool, error) {
	q.mu.RLock()
	_, hit := q.processed[ctk]
	q.mu.RUnlock()
	if hit {
		return true, nil
	}
	return q.store.IsConsensusMessageProcessed(ctk)
}

// GetNextSharedObjectVersions resolves next_version for every key, the
// quarantine overlay taking precedence over the durable store (spec
// §4.2 "stacked view").
func (q *Quarantine) GetNextSharedObjectVersions(keys []consensustx.ConsensusObjectSequenceKey) (map[consensustx.ConsensusObjectSequenceKey]consensustx.Version, error) {
	out := make(map[consensustx.ConsensusObjectSequenceKey]consensustx.Version, len(keys))

	var missing []consensustx.ConsensusObjectSequenceKey
	q.mu.RLock()
	for _, k := range keys {
		if v, ok := q.versionOverlay[k]; ok {
			out[k] = v
		} else {
			missing = append(missing, k)
		}
	}
	q.mu.RUnlock()

	for _, k := range missing {
		v, ok, err := q.store.GetNextSharedObjectVersion(k)
		if err != nil {
			return nil, err
		}
		if ok {
			out[k] = v
		}
	}
	return out, nil
}

// GetPendingCheckpoints lists every pending checkpoint with height >=
// sinceHeight, spanning both quarantine and the durable store (spec
// §4.2).
func (q *Quarantine) GetPendingCheckpoints(sinceHeight uint64) ([]consensustx.PendingCheckpoint, error) {
	out, err := q.store.ListPendingCheckpoints(sinceHeight)
	if err != nil {
		return nil, err
	}

	q.mu.RLock()
	for _, cco := range q.pending {
		for _, cp := range cco.PendingCheckpoints {
			if cp.Height >= sinceHeight {
				out = append(out, cp)
			}
		}
	}
	q.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Height < out[j].Height })
	return out, nil
}

// PendingCheckpointExists reports whether a pending checkpoint at
// exactly height already exists, in quarantine or the durable store
// (spec §4.10 invariant: duplicate emission at an existing height is
// fatal).
func (q *Quarantine) PendingCheckpointExists(height uint64) (bool, error) {
	q.mu.RLock()
	for _, cco := range q.pending {
		for _, cp := range cco.PendingCheckpoints {
			if cp.Height == height {
				q.mu.RUnlock()
				return true, nil
			}
		}
	}
	q.mu.RUnlock()

	_, ok, err := q.store.GetPendingCheckpoint(height)
	return ok, err
}

// LoadInitialObjectDebts returns the decayed starting cost for every
// shared object referenced by txs, consulting the most recently pushed
// CCO carrying a debt snapshot for the requested tracker (regular or
// randomness) before falling back to the durable store (spec §4.2, §4.4
// "initially seeded from per-object decayed debts"). decayAmount is
// subtracted from each object's recorded debt, floored at zero; the
// commit handler (C9) supplies it from protocol config so this package
// stays free of a config dependency.
func (q *Quarantine) LoadInitialObjectDebts(isRandomness bool, txs []consensustx.SequencedConsensusTransaction, decayAmount uint64) (map[consensustx.OID]uint64, error) {
	debts, err := q.latestObjectDebts(isRandomness)
	if err != nil {
		return nil, err
	}

	out := make(map[consensustx.OID]uint64)
	for _, tx := range txs {
		if tx.UserCert == nil {
			continue
		}
		for _, si := range tx.UserCert.SharedInputs {
			if _, seen := out[si.Object]; seen {
				continue
			}
			debt := debts[si.Object]
			if debt > decayAmount {
				out[si.Object] = debt - decayAmount
			} else {
				out[si.Object] = 0
			}
		}
	}
	return out, nil
}

func (q *Quarantine) latestObjectDebts(isRandomness bool) (map[consensustx.OID]uint64, error) {
	q.mu.RLock()
	for i := len(q.pending) - 1; i >= 0; i-- {
		cco := q.pending[i]
		d := cco.ObjectDebts
		if isRandomness {
			d = cco.RandomnessObjectDebts
		}
		if d != nil {
			q.mu.RUnlock()
			return d, nil
		}
	}
	q.mu.RUnlock()
	return q.store.GetCongestionObjectDebts(isRandomness)
}

// UpdateHighestExecutedCheckpoint promotes every CCO with height <= seq
// into batch, in FIFO order, then drops them from quarantine. The
// caller is responsible for writing batch; promotion here only stages
// the writes and updates in-memory bookkeeping, matching spec §4.2's
// "caller writes the batch" contract.
func (q *Quarantine) UpdateHighestExecutedCheckpoint(seq uint64, batch *epochstore.Batch) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	var kept []*CCO
	var lastStats *consensustx.LastConsensusStats
	var lastDebts, lastRandDebts map[consensustx.OID]uint64

	for _, cco := range q.pending {
		if cco.Height > seq {
			kept = append(kept, cco)
			continue
		}

		for _, ctk := range cco.ProcessedMessages {
			if err := batch.MarkConsensusMessageProcessed(ctk); err != nil {
				return err
			}
		}
		for k, v := range cco.NextSharedObjectVersions {
			if err := batch.PutNextSharedObjectVersion(k, v); err != nil {
				return err
			}
		}
		for _, cp := range cco.PendingCheckpoints {
			if err := batch.PutPendingCheckpoint(cp); err != nil {
				return err
			}
		}
		for _, cc := range cco.ConstructedCheckpoints {
			if err := batch.PutConstructedCheckpoint(cc); err != nil {
				return err
			}
		}
		if cco.statsSet {
			stats := cco.LastConsensusStats
			lastStats = &stats
		}
		if cco.ObjectDebts != nil {
			lastDebts = cco.ObjectDebts
		}
		if cco.RandomnessObjectDebts != nil {
			lastRandDebts = cco.RandomnessObjectDebts
		}

		for _, v := range cco.JWKVotesCast {
			if err := batch.PutPendingJWK(v.ID, v.Val); err != nil {
				return err
			}
			if err := batch.PutJWKVote(v.ID, v.Authority); err != nil {
				return err
			}
		}
		for _, a := range cco.JWKActivations {
			if err := batch.PutActiveJWK(a.ID, a.Val, a.Round, a.Epoch); err != nil {
				return err
			}
		}
		for _, id := range cco.JWKEvictions {
			if err := batch.DeleteActiveJWK(id); err != nil {
				return err
			}
		}

		for _, authority := range cco.EndOfPublishAuthorities {
			if err := batch.PutEndOfPublish(authority); err != nil {
				return err
			}
		}
		if cco.ReconfigState != nil {
			if err := batch.PutReconfigState(*cco.ReconfigState); err != nil {
				return err
			}
		}

		if cco.RandomnessNextRound != nil {
			if err := batch.PutRandomnessNextRound(*cco.RandomnessNextRound); err != nil {
				return err
			}
		}
		if cco.RandomnessLastRoundTimestampMs != nil {
			if err := batch.PutRandomnessLastRoundTimestamp(*cco.RandomnessLastRoundTimestampMs); err != nil {
				return err
			}
		}
		if cco.RandomnessHighestCompletedRound != nil {
			if err := batch.PutRandomnessHighestCompletedRound(*cco.RandomnessHighestCompletedRound); err != nil {
				return err
			}
		}
		for _, m := range cco.DKGProcessedMessages {
			if err := batch.PutDKGProcessedMessage(m.Authority, m.Msg); err != nil {
				return err
			}
		}
		for _, cf := range cco.DKGConfirmations {
			if err := batch.PutDKGConfirmation(cf.Authority, cf.Conf); err != nil {
				return err
			}
		}
		if cco.dkgOutputSet {
			if err := batch.PutDKGOutput(cco.DKGOutput); err != nil {
				return err
			}
		}

		for _, op := range cco.DeferralOps {
			if op.Delete {
				if err := batch.DeleteDeferredTransactions(op.Key); err != nil {
					return err
				}
				continue
			}
			if err := batch.PutDeferredTransactions(op.Key, op.Txs); err != nil {
				return err
			}
		}
	}

	if lastStats != nil {
		if err := batch.PutLastConsensusStats(*lastStats); err != nil {
			return err
		}
	}
	if lastDebts != nil {
		if err := batch.PutCongestionObjectDebts(false, lastDebts); err != nil {
			return err
		}
	}
	if lastRandDebts != nil {
		if err := batch.PutCongestionObjectDebts(true, lastRandDebts); err != nil {
			return err
		}
	}

	q.pending = kept
	q.rebuildIndicesLocked()
	return nil
}

func (q *Quarantine) rebuildIndicesLocked() {
	processed := make(map[consensustx.CTK]struct{})
	overlay := make(map[consensustx.ConsensusObjectSequenceKey]consensustx.Version)
	for _, cco := range q.pending {
		for _, ctk := range cco.ProcessedMessages {
			processed[ctk] = struct{}{}
		}
		for k, v := range cco.NextSharedObjectVersions {
			overlay[k] = v
		}
	}
	q.processed = processed
	q.versionOverlay = overlay
}

// Len reports the number of CCOs currently quarantined, for metrics and
// tests.
func (q *Quarantine) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.pending)
}
