// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package deferral

import (
	"sort"
	"sync"

	"github.com/luxfi/consensus-core/consensustx"
	"github.com/luxfi/consensus-core/epochstore"
	"github.com/luxfi/consensus-core/quarantine"
	"golang.org/x/exp/maps"
)

// Store is the in-memory deferral table whose mutations are staged onto
// a quarantine.CCO (spec §4.5).
type Store struct {
	mu      sync.Mutex
	store   *epochstore.Store
	pending map[consensustx.DeferralKey][]consensustx.SequencedConsensusTransaction
}

// New loads the full deferral table from store into memory. Called once
// at epoch start (or after a crash-restart), so every subsequent range
// query and insert operates purely in memory until committed.
func New(store *epochstore.Store) (*Store, error) {
	keys, err := store.ListDeferredKeys()
	if err != nil {
		return nil, err
	}

	pending := make(map[consensustx.DeferralKey][]consensustx.SequencedConsensusTransaction, len(keys))
	for _, k := range keys {
		txs, ok, err := store.GetDeferredTransactions(k)
		if err != nil {
			return nil, err
		}
		if ok {
			pending[k] = txs
		}
	}
	return &Store{store: store, pending: pending}, nil
}

// Insert appends txs to the list held at key, staging the merged write
// into cco rather than the durable store directly (spec §4.2: C2
// exclusively owns unpromoted CCOs; spec §4.5 "insert(key, txs) —
// append").
func (s *Store) Insert(cco *quarantine.CCO, key consensustx.DeferralKey, txs []consensustx.SequencedConsensusTransaction) {
	if len(txs) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	merged := append(append([]consensustx.SequencedConsensusTransaction{}, s.pending[key]...), txs...)
	cco.InsertDeferral(key, merged)
	s.pending[key] = merged
}

// LoadRange pops every entry whose key falls in [min, max) (per
// DeferralKey.Compare), staging their deletion into cco, and returns the
// union of their transactions in ascending key order (spec §4.5
// "load_range(min, max) — pop all entries ... and return them").
func (s *Store) LoadRange(cco *quarantine.CCO, min, max consensustx.DeferralKey) []consensustx.SequencedConsensusTransaction {
	s.mu.Lock()
	defer s.mu.Unlock()

	var keys []consensustx.DeferralKey
	for _, k := range maps.Keys(s.pending) {
		if !k.Less(min) && k.Less(max) {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })

	var out []consensustx.SequencedConsensusTransaction
	for _, k := range keys {
		out = append(out, s.pending[k]...)
		cco.DeleteDeferral(k)
		delete(s.pending, k)
	}
	return out
}

// LoadReady pops every consensus-round-deferred entry ready at
// currentRound, plus every randomness-blocked entry when
// includeRandomness is set (spec §4.9 step 2: "iff DKG is
// Successful-and-we're-generating OR DKG is Failed").
func (s *Store) LoadReady(cco *quarantine.CCO, currentRound uint64, includeRandomness bool) []consensustx.SequencedConsensusTransaction {
	min, max := consensustx.ConsensusRoundRangeBounds(currentRound)
	out := s.LoadRange(cco, min, max)

	if includeRandomness {
		rmin, rmax := consensustx.RandomnessRangeBounds()
		out = append(out, s.LoadRange(cco, rmin, rmax)...)
	}
	return out
}

// DeferOrCancel decides whether a transaction first deferred at
// originallyDeferredRound may be re-deferred to targetRound as of
// currentRound, or must instead be cancelled because it has exhausted
// its deferral budget (spec §4.5, §8 property 5).
func DeferOrCancel(currentRound, originallyDeferredRound, targetRound, maxDeferralRounds uint64) (key consensustx.DeferralKey, cancelled bool) {
	if currentRound-originallyDeferredRound >= maxDeferralRounds {
		return consensustx.DeferralKey{}, true
	}
	return consensustx.NewConsensusRoundDeferralKey(targetRound, originallyDeferredRound), false
}

// Entry describes one key's current backlog, for introspection and
// metrics (not part of the spec's operation list, but a natural
// read-only extension of an otherwise write-opaque structure).
type Entry struct {
	Key   consensustx.DeferralKey
	Count int
}

// Snapshot returns every currently-held key and its backlog size,
// ordered ascending.
func (s *Store) Snapshot() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := maps.Keys(s.pending)
	out := make([]Entry, 0, len(keys))
	for _, k := range keys {
		out = append(out, Entry{Key: k, Count: len(s.pending[k])})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.Less(out[j].Key) })
	return out
}
