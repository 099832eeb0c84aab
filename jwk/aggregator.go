// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package jwk

import (
	"sync"

	"github.com/luxfi/consensus-core/consensustx"
	"github.com/luxfi/consensus-core/epochstore"
	"github.com/luxfi/consensus-core/quarantine"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
)

// Verifier is the runtime signature verifier a newly activated JWK is
// inserted into (spec §4.7: "the JWK pair becomes active ... and is
// inserted into the runtime signature verifier").
type Verifier interface {
	InsertJWK(id consensustx.JwkID, jwk consensustx.Jwk)
}

// Aggregator is the per-epoch stake-weighted JWK vote tally (C7).
type Aggregator struct {
	store                   *epochstore.Store
	weights                 consensustx.WeightTable
	maxVotesPerValidator    uint64
	verifier                Verifier
	logger                  log.Logger

	mu         sync.Mutex
	voteCounts map[ids.NodeID]uint64
	voters     map[consensustx.JwkID]map[ids.NodeID]struct{}
	active     map[consensustx.JwkID]epochstore.ActiveJWK
}

// NewAggregator reloads vote tallies and active-key state from the
// durable tables, so a restart mid-epoch does not reset quorum progress
// or let a validator recast past its per-epoch vote cap.
func NewAggregator(store *epochstore.Store, weights consensustx.WeightTable, maxVotesPerValidator uint64, verifier Verifier, logger log.Logger) (*Aggregator, error) {
	a := &Aggregator{
		store:                store,
		weights:              weights,
		maxVotesPerValidator: maxVotesPerValidator,
		verifier:             verifier,
		logger:               logger,
		voteCounts:           make(map[ids.NodeID]uint64),
		voters:               make(map[consensustx.JwkID]map[ids.NodeID]struct{}),
		active:               make(map[consensustx.JwkID]epochstore.ActiveJWK),
	}

	votes, err := store.ListJWKVotes()
	if err != nil {
		return nil, err
	}
	for _, v := range votes {
		a.voteCounts[v.Authority]++
		set, ok := a.voters[v.ID]
		if !ok {
			set = make(map[ids.NodeID]struct{})
			a.voters[v.ID] = set
		}
		set[v.Authority] = struct{}{}
	}

	actives, err := store.ListActiveJWKs()
	if err != nil {
		return nil, err
	}
	for _, e := range actives {
		a.active[e.ID] = e.Record
	}
	return a, nil
}

func membersOf(set map[ids.NodeID]struct{}) []ids.NodeID {
	out := make([]ids.NodeID, 0, len(set))
	for m := range set {
		out = append(out, m)
	}
	return out
}

// RecordVote records one authority's vote for a (issuer, key) pair
// (spec §4.7 record_vote), staging the resulting writes into cco rather
// than the durable store directly (spec §4.2: C2 exclusively owns
// unpromoted CCOs). Oversize votes and votes past an authority's
// per-epoch cap are dropped with a logged warning, never an error:
// consensus messages from a byzantine or misconfigured authority must
// not stall the rest of the commit.
func (a *Aggregator) RecordVote(cco *quarantine.CCO, round uint64, authority ids.NodeID, id consensustx.JwkID, val consensustx.Jwk, sizeBytes, maxSizeBytes int) (activated bool, err error) {
	if sizeBytes > maxSizeBytes {
		a.logger.Warn("dropping oversize jwk vote",
			log.String("issuer", id.Issuer),
			log.String("keyID", id.KeyID),
		)
		return false, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.voteCounts[authority] >= a.maxVotesPerValidator {
		a.logger.Warn("dropping jwk vote past per-validator cap", log.Stringer("authority", authority))
		return false, nil
	}
	if _, ok := a.active[id]; ok {
		return false, nil
	}
	set, ok := a.voters[id]
	if !ok {
		set = make(map[ids.NodeID]struct{})
		a.voters[id] = set
	}
	if _, ok := set[authority]; ok {
		return false, nil
	}

	cco.RecordJWKVote(id, val, authority)
	set[authority] = struct{}{}
	a.voteCounts[authority]++

	if !consensustx.HasQuorum(a.weights, membersOf(set)) {
		return false, nil
	}

	cco.ActivateJWK(id, val, round, a.store.Epoch())
	record := epochstore.ActiveJWK{Jwk: val, ActivatedAtRound: round, ActivatedAtEpoch: a.store.Epoch()}
	a.active[id] = record
	if a.verifier != nil {
		a.verifier.InsertJWK(id, val)
	}
	return true, nil
}

// IsActive reports whether id has already crossed quorum this epoch.
func (a *Aggregator) IsActive(id consensustx.JwkID) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.active[id]
	return ok
}

// EvictExpired removes every active JWK whose activation epoch is more
// than maxAgeEpochs behind currentEpoch (spec §4.7: "JWKs older than
// max_age_of_jwk_in_epochs are evicted at epoch boundaries"), staging
// the removal into cco.
func (a *Aggregator) EvictExpired(cco *quarantine.CCO, currentEpoch, maxAgeEpochs uint64) []consensustx.JwkID {
	a.mu.Lock()
	defer a.mu.Unlock()

	var evicted []consensustx.JwkID
	for id, record := range a.active {
		if currentEpoch < record.ActivatedAtEpoch || currentEpoch-record.ActivatedAtEpoch <= maxAgeEpochs {
			continue
		}
		cco.EvictJWK(id)
		delete(a.active, id)
		evicted = append(evicted, id)
	}
	return evicted
}
