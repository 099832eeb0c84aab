// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package reconfig

import (
	"sync"

	"github.com/luxfi/consensus-core/consensustx"
	"github.com/luxfi/consensus-core/epochstore"
	"github.com/luxfi/consensus-core/quarantine"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
)

// State is one of the four strictly-ordered reconfiguration states
// (spec §4.8).
type State uint8

const (
	AcceptAllTx State = iota
	RejectNewCerts
	RejectAllCerts
	RejectAllTx
)

func (s State) String() string {
	switch s {
	case AcceptAllTx:
		return "accept_all_tx"
	case RejectNewCerts:
		return "reject_new_certs"
	case RejectAllCerts:
		return "reject_all_certs"
	case RejectAllTx:
		return "reject_all_tx"
	default:
		return "unknown"
	}
}

// StateMachine tracks the epoch's progress toward close (C8).
type StateMachine struct {
	store   *epochstore.Store
	weights consensustx.WeightTable
	logger  log.Logger

	mu           sync.Mutex
	state        State
	endOfPublish map[ids.NodeID]struct{}
}

// New reloads reconfiguration state from the durable tables.
func New(store *epochstore.Store, weights consensustx.WeightTable, logger log.Logger) (*StateMachine, error) {
	m := &StateMachine{
		store:        store,
		weights:      weights,
		logger:       logger,
		endOfPublish: make(map[ids.NodeID]struct{}),
	}

	if raw, ok, err := store.GetReconfigState(); err != nil {
		return nil, err
	} else if ok {
		m.state = State(raw)
	}

	authorities, err := store.ListEndOfPublish()
	if err != nil {
		return nil, err
	}
	for _, a := range authorities {
		m.endOfPublish[a] = struct{}{}
	}
	return m, nil
}

// State reports the current reconfiguration state.
func (m *StateMachine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// AcceptsNewUserCerts reports whether a brand-new user certificate may
// still be submitted (spec §4.8: "Attempting to accept a new user
// certificate while in RejectNewCerts+ states silently ignores it").
func (m *StateMachine) AcceptsNewUserCerts() bool {
	return m.State() < RejectNewCerts
}

// AcceptsConsensusCerts reports whether system messages (capability
// votes, JWK votes, DKG messages, EndOfPublish) are still applied
// in-place rather than dropped (spec §4.9 step 6).
func (m *StateMachine) AcceptsConsensusCerts() bool {
	return m.State() < RejectAllCerts
}

// AcceptsAnyTx reports whether the epoch still accepts processing any
// transaction at all, including previously-deferred ones.
func (m *StateMachine) AcceptsAnyTx() bool {
	return m.State() < RejectAllTx
}

// SeenEndOfPublish reports whether authority's EndOfPublish has already
// been recorded this epoch (spec §4.9 step 6: a not-previously-deferred
// user tx from an authority that has already published EndOfPublish is
// byzantine and must be dropped).
func (m *StateMachine) SeenEndOfPublish(authority ids.NodeID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.endOfPublish[authority]
	return ok
}

func membersOf(set map[ids.NodeID]struct{}) []ids.NodeID {
	out := make([]ids.NodeID, 0, len(set))
	for m := range set {
		out = append(out, m)
	}
	return out
}

// CloseUserCerts transitions AcceptAllTx -> RejectNewCerts, staging the
// state write into cco rather than the durable store directly (spec
// §4.2: C2 exclusively owns unpromoted CCOs). This is an external
// trigger, not something the per-commit algorithm decides on its own:
// it is invoked once the surrounding validator process decides to stop
// submitting new user certificates for this epoch (e.g. a
// protocol-upgrade buffer-stake threshold being crossed). A no-op once
// already past AcceptAllTx.
func (m *StateMachine) CloseUserCerts(cco *quarantine.CCO) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != AcceptAllTx {
		return
	}
	m.state = RejectNewCerts
	cco.SetReconfigState(uint8(m.state))
}

// RecordEndOfPublish processes one authority's EndOfPublish message
// (spec §4.8, §4.9 step 6), staging its writes into cco. EndOfPublish
// messages observed once the epoch has already stopped accepting
// consensus certs are ignored, mirroring the original system's "already
// collected enough end_of_publish messages" debug path. Returns whether
// this call just crossed quorum and advanced the state to
// RejectAllCerts.
func (m *StateMachine) RecordEndOfPublish(cco *quarantine.CCO, authority ids.NodeID) (advancedToRejectAllCerts bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state >= RejectAllCerts {
		return false
	}
	if _, ok := m.endOfPublish[authority]; ok {
		return false
	}
	cco.RecordEndOfPublish(authority)
	m.endOfPublish[authority] = struct{}{}

	if !consensustx.HasQuorum(m.weights, membersOf(m.endOfPublish)) {
		return false
	}
	m.state = RejectAllCerts
	cco.SetReconfigState(uint8(m.state))
	return true
}

// AdvanceToRejectAllTxIfReady implements the epoch's final transition
// (spec §4.8): once in RejectAllCerts, with the deferral store empty and
// no new deferrals added this commit, advance to RejectAllTx, staging
// the write into cco. The caller marks its emitted pending checkpoint
// last_of_epoch when this returns true.
func (m *StateMachine) AdvanceToRejectAllTxIfReady(cco *quarantine.CCO, deferralStoreEmpty, addedDeferralsThisCommit bool) (finalRound bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != RejectAllCerts {
		return false
	}
	if !deferralStoreEmpty || addedDeferralsThisCommit {
		return false
	}
	m.state = RejectAllTx
	cco.SetReconfigState(uint8(m.state))
	return true
}
