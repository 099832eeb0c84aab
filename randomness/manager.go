// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package randomness

import (
	"fmt"
	"sync"

	"github.com/luxfi/consensus-core/consensustx"
	"github.com/luxfi/consensus-core/epochstore"
	"github.com/luxfi/consensus-core/quarantine"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
)

// State is the DKG progress state (spec §4.6: Pending -> Successful or
// Pending -> Failed, with an internal Confirming substate once this
// authority has observed a quorum of processed messages).
type State uint8

const (
	Pending State = iota
	Confirming
	Successful
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Confirming:
		return "confirming"
	case Successful:
		return "successful"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Finalizer computes the DKG output once a quorum of confirmations has
// been observed. Left external to this core: the actual threshold
// cryptography is out of scope (spec Non-goals), so the manager only
// owns the state machine around it.
type Finalizer func(confirmedAuthorities []ids.NodeID) ([]byte, error)

// Generator kicks off the off-band randomness generation protocol for a
// round this authority just reserved, invoked by the caller once the
// consensus commit that reserved the round has been durably persisted
// (spec §4.6: "generate_randomness is invoked *after* the consensus
// commit is persisted").
type Generator interface {
	GenerateRandomness(epoch uint64, round uint64)
}

// Manager tracks DKG progress and randomness-round reservation for one
// epoch (C6).
type Manager struct {
	store        *epochstore.Store
	weights      consensustx.WeightTable
	timeoutRound uint64
	logger       log.Logger

	mu                   sync.Mutex
	state                State
	processedAuthorities map[ids.NodeID]struct{}
	confirmedAuthorities map[ids.NodeID]struct{}
	nextRound            uint64 // in-memory cache of randomness_next_round; authoritative across commits within this process so a not-yet-promoted reservation is never handed out twice
}

// NewManager reloads DKG progress from the durable tables: Successful if
// a dkg_output is already on file, otherwise Confirming or Pending
// depending on whether any confirmations were recorded before a restart.
func NewManager(store *epochstore.Store, weights consensustx.WeightTable, timeoutRound uint64, logger log.Logger) (*Manager, error) {
	m := &Manager{
		store:                store,
		weights:              weights,
		timeoutRound:         timeoutRound,
		logger:               logger,
		processedAuthorities: make(map[ids.NodeID]struct{}),
		confirmedAuthorities: make(map[ids.NodeID]struct{}),
	}

	if next, ok, err := store.GetRandomnessNextRound(); err != nil {
		return nil, err
	} else if ok {
		m.nextRound = next
	}

	if _, ok, err := store.GetDKGOutput(); err != nil {
		return nil, err
	} else if ok {
		m.state = Successful
		return m, nil
	}

	processed, err := store.ListDKGProcessedAuthorities()
	if err != nil {
		return nil, err
	}
	for _, a := range processed {
		m.processedAuthorities[a] = struct{}{}
	}

	confirmed, err := store.ListDKGConfirmedAuthorities()
	if err != nil {
		return nil, err
	}
	for _, a := range confirmed {
		m.confirmedAuthorities[a] = struct{}{}
	}
	if len(confirmed) > 0 {
		m.state = Confirming
	}
	return m, nil
}

// State reports the manager's current DKG state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func memberList(set map[ids.NodeID]struct{}) []ids.NodeID {
	out := make([]ids.NodeID, 0, len(set))
	for a := range set {
		out = append(out, a)
	}
	return out
}

// AddMessage records one authority's DKG message (spec §4.6 add_message),
// staging the write into cco rather than the durable store directly
// (spec §4.2: C2 exclusively owns unpromoted CCOs). It is a no-op once
// the DKG has left Pending. The returned bool reports whether this call
// just crossed quorum, meaning the caller should now broadcast this
// authority's own DKGConfirmation.
func (m *Manager) AddMessage(cco *quarantine.CCO, msg consensustx.DKGMessage) (crossedQuorum bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != Pending {
		return false
	}
	if _, ok := m.processedAuthorities[msg.Authority]; ok {
		return false
	}
	cco.RecordDKGMessage(msg.Authority, msg)
	m.processedAuthorities[msg.Authority] = struct{}{}

	if !consensustx.HasQuorum(m.weights, memberList(m.processedAuthorities)) {
		return false
	}
	m.state = Confirming
	return true
}

// AddConfirmation records one authority's confirmation of the DKG output
// (spec §4.6 add_confirmation), staging the write into cco. Once a
// quorum of confirmations has been observed, finalize is invoked to
// compute the output and the manager transitions to Successful.
func (m *Manager) AddConfirmation(cco *quarantine.CCO, conf consensustx.DKGConfirmation, finalize Finalizer) (successful bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == Successful || m.state == Failed {
		return false, nil
	}
	if _, ok := m.confirmedAuthorities[conf.Authority]; ok {
		return false, nil
	}
	cco.RecordDKGConfirmation(conf.Authority, conf)
	m.confirmedAuthorities[conf.Authority] = struct{}{}
	if m.state == Pending {
		m.state = Confirming
	}

	if !consensustx.HasQuorum(m.weights, memberList(m.confirmedAuthorities)) {
		return false, nil
	}

	output, err := finalize(memberList(m.confirmedAuthorities))
	if err != nil {
		return false, err
	}
	cco.SetDKGOutput(output)
	m.state = Successful
	return true, nil
}

// AdvanceDKG is called once per commit after processing this commit's
// DKG-bearing messages (spec §4.6 advance_dkg). If the DKG has not
// reached Successful by random_beacon_dkg_timeout_round, it transitions
// to Failed. Returns whether this call just made that transition.
func (m *Manager) AdvanceDKG(round uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == Successful || m.state == Failed {
		return false
	}
	if round >= m.timeoutRound {
		m.state = Failed
		return true
	}
	return false
}

// ReadyToReserve reports whether a randomness round may be reserved this
// commit: randomness must be enabled, the epoch must still be accepting
// user certificates, and the DKG must have succeeded.
func (m *Manager) ReadyToReserve(acceptingUserCerts, randomnessEnabled bool) bool {
	return randomnessEnabled && acceptingUserCerts && m.State() == Successful
}

// ReserveNextRandomness allocates the next randomness round (spec §4.6
// reserve_next_randomness), staging the counter advance and timestamp
// into cco rather than the durable store directly (spec §4.2: C2
// exclusively owns unpromoted CCOs). randomness_next_round holds the
// counter value that will be handed out on the *next* call; the round
// returned here is the previous counter value. An unseeded counter
// starts at 1, not 0, so the first round ever reserved is round 1 (spec
// §3 S3).
func (m *Manager) ReserveNextRandomness(cco *quarantine.CCO, timestampMs uint64) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != Successful {
		consensustx.Fatal(m.logger, fmt.Errorf("reserve_next_randomness called while DKG is %s, not successful", m.state))
	}

	next := m.nextRound
	if next == 0 {
		next = 1
	}
	cco.ReserveRandomnessRound(next+1, timestampMs)
	m.nextRound = next + 1
	return next
}

// MarkRoundCompleted records that a previously reserved randomness round
// finished generation, advancing randomness_highest_completed_round,
// staged into cco.
func (m *Manager) MarkRoundCompleted(cco *quarantine.CCO, round uint64) {
	cco.MarkRandomnessRoundCompleted(round)
}
