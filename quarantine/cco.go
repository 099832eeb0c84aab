// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package quarantine

import (
	"github.com/luxfi/consensus-core/consensustx"
	"github.com/luxfi/ids"
)

// JWKVoteWrite stages one authority's vote for a (issuer, key) pair,
// the pairing of PutPendingJWK and PutJWKVote that RecordVote always
// performs together.
type JWKVoteWrite struct {
	ID        consensustx.JwkID
	Val       consensustx.Jwk
	Authority ids.NodeID
}

// JWKActivation stages a JWK that just crossed quorum this commit.
type JWKActivation struct {
	ID    consensustx.JwkID
	Val   consensustx.Jwk
	Round uint64
	Epoch uint64
}

// DKGMessageWrite stages one authority's processed DKG message.
type DKGMessageWrite struct {
	Authority ids.NodeID
	Msg       consensustx.DKGMessage
}

// DKGConfirmationWrite stages one authority's DKG confirmation.
type DKGConfirmationWrite struct {
	Authority ids.NodeID
	Conf      consensustx.DKGConfirmation
}

// DeferralOp stages one mutation of the durable deferral table, in the
// order it was issued: either an upsert of key's backlog or a pop.
type DeferralOp struct {
	Key    consensustx.DeferralKey
	Delete bool
	Txs    []consensustx.SequencedConsensusTransaction
}

// CCO is the full set of durable mutations produced by processing one
// consensus commit, staged in memory until a checkpoint certifies it.
// The commit handler (C9) populates one of these per commit and pushes
// it; nothing else constructs a CCO. Every collaborator that would
// otherwise write straight to the epochstore batch (JWK votes, DKG
// progress, reconfiguration state, randomness reservations, deferral
// inserts) stages its write here instead, so none of it becomes durable
// ahead of the checkpoint that certifies this commit (spec §4.2: C2
// exclusively owns unpromoted CCOs).
type CCO struct {
	Round  uint64
	Height uint64

	ProcessedMessages        []consensustx.CTK
	NextSharedObjectVersions map[consensustx.ConsensusObjectSequenceKey]consensustx.Version
	PendingCheckpoints       []consensustx.PendingCheckpoint
	ConstructedCheckpoints   []consensustx.ConstructedCheckpoint

	LastConsensusStats consensustx.LastConsensusStats
	statsSet           bool

	ObjectDebts           map[consensustx.OID]uint64
	RandomnessObjectDebts map[consensustx.OID]uint64

	JWKVotesCast   []JWKVoteWrite
	JWKActivations []JWKActivation
	JWKEvictions   []consensustx.JwkID

	EndOfPublishAuthorities []ids.NodeID

	ReconfigState *uint8

	RandomnessNextRound             *uint64
	RandomnessLastRoundTimestampMs  *uint64
	RandomnessHighestCompletedRound *uint64
	DKGProcessedMessages            []DKGMessageWrite
	DKGConfirmations                []DKGConfirmationWrite
	DKGOutput                       []byte
	dkgOutputSet                    bool

	DeferralOps []DeferralOp
}

// NewCCO starts an empty CCO for the given commit round, watermarked by
// the checkpoint height that will certify it once constructed.
func NewCCO(round, height uint64) *CCO {
	return &CCO{
		Round:                    round,
		Height:                   height,
		NextSharedObjectVersions: make(map[consensustx.ConsensusObjectSequenceKey]consensustx.Version),
	}
}

// MarkProcessed records ctk as handled by this commit.
func (c *CCO) MarkProcessed(ctk consensustx.CTK) {
	c.ProcessedMessages = append(c.ProcessedMessages, ctk)
}

// SetNextSharedObjectVersion stages the post-assignment next_version for
// an object's shared lifetime.
func (c *CCO) SetNextSharedObjectVersion(k consensustx.ConsensusObjectSequenceKey, v consensustx.Version) {
	c.NextSharedObjectVersions[k] = v
}

// AddPendingCheckpoint stages a checkpoint proposed by this commit.
func (c *CCO) AddPendingCheckpoint(cp consensustx.PendingCheckpoint) {
	c.PendingCheckpoints = append(c.PendingCheckpoints, cp)
}

// AddConstructedCheckpoint stages a checkpoint summary that has come back
// from the builder for recording alongside this commit's other output.
func (c *CCO) AddConstructedCheckpoint(cc consensustx.ConstructedCheckpoint) {
	c.ConstructedCheckpoints = append(c.ConstructedCheckpoints, cc)
}

// SetLastConsensusStats stages the commit-position bookmark.
func (c *CCO) SetLastConsensusStats(stats consensustx.LastConsensusStats) {
	c.LastConsensusStats = stats
	c.statsSet = true
}

// SetObjectDebts stages the post-commit per-object debt for the regular
// congestion tracker.
func (c *CCO) SetObjectDebts(debts map[consensustx.OID]uint64) {
	c.ObjectDebts = debts
}

// SetRandomnessObjectDebts stages the post-commit per-object debt for the
// randomness congestion tracker.
func (c *CCO) SetRandomnessObjectDebts(debts map[consensustx.OID]uint64) {
	c.RandomnessObjectDebts = debts
}

// RecordJWKVote stages one authority's vote for id (spec §4.7
// record_vote: PutPendingJWK + PutJWKVote).
func (c *CCO) RecordJWKVote(id consensustx.JwkID, val consensustx.Jwk, authority ids.NodeID) {
	c.JWKVotesCast = append(c.JWKVotesCast, JWKVoteWrite{ID: id, Val: val, Authority: authority})
}

// ActivateJWK stages a JWK that just crossed quorum this commit.
func (c *CCO) ActivateJWK(id consensustx.JwkID, val consensustx.Jwk, round, epoch uint64) {
	c.JWKActivations = append(c.JWKActivations, JWKActivation{ID: id, Val: val, Round: round, Epoch: epoch})
}

// EvictJWK stages the removal of an expired active JWK.
func (c *CCO) EvictJWK(id consensustx.JwkID) {
	c.JWKEvictions = append(c.JWKEvictions, id)
}

// RecordEndOfPublish stages one authority's EndOfPublish.
func (c *CCO) RecordEndOfPublish(authority ids.NodeID) {
	c.EndOfPublishAuthorities = append(c.EndOfPublishAuthorities, authority)
}

// SetReconfigState stages a reconfiguration-state transition. Later
// calls within the same CCO overwrite earlier ones, matching the state
// machine's own monotonic progression.
func (c *CCO) SetReconfigState(s uint8) {
	c.ReconfigState = &s
}

// ReserveRandomnessRound stages the counter advance and timestamp update
// from a randomness-round reservation.
func (c *CCO) ReserveRandomnessRound(nextRound, timestampMs uint64) {
	c.RandomnessNextRound = &nextRound
	c.RandomnessLastRoundTimestampMs = &timestampMs
}

// MarkRandomnessRoundCompleted stages the highest-completed-round advance.
func (c *CCO) MarkRandomnessRoundCompleted(round uint64) {
	c.RandomnessHighestCompletedRound = &round
}

// RecordDKGMessage stages one authority's processed DKG message.
func (c *CCO) RecordDKGMessage(authority ids.NodeID, msg consensustx.DKGMessage) {
	c.DKGProcessedMessages = append(c.DKGProcessedMessages, DKGMessageWrite{Authority: authority, Msg: msg})
}

// RecordDKGConfirmation stages one authority's DKG confirmation.
func (c *CCO) RecordDKGConfirmation(authority ids.NodeID, conf consensustx.DKGConfirmation) {
	c.DKGConfirmations = append(c.DKGConfirmations, DKGConfirmationWrite{Authority: authority, Conf: conf})
}

// SetDKGOutput stages the finalized DKG output.
func (c *CCO) SetDKGOutput(output []byte) {
	c.DKGOutput = output
	c.dkgOutputSet = true
}

// InsertDeferral stages an upsert of key's deferral backlog to txs (the
// full post-merge list, matching deferral.Store.Insert's append
// semantics).
func (c *CCO) InsertDeferral(key consensustx.DeferralKey, txs []consensustx.SequencedConsensusTransaction) {
	c.DeferralOps = append(c.DeferralOps, DeferralOp{Key: key, Txs: txs})
}

// DeleteDeferral stages the removal of key's deferral backlog.
func (c *CCO) DeleteDeferral(key consensustx.DeferralKey) {
	c.DeferralOps = append(c.DeferralOps, DeferralOp{Key: key, Delete: true})
}
