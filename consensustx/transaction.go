// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package consensustx

import "github.com/luxfi/ids"

// ConsensusTransactionKind tags the payload carried by one message on the
// consensus bus (spec §4.9 step 1, §6).
type ConsensusTransactionKind uint8

const (
	KindUserTransaction ConsensusTransactionKind = iota
	KindCertifiedTransaction
	KindCheckpointSignature
	KindCapabilityVoteV1
	KindCapabilityVoteV2
	KindJWKVote
	KindDKGMessage
	KindDKGConfirmation
	KindEndOfPublish
	KindExecutionTimeObservation
	KindSystemTransaction
)

// AuthoredPayload is implemented by every payload kind that embeds the
// claimed authority, so author/consensus-reported-author matching (spec
// §4.9 step 1) can be checked uniformly.
type AuthoredPayload interface {
	ClaimedAuthority() ids.NodeID
}

// CapabilityVote is an authority's vote for the set of protocol-upgrade
// capabilities it supports.
type CapabilityVote struct {
	Authority        ids.NodeID
	GenerationCount  uint64
	SupportedFeatures []string
	AvailableMoveVersions []uint64
}

func (c CapabilityVote) ClaimedAuthority() ids.NodeID { return c.Authority }

// JWKVote is a single authority's vote for an external identity provider's
// JSON Web Key.
type JWKVote struct {
	Authority ids.NodeID
	JwkID     JwkID
	Jwk       Jwk
}

func (v JWKVote) ClaimedAuthority() ids.NodeID { return v.Authority }

// JwkID identifies an external OIDC provider key by issuer and key id.
type JwkID struct {
	Issuer string
	KeyID  string
}

// Jwk is the (opaque to this core) key material voted on.
type Jwk struct {
	Alg string
	Kty string
	N   string
	E   string
}

// DKGMessage carries one authority's DKG protocol message.
type DKGMessage struct {
	Authority ids.NodeID
	Round     uint64
	Body      []byte
}

func (m DKGMessage) ClaimedAuthority() ids.NodeID { return m.Authority }

// DKGConfirmation carries one authority's confirmation of the DKG output.
type DKGConfirmation struct {
	Authority ids.NodeID
	Body      []byte
}

func (c DKGConfirmation) ClaimedAuthority() ids.NodeID { return c.Authority }

// EndOfPublish signals that an authority will not submit further user
// certificates this epoch.
type EndOfPublish struct {
	Authority ids.NodeID
}

func (e EndOfPublish) ClaimedAuthority() ids.NodeID { return e.Authority }

// ExecutionTimeObservation is one authority's measured cost for a set of
// Move call targets (spec §4.11).
type ExecutionTimeObservation struct {
	Authority  ids.NodeID
	Generation uint64
	Entries    []ExecutionTimeObservationEntry
}

func (o ExecutionTimeObservation) ClaimedAuthority() ids.NodeID { return o.Authority }

// ExecutionTimeObservationEntry is a single (target, duration) sample.
type ExecutionTimeObservationEntry struct {
	Target          MoveCallTarget
	DurationMicros  uint64
}

// MoveCallTarget identifies a Move entry function.
type MoveCallTarget struct {
	Package  OID
	Module   string
	Function string
}

// CheckpointSignature is a validator's signature over a checkpoint
// summary, forwarded through consensus for aggregation.
type CheckpointSignature struct {
	Authority ids.NodeID
	Sequence  uint64
	Digest    ids.ID
}

func (s CheckpointSignature) ClaimedAuthority() ids.NodeID { return s.Authority }

// UserCertificate is the payload of a user transaction or certificate,
// carrying just the fields this core needs: its digest, shared-object
// inputs, gas budget, and randomness usage.
type UserCertificate struct {
	Digest        TD
	Author        ids.NodeID
	SharedInputs  []SharedInput
	GasBudget     uint64
	GasPrice      uint64
	NumInputs     int
	NumCommands   int
	UsesRandomness bool
	Targets       []MoveCallTarget
}

// SystemTransaction is a validator-local, self-generated transaction
// (e.g. the randomness-state-update or the consensus-commit-prologue
// once synthesized).
type SystemTransaction struct {
	Digest TD
	Kind   SystemKind

	// Prologue* fields are populated only for Kind == SystemConsensusCommitPrologue
	// (spec §4.9 step 7: "carries (epoch, round, timestamp_ms,
	// consensus_commit_digest?, ...)").
	PrologueEpoch               uint64
	PrologueRound               uint64
	PrologueTimestampMs         uint64
	PrologueHasConsensusDigest  bool
	PrologueConsensusDigest     TD
}

// SystemKind enumerates self-generated system transactions.
type SystemKind uint8

const (
	SystemRandomnessStateUpdate SystemKind = iota
	SystemConsensusCommitPrologue
	SystemEndOfEpoch
)

// ConsensusIndex locates a message within the consensus sequencing: the
// round it was delivered in, its sub-DAG, and its index within that
// sub-DAG's transaction list.
type ConsensusIndex struct {
	Round      uint64
	SubDag     uint64
	TxIndex    uint64
}

// SequencedConsensusTransaction is one message delivered by the
// consensus layer, as described in spec §6.
type SequencedConsensusTransaction struct {
	CertificateAuthor      ids.NodeID
	CertificateAuthorIndex uint32
	Index                  ConsensusIndex
	Key                    CTK
	Kind                   ConsensusTransactionKind

	UserCert         *UserCertificate
	Capability       *CapabilityVote
	JWK              *JWKVote
	DKG              *DKGMessage
	DKGConf          *DKGConfirmation
	EOP              *EndOfPublish
	ExecTimeObs      *ExecutionTimeObservation
	CheckpointSig    *CheckpointSignature
	System           *SystemTransaction

	// PreviouslyDeferred is set by the commit handler once it has
	// resolved whether this transaction was carried forward from the
	// deferral store, so downstream policy (EndOfPublish drop, reconfig
	// drop) can treat it per spec §4.9 step 6.
	PreviouslyDeferred bool
	PreviousDeferralKey DeferralKey
}

// AuthorCounters is the per-authority message counters reported for a
// commit (spec §6, §4.9 input).
type AuthorCounters map[ids.NodeID]uint64

// ConsensusCommit is the input to the commit handler: one ordered block
// of sequenced consensus transactions.
type ConsensusCommit struct {
	Round          uint64
	SubDagIndex    uint64
	TimestampMs    uint64
	Transactions   []SequencedConsensusTransaction
	AuthorCounters AuthorCounters
	FinalRound     bool

	// ConsensusOutputDigest is supplied by the consensus layer only when
	// ProtocolConfig.ConsensusCommitPrologueHasConsensusOutputDigest is
	// set (spec §9 Open Question: gated by a feature flag); HasConsensusOutputDigest
	// reports whether it should be read.
	HasConsensusOutputDigest bool
	ConsensusOutputDigest    TD
}
