// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package consensustx

import (
	"fmt"

	"github.com/luxfi/ids"
)

// TD is a transaction digest: a 32-byte content hash that globally and
// uniquely identifies a transaction.
type TD = ids.ID

// TKKind distinguishes a plain digest key from a symbolic system-transaction
// key (e.g. a randomness round).
type TKKind uint8

const (
	// TKDigest is a transaction key that is itself a digest.
	TKDigest TKKind = iota
	// TKRandomnessRound is the symbolic key (epoch, randomness_round) used
	// before the corresponding system transaction has been materialized.
	TKRandomnessRound
)

// TK is a transaction key: either a digest, or a symbolic name for a system
// transaction. A symbolic key resolves to a digest once the transaction is
// materialized (see commithandler.Handler.NotifyReadExecutedDigests).
type TK struct {
	Kind    TKKind
	Digest  TD
	Epoch   uint64
	Round   uint64 // randomness round, valid iff Kind == TKRandomnessRound
}

// DigestKey wraps a plain digest as a TK.
func DigestKey(d TD) TK {
	return TK{Kind: TKDigest, Digest: d}
}

// RandomnessRoundKey builds the symbolic key for a randomness round system
// transaction.
func RandomnessRoundKey(epoch, round uint64) TK {
	return TK{Kind: TKRandomnessRound, Epoch: epoch, Round: round}
}

func (k TK) String() string {
	switch k.Kind {
	case TKRandomnessRound:
		return fmt.Sprintf("randomness(%d,%d)", k.Epoch, k.Round)
	default:
		return k.Digest.String()
	}
}

// CTK is a consensus transaction key: the identity of a message on the
// consensus bus (certificate, checkpoint signature, capability vote, JWK
// vote, DKG message/confirmation, end-of-publish, execution-time
// observation, user transaction).
type CTK = ids.ID

// OID is a 32-byte object identifier.
type OID = ids.ID

// Version is a monotonically increasing per-object version.
type Version uint64

const (
	// CancelledCongestion is the sentinel version assigned to the shared
	// inputs of a transaction cancelled by the congestion tracker.
	CancelledCongestion Version = ^Version(0)
	// CancelledDKGFailed is the sentinel version assigned to the shared
	// inputs of a transaction cancelled because DKG failed.
	CancelledDKGFailed Version = ^Version(0) - 1
)

// ObjectRef names an object and a version assigned to it.
type ObjectRef struct {
	Object  OID
	Version Version
}

// ConsensusObjectSequenceKey identifies one "shared lifetime" of an object:
// the object may be unshared and re-shared, producing multiple lifetimes
// for the same OID, each with its own independent version sequence.
type ConsensusObjectSequenceKey struct {
	Object               OID
	InitialSharedVersion Version
}

func (k ConsensusObjectSequenceKey) String() string {
	return fmt.Sprintf("%s@%d", k.Object, k.InitialSharedVersion)
}

// SharedInput is a transaction's declared reference to a shared object, as
// read off the transaction body before version assignment.
type SharedInput struct {
	Object               OID
	InitialSharedVersion Version
	Mutable              bool
}
