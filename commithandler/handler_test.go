// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package commithandler

import (
	"testing"

	"github.com/luxfi/consensus-core/consensustx"
	"github.com/luxfi/consensus-core/epochstore"
	"github.com/luxfi/consensus-core/epochstore/epochstoretest"
	"github.com/luxfi/consensus-core/protocolconfig"
	"github.com/luxfi/consensus-core/randomness"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/stretchr/testify/require"
)

type fakeWeights struct {
	weights map[ids.NodeID]uint64
	total   uint64
}

func (f fakeWeights) Weight(a ids.NodeID) uint64 { return f.weights[a] }
func (f fakeWeights) TotalWeight() uint64        { return f.total }

type fakeObjectStore struct{}

func (fakeObjectStore) SharedObjectVersion(consensustx.OID, consensustx.Version) (consensustx.Version, bool, error) {
	return 0, false, nil
}

type fakeVerifier struct{}

func (fakeVerifier) InsertJWK(consensustx.JwkID, consensustx.Jwk) {}

type fakeBuilderNotify struct {
	heights []uint64
}

func (f *fakeBuilderNotify) NotifyPendingCheckpoint(height uint64) {
	f.heights = append(f.heights, height)
}

type fakeGenerator struct {
	rounds []uint64
}

func (f *fakeGenerator) GenerateRandomness(epoch, round uint64) {
	f.rounds = append(f.rounds, round)
}

func baseConfig() protocolconfig.Config {
	return protocolconfig.Config{
		MaxJwkVotesPerValidatorPerEpoch:           10,
		MaxJwkSizeBytes:                           4096,
		RandomBeaconDKGTimeoutRound:                1000,
		CongestionMode:                             protocolconfig.CongestionTotalGasBudget,
		MaxDeferralRoundsForCongestionControl:      3,
		PerCommitCostLimitRegular:                  100,
		PerCommitCostLimitRandomness:               100,
		MaxTxnCostOverageAllowedPerObjectInCommit:  0,
		DefaultExecutionTimeEstimateMicros:         1,
	}
}

func newTestHandler(t *testing.T, cfg protocolconfig.Config) (*Handler, []ids.NodeID) {
	t.Helper()
	store := epochstore.New(1, epochstoretest.New())
	handle := epochstore.NewHandle(store)
	auth := []ids.NodeID{ids.GenerateTestNodeID(), ids.GenerateTestNodeID(), ids.GenerateTestNodeID(), ids.GenerateTestNodeID()}
	weights := fakeWeights{
		weights: map[ids.NodeID]uint64{auth[0]: 1, auth[1]: 1, auth[2]: 1, auth[3]: 1},
		total:   4,
	}

	h, err := New(Deps{
		Store:       store,
		Handle:      handle,
		Objects:     fakeObjectStore{},
		Weights:     weights,
		Config:      cfg,
		Logger:      log.NoLog{},
		JWKVerifier: fakeVerifier{},
	})
	require.NoError(t, err)
	return h, auth
}

func userTx(author ids.NodeID, digest ids.ID, obj ids.ID, gasPrice, gasBudget uint64, usesRandomness bool) consensustx.SequencedConsensusTransaction {
	return consensustx.SequencedConsensusTransaction{
		CertificateAuthor: author,
		Key:               digest,
		UserCert: &consensustx.UserCertificate{
			Digest:         digest,
			Author:         author,
			SharedInputs:   []consensustx.SharedInput{{Object: obj, InitialSharedVersion: 0, Mutable: true}},
			GasBudget:      gasBudget,
			GasPrice:       gasPrice,
			UsesRandomness: usesRandomness,
		},
	}
}

func TestHandleCommitSchedulesAdmissibleTransaction(t *testing.T) {
	h, auth := newTestHandler(t, baseConfig())

	obj := ids.GenerateTestID()
	digest := ids.GenerateTestID()
	tx := userTx(auth[0], digest, obj, 5, 10, false)

	outcomes, err := h.HandleCommit(consensustx.ConsensusCommit{
		Round:        1,
		TimestampMs:  1000,
		Transactions: []consensustx.SequencedConsensusTransaction{tx},
	})
	require.NoError(t, err)

	var found bool
	for _, o := range outcomes {
		if o.Kind == Schedule && o.Tx.Key == digest {
			found = true
		}
	}
	require.True(t, found, "expected tx to be scheduled, got outcomes %+v", outcomes)
}

func TestHandleCommitCancelsWhenCongestionBudgetExhaustedAfterMaxDeferrals(t *testing.T) {
	cfg := baseConfig()
	cfg.PerCommitCostLimitRegular = 1
	cfg.MaxDeferralRoundsForCongestionControl = 1
	h, auth := newTestHandler(t, cfg)

	obj := ids.GenerateTestID()
	digest := ids.GenerateTestID()
	tx := userTx(auth[0], digest, obj, 1, 50, false)

	// Round 1: exceeds the per-commit cap, so it is deferred to round 2.
	outcomes, err := h.HandleCommit(consensustx.ConsensusCommit{
		Round:        1,
		TimestampMs:  1000,
		Transactions: []consensustx.SequencedConsensusTransaction{tx},
	})
	require.NoError(t, err)
	require.Equal(t, Defer, outcomeFor(t, outcomes, digest).Kind)

	// Round 2: max_deferral_rounds is exhausted (currentRound - originallyDeferredRound >= 1), so it cancels.
	outcomes, err = h.HandleCommit(consensustx.ConsensusCommit{
		Round:       2,
		TimestampMs: 2000,
	})
	require.NoError(t, err)
	out := outcomeFor(t, outcomes, digest)
	require.Equal(t, Cancel, out.Kind)
	require.Equal(t, CancelCongestion, out.CancelWhy.Kind)
}

func TestHandleCommitDropsUserCertPastEndOfPublish(t *testing.T) {
	h, auth := newTestHandler(t, baseConfig())

	// Cross EndOfPublish quorum for auth[0..2] (weight 3 of 4, threshold 3).
	eop := func(a ids.NodeID) consensustx.SequencedConsensusTransaction {
		return consensustx.SequencedConsensusTransaction{
			CertificateAuthor: a,
			Key:               ids.GenerateTestID(),
			Kind:              consensustx.KindEndOfPublish,
			EOP:               &consensustx.EndOfPublish{Authority: a},
		}
	}
	_, err := h.HandleCommit(consensustx.ConsensusCommit{
		Round: 1,
		Transactions: []consensustx.SequencedConsensusTransaction{
			eop(auth[0]), eop(auth[1]), eop(auth[2]),
		},
	})
	require.NoError(t, err)

	digest := ids.GenerateTestID()
	tx := userTx(auth[0], digest, ids.GenerateTestID(), 1, 1, false)
	outcomes, err := h.HandleCommit(consensustx.ConsensusCommit{
		Round:        2,
		Transactions: []consensustx.SequencedConsensusTransaction{tx},
	})
	require.NoError(t, err)
	require.Equal(t, Ignored, outcomeFor(t, outcomes, digest).Kind)
}

func TestHandleCommitCancelsRandomnessTxWhenDkgHasFailed(t *testing.T) {
	cfg := baseConfig()
	cfg.RandomBeaconDKGTimeoutRound = 1
	cfg.RandomnessEnabled = true
	h, auth := newTestHandler(t, cfg)

	// Round 1: the DKG manager starts Pending; AdvanceDKG(1) at the end of
	// this commit crosses random_beacon_dkg_timeout_round and flips it to
	// Failed for the *next* commit's dkgFailed snapshot.
	_, err := h.HandleCommit(consensustx.ConsensusCommit{Round: 1})
	require.NoError(t, err)
	require.Equal(t, randomness.Failed, h.randomnessMgr.State())

	// Round 2: a randomness-using certificate is unconditionally cancelled
	// once the DKG has failed, regardless of its own congestion budget.
	digest := ids.GenerateTestID()
	tx := userTx(auth[0], digest, ids.GenerateTestID(), 1, 1, true)
	outcomes, err := h.HandleCommit(consensustx.ConsensusCommit{
		Round:        2,
		Transactions: []consensustx.SequencedConsensusTransaction{tx},
	})
	require.NoError(t, err)
	out := outcomeFor(t, outcomes, digest)
	require.Equal(t, Cancel, out.Kind)
	require.Equal(t, CancelDkgFailed, out.CancelWhy.Kind)
}

func TestHandleCommitAppliesJwkVoteInPlace(t *testing.T) {
	h, auth := newTestHandler(t, baseConfig())

	vote := consensustx.SequencedConsensusTransaction{
		CertificateAuthor: auth[0],
		Key:               ids.GenerateTestID(),
		JWK: &consensustx.JWKVote{
			Authority: auth[0],
			JwkID:     consensustx.JwkID{Issuer: "https://accounts.example.com", KeyID: "k1"},
			Jwk:       consensustx.Jwk{Alg: "RS256", Kty: "RSA", N: "n", E: "AQAB"},
		},
	}
	outcomes, err := h.HandleCommit(consensustx.ConsensusCommit{
		Round:        1,
		Transactions: []consensustx.SequencedConsensusTransaction{vote},
	})
	require.NoError(t, err)
	require.Equal(t, ConsensusMessage, outcomeFor(t, outcomes, vote.Key).Kind)
}

func TestHandleCommitSynthesizesPrologueAsFirstRegularRoot(t *testing.T) {
	notifier := &fakeBuilderNotify{}
	cfg := baseConfig()
	store := epochstore.New(1, epochstoretest.New())
	handle := epochstore.NewHandle(store)
	auth := ids.GenerateTestNodeID()
	weights := fakeWeights{weights: map[ids.NodeID]uint64{auth: 1}, total: 1}

	h, err := New(Deps{
		Store:         store,
		Handle:        handle,
		Objects:       fakeObjectStore{},
		Weights:       weights,
		Config:        cfg,
		Logger:        log.NoLog{},
		JWKVerifier:   fakeVerifier{},
		BuilderNotify: notifier,
	})
	require.NoError(t, err)

	_, err = h.HandleCommit(consensustx.ConsensusCommit{Round: 1, TimestampMs: 42})
	require.NoError(t, err)
	require.Equal(t, []uint64{1}, notifier.heights)

	checkpoints, err := h.quarantine.GetPendingCheckpoints(0)
	require.NoError(t, err)
	require.Len(t, checkpoints, 1)
	require.Equal(t, consensustx.DigestKey(prologueDigest(1, 1, 42)), checkpoints[0].Roots[0], "the synthesized prologue must be the first regular root")
}

func TestHandleCommitIsIdempotentForReplayedMessages(t *testing.T) {
	h, auth := newTestHandler(t, baseConfig())

	obj := ids.GenerateTestID()
	digest := ids.GenerateTestID()
	tx := userTx(auth[0], digest, obj, 5, 10, false)

	_, err := h.HandleCommit(consensustx.ConsensusCommit{
		Round:        1,
		TimestampMs:  1000,
		Transactions: []consensustx.SequencedConsensusTransaction{tx},
	})
	require.NoError(t, err)

	seqKey := consensustx.ConsensusObjectSequenceKey{Object: obj, InitialSharedVersion: 0}
	versionsBefore, err := h.quarantine.GetNextSharedObjectVersions([]consensustx.ConsensusObjectSequenceKey{seqKey})
	require.NoError(t, err)
	versionBefore, ok := versionsBefore[seqKey]
	require.True(t, ok)

	// A later commit replays the same certificate (e.g. the consensus layer
	// redelivered it across a crash-restart boundary). Classification must
	// drop it before it reaches version assignment again.
	outcomes, err := h.HandleCommit(consensustx.ConsensusCommit{
		Round:        2,
		TimestampMs:  2000,
		Transactions: []consensustx.SequencedConsensusTransaction{tx},
	})
	require.NoError(t, err)
	for _, o := range outcomes {
		require.False(t, o.Tx != nil && o.Tx.Key == digest, "replayed CTK must be dropped at classification, got outcome %+v", o)
	}

	versionsAfter, err := h.quarantine.GetNextSharedObjectVersions([]consensustx.ConsensusObjectSequenceKey{seqKey})
	require.NoError(t, err)
	require.Equal(t, versionBefore, versionsAfter[seqKey], "replaying an already-processed CTK must not mutate shared-object versions again")
}

func TestHandleCommitDefersRandomnessTxUntilDkgReady(t *testing.T) {
	cfg := baseConfig()
	cfg.RandomnessEnabled = true
	h, auth := newTestHandler(t, cfg)

	digest := ids.GenerateTestID()
	tx := userTx(auth[0], digest, ids.GenerateTestID(), 1, 1, true)

	outcomes, err := h.HandleCommit(consensustx.ConsensusCommit{
		Round:        1,
		TimestampMs:  1000,
		Transactions: []consensustx.SequencedConsensusTransaction{tx},
	})
	require.NoError(t, err)
	out := outcomeFor(t, outcomes, digest)
	require.Equal(t, Defer, out.Kind, "a randomness-using cert cannot be admitted while the DKG is still pending")
	require.Equal(t, consensustx.DeferralRandomness, out.DeferralKey.Kind)

	checkpoints, err := h.quarantine.GetPendingCheckpoints(0)
	require.NoError(t, err)
	for _, cp := range checkpoints {
		require.False(t, cp.IsRandomness, "no randomness round was reserved, so no randomness sub-checkpoint should be emitted")
	}
}

func TestHandleCommitAppendsSystemTxToCheckpointRoots(t *testing.T) {
	h, _ := newTestHandler(t, baseConfig())

	digest := ids.GenerateTestID()
	sysTx := consensustx.SequencedConsensusTransaction{
		Key:  ids.GenerateTestID(),
		Kind: consensustx.KindSystemTransaction,
		System: &consensustx.SystemTransaction{
			Digest: digest,
			Kind:   consensustx.SystemRandomnessStateUpdate,
		},
	}

	outcomes, err := h.HandleCommit(consensustx.ConsensusCommit{
		Round:        1,
		TimestampMs:  1000,
		Transactions: []consensustx.SequencedConsensusTransaction{sysTx},
	})
	require.NoError(t, err)
	require.Equal(t, Schedule, outcomeFor(t, outcomes, sysTx.Key).Kind)

	checkpoints, err := h.quarantine.GetPendingCheckpoints(0)
	require.NoError(t, err)
	require.Len(t, checkpoints, 1)
	require.Contains(t, checkpoints[0].Roots, consensustx.DigestKey(digest), "a scheduled system transaction must appear as a checkpoint root")
}

func outcomeFor(t *testing.T, outcomes []ScheduleOutcome, key consensustx.CTK) ScheduleOutcome {
	t.Helper()
	for _, o := range outcomes {
		if o.Tx != nil && o.Tx.Key == key {
			return o
		}
	}
	t.Fatalf("no outcome found for key %s", key)
	return ScheduleOutcome{}
}
