// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package checkpoint

import (
	"testing"

	"github.com/luxfi/consensus-core/consensustx"
	"github.com/luxfi/consensus-core/epochstore"
	"github.com/luxfi/consensus-core/epochstore/epochstoretest"
	"github.com/luxfi/consensus-core/quarantine"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/stretchr/testify/require"
)

func newTestBuilder(t *testing.T) (*Builder, *quarantine.Quarantine, *epochstore.Store) {
	t.Helper()
	store := epochstore.New(1, epochstoretest.New())
	q := quarantine.New(store)
	return New(q, log.NoLog{}), q, store
}

func TestProposeEmitsSingleRegularCheckpoint(t *testing.T) {
	b, q, _ := newTestBuilder(t)
	cco := quarantine.NewCCO(1, 10)
	roots := []consensustx.TK{{Kind: consensustx.TKDigest}}

	require.NoError(t, b.Propose(cco, 10, 1000, roots, nil, false))
	require.Len(t, cco.PendingCheckpoints, 1)
	require.Equal(t, uint64(10), cco.PendingCheckpoints[0].Height)
	require.False(t, cco.PendingCheckpoints[0].IsRandomness)

	q.Push(cco)
	exists, err := q.PendingCheckpointExists(10)
	require.NoError(t, err)
	require.True(t, exists)
}

func TestProposeEmitsRandomnessSubCheckpointAtHeightPlusOne(t *testing.T) {
	b, _, _ := newTestBuilder(t)
	cco := quarantine.NewCCO(1, 10)
	regular := []consensustx.TK{{Kind: consensustx.TKDigest}}
	randomness := []consensustx.TK{{Kind: consensustx.TKRandomnessRound, Round: 3}}

	require.NoError(t, b.Propose(cco, 10, 1000, regular, randomness, true))
	require.Len(t, cco.PendingCheckpoints, 2)
	require.Equal(t, uint64(10), cco.PendingCheckpoints[0].Height)
	require.False(t, cco.PendingCheckpoints[0].LastOfEpoch, "randomness sub-checkpoint carries last_of_epoch, not the regular one")
	require.Equal(t, uint64(11), cco.PendingCheckpoints[1].Height)
	require.True(t, cco.PendingCheckpoints[1].IsRandomness)
	require.True(t, cco.PendingCheckpoints[1].LastOfEpoch)
}

func TestProposeDuplicateHeightIsFatal(t *testing.T) {
	b, q, _ := newTestBuilder(t)
	cco := quarantine.NewCCO(1, 10)
	require.NoError(t, b.Propose(cco, 10, 1000, nil, nil, false))
	q.Push(cco)

	require.Panics(t, func() {
		cco2 := quarantine.NewCCO(2, 11)
		_ = b.Propose(cco2, 10, 2000, nil, nil, false)
	})
}

func TestRecordConstructedPromotesWhenSyncedThroughSeq(t *testing.T) {
	b, q, store := newTestBuilder(t)
	cco := quarantine.NewCCO(1, 5)
	require.NoError(t, b.Propose(cco, 5, 1000, nil, nil, false))
	q.Push(cco)

	batch := store.NewBatch()
	cc := consensustx.ConstructedCheckpoint{SequenceNumber: 5, SummaryDigest: ids.GenerateTestID()}
	require.NoError(t, b.RecordConstructed(cc, 5, batch))
	require.NoError(t, batch.Write())

	got, ok, err := store.GetConstructedCheckpoint(5)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, cc.SummaryDigest, got.SummaryDigest)
	require.Equal(t, 0, q.Len(), "promotion should drop the quarantined CCOs at or below seq 5")
}

func TestRecordConstructedDoesNotPromoteAheadOfSync(t *testing.T) {
	b, q, store := newTestBuilder(t)
	cco := quarantine.NewCCO(1, 5)
	require.NoError(t, b.Propose(cco, 5, 1000, nil, nil, false))
	q.Push(cco)

	batch := store.NewBatch()
	cc := consensustx.ConstructedCheckpoint{SequenceNumber: 5}
	require.NoError(t, b.RecordConstructed(cc, 2, batch))
	require.NoError(t, batch.Write())

	require.Equal(t, 2, q.Len(), "not promoted: local sync has only caught up to seq 2")
}
