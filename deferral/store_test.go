// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package deferral

import (
	"testing"

	"github.com/luxfi/consensus-core/consensustx"
	"github.com/luxfi/consensus-core/epochstore"
	"github.com/luxfi/consensus-core/epochstore/epochstoretest"
	"github.com/luxfi/consensus-core/quarantine"
	"github.com/luxfi/ids"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *epochstore.Store) {
	t.Helper()
	es := epochstore.New(1, epochstoretest.New())
	ds, err := New(es)
	require.NoError(t, err)
	return ds, es
}

// promote stages cco into a fresh quarantine and immediately promotes it
// past its own height, mirroring what a certified checkpoint does in
// production so the durable-store assertions below observe the writes
// Insert/LoadRange only ever stage.
func promote(t *testing.T, store *epochstore.Store, cco *quarantine.CCO) {
	t.Helper()
	q := quarantine.New(store)
	q.Push(cco)
	b := store.NewBatch()
	require.NoError(t, q.UpdateHighestExecutedCheckpoint(cco.Height, b))
	require.NoError(t, b.Write())
}

func TestInsertAndLoadRoundTrip(t *testing.T) {
	ds, es := newTestStore(t)
	key := consensustx.NewConsensusRoundDeferralKey(5, 1)
	txs := []consensustx.SequencedConsensusTransaction{{Key: ids.GenerateTestID()}}

	cco := quarantine.NewCCO(1, 1)
	ds.Insert(cco, key, txs)
	promote(t, es, cco)

	snap := ds.Snapshot()
	require.Len(t, snap, 1)
	require.Equal(t, 1, snap[0].Count)

	min, max := consensustx.ConsensusRoundRangeBounds(10)
	cco = quarantine.NewCCO(2, 2)
	got := ds.LoadRange(cco, min, max)
	promote(t, es, cco)
	require.Len(t, got, 1)
	require.Empty(t, ds.Snapshot())
}

func TestLoadReadyOnlyIncludesRandomnessWhenRequested(t *testing.T) {
	ds, es := newTestStore(t)

	roundKey := consensustx.NewConsensusRoundDeferralKey(3, 1)
	randKey := consensustx.NewRandomnessDeferralKey(1)

	cco := quarantine.NewCCO(1, 1)
	ds.Insert(cco, roundKey, []consensustx.SequencedConsensusTransaction{{Key: ids.GenerateTestID()}})
	ds.Insert(cco, randKey, []consensustx.SequencedConsensusTransaction{{Key: ids.GenerateTestID()}})
	promote(t, es, cco)

	cco = quarantine.NewCCO(2, 2)
	got := ds.LoadReady(cco, 10, false)
	promote(t, es, cco)
	require.Len(t, got, 1, "randomness bucket excluded")

	snap := ds.Snapshot()
	require.Len(t, snap, 1)
	require.Equal(t, consensustx.DeferralRandomness, snap[0].Key.Kind)

	cco = quarantine.NewCCO(3, 3)
	got = ds.LoadReady(cco, 10, true)
	promote(t, es, cco)
	require.Len(t, got, 1, "randomness bucket now included")
	require.Empty(t, ds.Snapshot())
}

func TestLoadReadyRespectsTargetRound(t *testing.T) {
	ds, es := newTestStore(t)
	farKey := consensustx.NewConsensusRoundDeferralKey(100, 1)

	cco := quarantine.NewCCO(1, 1)
	ds.Insert(cco, farKey, []consensustx.SequencedConsensusTransaction{{Key: ids.GenerateTestID()}})
	promote(t, es, cco)

	cco = quarantine.NewCCO(2, 2)
	got := ds.LoadReady(cco, 10, false)
	promote(t, es, cco)
	require.Empty(t, got, "entries targeting a future round are not yet ready")
	require.Len(t, ds.Snapshot(), 1)
}

func TestDeferOrCancelRespectsMaxDeferralRounds(t *testing.T) {
	key, cancelled := DeferOrCancel(10, 5, 11, 10)
	require.False(t, cancelled)
	require.Equal(t, consensustx.NewConsensusRoundDeferralKey(11, 5), key)

	_, cancelled = DeferOrCancel(15, 5, 16, 10)
	require.True(t, cancelled, "10 rounds elapsed meets the bound")
}

func TestNewReloadsFromStore(t *testing.T) {
	ds, es := newTestStore(t)
	key := consensustx.NewConsensusRoundDeferralKey(5, 1)

	cco := quarantine.NewCCO(1, 1)
	ds.Insert(cco, key, []consensustx.SequencedConsensusTransaction{{Key: ids.GenerateTestID()}})
	promote(t, es, cco)

	reloaded, err := New(es)
	require.NoError(t, err)
	require.Len(t, reloaded.Snapshot(), 1, "deferral table rebuilds from the durable store after a restart")
}
