// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package epochstore

import (
	"testing"

	"github.com/luxfi/consensus-core/consensustx"
	"github.com/luxfi/consensus-core/epochstore/epochstoretest"
	"github.com/luxfi/ids"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return New(7, epochstoretest.New())
}

func TestBatchWriteIsAtomicAcrossTables(t *testing.T) {
	s := newTestStore(t)

	obj := ids.GenerateTestID()
	key := consensustx.ConsensusObjectSequenceKey{Object: obj, InitialSharedVersion: 10}
	authority := ids.GenerateTestNodeID()

	b := s.NewBatch()
	require.NoError(t, b.PutNextSharedObjectVersion(key, 11))
	require.NoError(t, b.PutEndOfPublish(authority))
	require.NoError(t, b.Write())

	v, ok, err := s.GetNextSharedObjectVersion(key)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, consensustx.Version(11), v)

	has, err := s.HasEndOfPublish(authority)
	require.NoError(t, err)
	require.True(t, has)
}

func TestConsensusMessageProcessedIsMembershipOnly(t *testing.T) {
	s := newTestStore(t)
	ctk := ids.GenerateTestID()

	ok, err := s.IsConsensusMessageProcessed(ctk)
	require.NoError(t, err)
	require.False(t, ok)

	b := s.NewBatch()
	require.NoError(t, b.MarkConsensusMessageProcessed(ctk))
	require.NoError(t, b.Write())

	ok, err = s.IsConsensusMessageProcessed(ctk)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestDeferredTransactionsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	key := consensustx.NewConsensusRoundDeferralKey(5, 1)
	txs := []consensustx.SequencedConsensusTransaction{
		{Key: ids.GenerateTestID()},
		{Key: ids.GenerateTestID()},
	}

	b := s.NewBatch()
	require.NoError(t, b.PutDeferredTransactions(key, txs))
	require.NoError(t, b.Write())

	got, ok, err := s.GetDeferredTransactions(key)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got, 2)

	keys, err := s.ListDeferredKeys()
	require.NoError(t, err)
	require.Equal(t, []consensustx.DeferralKey{key}, keys)

	b = s.NewBatch()
	require.NoError(t, b.DeleteDeferredTransactions(key))
	require.NoError(t, b.Write())

	_, ok, err = s.GetDeferredTransactions(key)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEpochsAreIsolated(t *testing.T) {
	db := epochstoretest.New()
	s1 := New(1, db)
	s2 := New(2, db)

	ctk := ids.GenerateTestID()
	b := s1.NewBatch()
	require.NoError(t, b.MarkConsensusMessageProcessed(ctk))
	require.NoError(t, b.Write())

	ok, err := s2.IsConsensusMessageProcessed(ctk)
	require.NoError(t, err)
	require.False(t, ok, "epoch 2 must not see epoch 1's processed markers")
}

func TestPendingCheckpointListFiltersByHeight(t *testing.T) {
	s := newTestStore(t)
	b := s.NewBatch()
	require.NoError(t, b.PutPendingCheckpoint(consensustx.PendingCheckpoint{Height: 1}))
	require.NoError(t, b.PutPendingCheckpoint(consensustx.PendingCheckpoint{Height: 2}))
	require.NoError(t, b.PutPendingCheckpoint(consensustx.PendingCheckpoint{Height: 3}))
	require.NoError(t, b.Write())

	got, err := s.ListPendingCheckpoints(2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, uint64(2), got[0].Height)
	require.Equal(t, uint64(3), got[1].Height)
}
