// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package quarantine

import (
	"testing"

	"github.com/luxfi/consensus-core/consensustx"
	"github.com/luxfi/consensus-core/epochstore"
	"github.com/luxfi/consensus-core/epochstore/epochstoretest"
	"github.com/luxfi/ids"
	"github.com/stretchr/testify/require"
)

func newTestQuarantine(t *testing.T) (*Quarantine, *epochstore.Store) {
	t.Helper()
	store := epochstore.New(1, epochstoretest.New())
	return New(store), store
}

func TestIsConsensusMessageProcessedChecksQuarantineBeforeStore(t *testing.T) {
	q, store := newTestQuarantine(t)
	ctk := ids.GenerateTestID()

	ok, err := q.IsConsensusMessageProcessed(ctk)
	require.NoError(t, err)
	require.False(t, ok)

	cco := NewCCO(1, 10)
	cco.MarkProcessed(ctk)
	q.Push(cco)

	ok, err = q.IsConsensusMessageProcessed(ctk)
	require.NoError(t, err)
	require.True(t, ok, "quarantine hit before promotion")

	b := store.NewBatch()
	require.NoError(t, q.UpdateHighestExecutedCheckpoint(10, b))
	require.NoError(t, b.Write())

	ok, err = q.IsConsensusMessageProcessed(ctk)
	require.NoError(t, err)
	require.True(t, ok, "store hit after promotion")
	require.Equal(t, 0, q.Len())
}

func TestGetNextSharedObjectVersionsOverlayBeatsStore(t *testing.T) {
	q, store := newTestQuarantine(t)
	obj := ids.GenerateTestID()
	key := consensustx.ConsensusObjectSequenceKey{Object: obj, InitialSharedVersion: 1}

	b := store.NewBatch()
	require.NoError(t, b.PutNextSharedObjectVersion(key, 5))
	require.NoError(t, b.Write())

	cco := NewCCO(1, 10)
	cco.SetNextSharedObjectVersion(key, 9)
	q.Push(cco)

	got, err := q.GetNextSharedObjectVersions([]consensustx.ConsensusObjectSequenceKey{key})
	require.NoError(t, err)
	require.Equal(t, consensustx.Version(9), got[key])
}

func TestGetPendingCheckpointsMergesQuarantineAndStore(t *testing.T) {
	q, store := newTestQuarantine(t)

	b := store.NewBatch()
	require.NoError(t, b.PutPendingCheckpoint(consensustx.PendingCheckpoint{Height: 1}))
	require.NoError(t, b.Write())

	cco := NewCCO(1, 5)
	cco.AddPendingCheckpoint(consensustx.PendingCheckpoint{Height: 5})
	q.Push(cco)

	got, err := q.GetPendingCheckpoints(0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, uint64(1), got[0].Height)
	require.Equal(t, uint64(5), got[1].Height)
}

func TestUpdateHighestExecutedCheckpointPromotesFIFO(t *testing.T) {
	q, store := newTestQuarantine(t)

	ctk1, ctk2 := ids.GenerateTestID(), ids.GenerateTestID()
	cco1 := NewCCO(1, 4)
	cco1.MarkProcessed(ctk1)
	cco2 := NewCCO(2, 8)
	cco2.MarkProcessed(ctk2)
	q.Push(cco1)
	q.Push(cco2)
	require.Equal(t, 2, q.Len())

	b := store.NewBatch()
	require.NoError(t, q.UpdateHighestExecutedCheckpoint(4, b))
	require.NoError(t, b.Write())
	require.Equal(t, 1, q.Len(), "only the lower-height CCO is promoted")

	ok, err := store.IsConsensusMessageProcessed(ctk1)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = q.IsConsensusMessageProcessed(ctk2)
	require.NoError(t, err)
	require.True(t, ok, "still quarantined, not yet promoted")
}

func TestLoadInitialObjectDebtsDecaysAndFallsBackToStore(t *testing.T) {
	q, store := newTestQuarantine(t)
	obj := ids.GenerateTestID()

	b := store.NewBatch()
	require.NoError(t, b.PutCongestionObjectDebts(false, map[consensustx.OID]uint64{obj: 100}))
	require.NoError(t, b.Write())

	txs := []consensustx.SequencedConsensusTransaction{
		{UserCert: &consensustx.UserCertificate{
			SharedInputs: []consensustx.SharedInput{{Object: obj}},
		}},
	}

	got, err := q.LoadInitialObjectDebts(false, txs, 30)
	require.NoError(t, err)
	require.Equal(t, uint64(70), got[obj])

	got, err = q.LoadInitialObjectDebts(false, txs, 1000)
	require.NoError(t, err)
	require.Equal(t, uint64(0), got[obj], "decay floors at zero")
}

func TestLoadInitialObjectDebtsPrefersQuarantinedSnapshot(t *testing.T) {
	q, store := newTestQuarantine(t)
	obj := ids.GenerateTestID()

	b := store.NewBatch()
	require.NoError(t, b.PutCongestionObjectDebts(false, map[consensustx.OID]uint64{obj: 100}))
	require.NoError(t, b.Write())

	cco := NewCCO(1, 1)
	cco.SetObjectDebts(map[consensustx.OID]uint64{obj: 10})
	q.Push(cco)

	txs := []consensustx.SequencedConsensusTransaction{
		{UserCert: &consensustx.UserCertificate{
			SharedInputs: []consensustx.SharedInput{{Object: obj}},
		}},
	}

	got, err := q.LoadInitialObjectDebts(false, txs, 0)
	require.NoError(t, err)
	require.Equal(t, uint64(10), got[obj], "most recently pushed CCO's debt snapshot wins over the durable store")
}
