// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package congestion

import (
	"testing"

	"github.com/luxfi/consensus-core/consensustx"
	"github.com/luxfi/consensus-core/protocolconfig"
	"github.com/luxfi/ids"
	"github.com/stretchr/testify/require"
)

func TestDecideAdmitsUnderLimit(t *testing.T) {
	tr := NewTracker(protocolconfig.CongestionTotalGasBudget, 0, 100, 0, nil, nil)
	obj := ids.GenerateTestID()
	tx := &consensustx.UserCertificate{
		GasBudget:    40,
		SharedInputs: []consensustx.SharedInput{{Object: obj}},
	}

	outcome, _ := tr.Decide(tx, 5)
	require.Equal(t, Admit, outcome)
	require.Equal(t, uint64(40), tr.cost[obj])
}

func TestDecideDefersOverLimitPlusOverage(t *testing.T) {
	tr := NewTracker(protocolconfig.CongestionTotalGasBudget, 0, 100, 10, nil, nil)
	obj := ids.GenerateTestID()
	tx := &consensustx.UserCertificate{
		GasBudget:    200,
		SharedInputs: []consensustx.SharedInput{{Object: obj}},
	}

	outcome, key := tr.Decide(tx, 5)
	require.Equal(t, Defer, outcome)
	require.Equal(t, consensustx.NewConsensusRoundDeferralKey(6, 5), key)
}

func TestDecideUsesOverageWithinBudget(t *testing.T) {
	tr := NewTracker(protocolconfig.CongestionTotalGasBudget, 0, 100, 20, nil, nil)
	obj := ids.GenerateTestID()
	tx := &consensustx.UserCertificate{
		GasBudget:    110,
		SharedInputs: []consensustx.SharedInput{{Object: obj}},
	}

	outcome, _ := tr.Decide(tx, 5)
	require.Equal(t, Admit, outcome, "within per_commit_limit + overage_budget")
}

func TestDecideNoneModeAlwaysAdmits(t *testing.T) {
	tr := NewTracker(protocolconfig.CongestionNone, 0, 1, 0, nil, nil)
	tx := &consensustx.UserCertificate{GasBudget: 1_000_000}
	outcome, _ := tr.Decide(tx, 1)
	require.Equal(t, Admit, outcome)
}

func TestDebtsReportsOverage(t *testing.T) {
	tr := NewTracker(protocolconfig.CongestionTotalTxCount, 0, 2, 10, nil, nil)
	obj := ids.GenerateTestID()
	tx := &consensustx.UserCertificate{SharedInputs: []consensustx.SharedInput{{Object: obj}}}

	for i := 0; i < 3; i++ {
		_, _ = tr.Decide(tx, 1)
	}

	debts := tr.Debts(2)
	require.Equal(t, uint64(1), debts[obj])
}

func TestCostOfTotalGasBudgetWithCap(t *testing.T) {
	tr := NewTracker(protocolconfig.CongestionTotalGasBudgetWithCap, 10, 1000, 0, nil, nil)
	tx := &consensustx.UserCertificate{GasBudget: 1000, NumInputs: 2, NumCommands: 3}
	require.Equal(t, uint64(50), tr.costOf(tx))

	tx2 := &consensustx.UserCertificate{GasBudget: 20, NumInputs: 2, NumCommands: 3}
	require.Equal(t, uint64(20), tr.costOf(tx2))
}

func TestSeedFromInitialDebts(t *testing.T) {
	obj := ids.GenerateTestID()
	tr := NewTracker(protocolconfig.CongestionTotalGasBudget, 0, 100, 0, nil, map[consensustx.OID]uint64{obj: 60})
	tx := &consensustx.UserCertificate{
		GasBudget:    50,
		SharedInputs: []consensustx.SharedInput{{Object: obj}},
	}

	outcome, _ := tr.Decide(tx, 1)
	require.Equal(t, Defer, outcome, "seeded debt plus new cost exceeds the limit")
}
