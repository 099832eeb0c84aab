// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package protocolconfig defines the read-only configuration snapshot the
// consensus commit core is handed at epoch start (spec §6). Parsing,
// defaulting, and CLI wiring live outside this core; this package only
// describes the shape the core consumes.
package protocolconfig

import "time"

// CongestionMode selects how the congestion tracker (C4) prices a
// transaction's shared-object footprint within a single commit.
type CongestionMode uint8

const (
	CongestionNone CongestionMode = iota
	CongestionTotalGasBudget
	CongestionTotalTxCount
	CongestionTotalGasBudgetWithCap
	CongestionExecutionTimeEstimate
)

// Config is the protocol-config snapshot consumed by the core (spec §6).
type Config struct {
	// JWK voting.
	MaxJwkVotesPerValidatorPerEpoch uint64
	MaxAgeOfJwkInEpochs             uint64
	MaxJwkSizeBytes                 int

	// Randomness / DKG.
	RandomBeaconDKGTimeoutRound uint64
	RandomBeaconDKGVersion      uint64
	RandomBeaconMinRound        uint64

	// Congestion control.
	CongestionMode                    CongestionMode
	MaxDeferralRoundsForCongestionControl uint64
	TotalGasBudgetCap                float64 // cap_factor for TotalGasBudgetWithCap
	PerCommitCostLimitRegular         uint64
	PerCommitCostLimitRandomness      uint64
	MaxTxnCostOverageAllowedPerObjectInCommit uint64
	// CongestionDebtDecayPerCommit is the flat amount subtracted (floored
	// at zero) from each object's carried-over debt every commit (spec
	// §4.4, §9 Open Question: decay function is config-driven; resolved
	// here as a flat per-commit subtraction rather than an exponential
	// curve, see DESIGN.md).
	CongestionDebtDecayPerCommit uint64

	// Protocol-upgrade capability voting.
	BufferStakeForProtocolUpgradeBps uint64
	AuthorityCapabilitiesV2          bool

	// Feature flags.
	EndOfEpochTransactionSupported bool
	AcceptZkloginInMultisig        bool
	MysticetiFastpath               bool
	RandomnessEnabled                bool
	ConsensusCommitPrologueHasConsensusOutputDigest bool

	// Versioning.
	ConsensusCommitPrologueVersion uint8

	// Execution-time estimator defaults (§4.11).
	DefaultExecutionTimeEstimateMicros uint64
	ExecutionTimeObservationWindow     time.Duration
}

// RandomnessIsEnabled reports whether randomness reservation is
// permitted at all under this config (spec §4.6, §4.9 step 3 consults
// this together with DKG status and reconfig state). It returns the
// RandomnessEnabled flag alone and checks no DKG or reconfig readiness.
func (c Config) RandomnessIsEnabled() bool {
	return c.RandomnessEnabled
}
