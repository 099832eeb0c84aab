// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package epochstore

// Table name prefixes, one per semantic table enumerated in spec §4.1.
// Legacy/deprecated tables named in the original source are omitted in
// this greenfield target per spec §9 Open Questions (they are neither
// read nor written by any code path here).
const (
	tableSignedTransactions               = "signed_transactions"
	tableOwnedObjectLocks                 = "owned_object_locks"
	tableEffectsSignatures                = "effects_signatures"
	tableSignedEffectsDigests             = "signed_effects_digests"
	tableExecutedInEpoch                  = "executed_in_epoch"
	tableExecutedTransactionsToCheckpoint = "executed_transactions_to_checkpoint"
	tableNextSharedObjectVersions         = "next_shared_object_versions"
	tablePendingConsensusTransactions     = "pending_consensus_transactions"
	tableConsensusMessageProcessed        = "consensus_message_processed"
	tableLastConsensusStats               = "last_consensus_stats"
	tableReconfigState                    = "reconfig_state"
	tableEndOfPublish                     = "end_of_publish"
	tableDeferredTransactions             = "deferred_transactions"
	tableAuthorityCapabilitiesV1          = "authority_capabilities_v1"
	tableAuthorityCapabilitiesV2          = "authority_capabilities_v2"
	tablePendingJWKs                      = "pending_jwks"
	tableActiveJWKs                       = "active_jwks"
	tableJWKAggregatorVotes               = "jwk_aggregator_votes"
	tableDKGProcessedMessages             = "dkg_processed_messages"
	tableDKGUsedMessages                  = "dkg_used_messages"
	tableDKGConfirmations                 = "dkg_confirmations"
	tableDKGOutput                        = "dkg_output"
	tableRandomnessNextRound              = "randomness_next_round"
	tableRandomnessHighestCompletedRound  = "randomness_highest_completed_round"
	tableRandomnessLastRoundTimestamp     = "randomness_last_round_timestamp"
	tablePendingCheckpoints               = "pending_checkpoints"
	tableBuilderCheckpointSummary         = "builder_checkpoint_summary"
	tablePendingCheckpointSignatures      = "pending_checkpoint_signatures"
	tableStateHashByCheckpoint            = "state_hash_by_checkpoint"
	tableRunningRootAccumulators          = "running_root_accumulators"
	tableOverrideProtocolUpgradeBufferStake = "override_protocol_upgrade_buffer_stake"
	tableCongestionControlObjectDebts             = "congestion_control_object_debts"
	tableCongestionControlRandomnessObjectDebts   = "congestion_control_randomness_object_debts"
)

// singletonKey is the lone key used for tables that hold one value per
// epoch (last_consensus_stats, reconfig_state, randomness_next_round,
// override_protocol_upgrade_buffer_stake, ...).
var singletonKey = []byte("singleton")
