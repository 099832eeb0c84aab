// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package consensustx

// LastConsensusStats is versioned (spec §9 Open Question resolution:
// preserve the config-driven, evolvable shape rather than a flat
// struct) so future fields can be added without a table migration. It
// records the position of the last commit fully processed, for
// crash-recovery replay (spec §7).
type LastConsensusStats struct {
	SchemaVersion  uint8
	Round          uint64
	SubDagIndex    uint64
	TxIndex        uint64
	AuthorCounters AuthorCounters
}
