// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package deferral implements the deferral store (spec C5): an ordered
// map from a sortable DeferralKey to the verified consensus
// transactions waiting on it, with range-pop for pulling ready entries
// back into a commit. The full table is mirrored into memory at
// construction (mirroring the teacher's read-mostly mutex-guarded-map
// idiom in core/tracker) and kept in sync by staging every mutation onto
// the in-progress commit's quarantine.CCO, so an insert or pop only
// becomes durable once that CCO is promoted past a certified checkpoint.
package deferral
