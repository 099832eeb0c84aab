// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package epochstore

import (
	"sync"

	"github.com/luxfi/consensus-core/consensustx"
)

// txLockStripeWidth mirrors the width versioning.Manager uses for its
// object-version stripe table (spec §4.3, §9): a fixed-width hash-striped
// mutex table bounds memory while keeping unrelated transactions from
// contending on the same lock.
const txLockStripeWidth = 1024

// txLocks is the per-store table backing AcquireTxLock (spec §6
// acquire_tx_lock, the original source's CertLockGuard): a single-writer
// lock per transaction digest, held across the signing critical section
// to prevent a validator from equivocating by signing two different
// sets of effects for the same transaction.
type txLocks struct {
	stripes [txLockStripeWidth]sync.Mutex
}

func txLockStripeIndex(digest consensustx.TD) int {
	var h uint64
	for _, b := range digest {
		h = h*1099511628211 ^ uint64(b)
	}
	return int(h % txLockStripeWidth)
}

// AcquireTxLock blocks until the per-digest stripe is free, then returns
// an unlock function the caller must invoke exactly once. Distinct
// digests hashing to distinct stripes do not contend with each other.
func (s *Store) AcquireTxLock(digest consensustx.TD) func() {
	idx := txLockStripeIndex(digest)
	s.txLocks.stripes[idx].Lock()
	return func() { s.txLocks.stripes[idx].Unlock() }
}
