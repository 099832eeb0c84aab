// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package epochstore

import (
	"sync"
	"sync/atomic"

	"github.com/luxfi/consensus-core/consensustx"
)

// Handle is the atomically swappable pointer to the current epoch's
// table store (spec §5, §9: "owner holds; observers obtain short-lived
// shared access; at epoch end owner publishes None and waits for
// observers to drain"). It composes an epoch_alive reader-writer latch:
// readers call Acquire/Release around any epoch-scoped work, and
// Terminate swaps the store to nil, then blocks until every outstanding
// reader has released.
type Handle struct {
	ptr atomic.Pointer[Store]

	mu      sync.Mutex
	readers int
	drained chan struct{} // closed once readers hits zero during a Terminate
}

// NewHandle publishes store as the live epoch table handle.
func NewHandle(store *Store) *Handle {
	h := &Handle{}
	h.ptr.Store(store)
	return h
}

// Acquire obtains short-lived shared access to the current epoch store.
// Callers MUST call the returned release function exactly once when
// done. Returns ErrEpochEnded if the epoch has already terminated.
func (h *Handle) Acquire() (*Store, func(), error) {
	h.mu.Lock()
	s := h.ptr.Load()
	if s == nil {
		h.mu.Unlock()
		return nil, nil, consensustx.ErrEpochEnded
	}
	h.readers++
	h.mu.Unlock()

	release := func() {
		h.mu.Lock()
		h.readers--
		if h.readers == 0 && h.drained != nil {
			close(h.drained)
			h.drained = nil
		}
		h.mu.Unlock()
	}
	return s, release, nil
}

// Terminate publishes nil (so every subsequent Acquire fails with
// ErrEpochEnded) and blocks until every reader that had already acquired
// the handle has released it (spec §5 "epoch_terminated").
func (h *Handle) Terminate() {
	h.mu.Lock()
	h.ptr.Store(nil)
	if h.readers == 0 {
		h.mu.Unlock()
		return
	}
	drained := make(chan struct{})
	h.drained = drained
	h.mu.Unlock()
	<-drained
}

// Store returns the live store without the reader-count bookkeeping, for
// the single-writer commit handler which already serializes access to
// it externally (spec §5: the commit handler is the sole writer and is
// itself serialized by the consensus transport). Returns nil once
// terminated.
func (h *Handle) Store() *Store {
	return h.ptr.Load()
}
