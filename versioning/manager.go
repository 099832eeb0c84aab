// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package versioning

import (
	"sync"

	"github.com/luxfi/consensus-core/consensustx"
	"github.com/luxfi/consensus-core/quarantine"
	"github.com/luxfi/log"
)

// stripeWidth is the fixed size of the per-object lock table (spec
// §4.3: "striped mutex table over OIDs, fixed width ≈ 1024").
const stripeWidth = 1024

// ObjectStore is the backing object store the manager consults the
// first time a shared object's lifetime is seen within an epoch.
type ObjectStore interface {
	// SharedObjectVersion returns obj's current version and whether it
	// is a live shared object belonging to the lifetime started at
	// initialSharedVersion. A live object in a different lifetime, or
	// one that does not exist yet, reports liveInLifetime == false.
	SharedObjectVersion(obj consensustx.OID, initialSharedVersion consensustx.Version) (version consensustx.Version, liveInLifetime bool, err error)
}

// Manager assigns shared-object versions to transactions in the order
// they are presented, consulting the quarantine-over-C1 stacked view for
// the running next_version pointer and the backing ObjectStore the
// first time a lifetime is seen (spec §4.3).
type Manager struct {
	quarantine *quarantine.Quarantine
	objects    ObjectStore
	logger     log.Logger

	stripes [stripeWidth]sync.Mutex
}

// New returns a version manager reading next_version from q and seeding
// unseen lifetimes from objects.
func New(q *quarantine.Quarantine, objects ObjectStore, logger log.Logger) *Manager {
	return &Manager{quarantine: q, objects: objects, logger: logger}
}

func stripeIndex(obj consensustx.OID) int {
	var h uint64
	for _, b := range obj {
		h = h*1099511628211 ^ uint64(b)
	}
	return int(h % stripeWidth)
}

// CancelReason names why a transaction's shared inputs are assigned a
// sentinel version instead of a real one (spec §4.3 step 4, §4.4, §4.6).
type CancelReason uint8

const (
	NotCancelled CancelReason = iota
	CancelledCongestion
	CancelledDKGFailed
)

func (r CancelReason) sentinel() (consensustx.Version, bool) {
	switch r {
	case CancelledCongestion:
		return consensustx.CancelledCongestion, true
	case CancelledDKGFailed:
		return consensustx.CancelledDKGFailed, true
	default:
		return 0, false
	}
}

// AssignVersions assigns a version to every shared input of tx and
// returns the resulting object references, in input order. cco is the
// in-progress commit output the running commit is staging; its
// NextSharedObjectVersions map is consulted ahead of the quarantine
// (so later transactions within the same commit see earlier ones'
// increments) and is where this call stages its own increments.
//
// If reason is not NotCancelled, every input is assigned the
// corresponding sentinel version and next_version is left untouched
// (spec §4.3 step 4).
func (m *Manager) AssignVersions(tx *consensustx.UserCertificate, cco *quarantine.CCO, reason CancelReason) ([]consensustx.ObjectRef, error) {
	if sentinel, ok := reason.sentinel(); ok {
		refs := make([]consensustx.ObjectRef, len(tx.SharedInputs))
		for i, si := range tx.SharedInputs {
			refs[i] = consensustx.ObjectRef{Object: si.Object, Version: sentinel}
		}
		return refs, nil
	}

	refs := make([]consensustx.ObjectRef, len(tx.SharedInputs))
	for i, si := range tx.SharedInputs {
		key := consensustx.ConsensusObjectSequenceKey{Object: si.Object, InitialSharedVersion: si.InitialSharedVersion}

		idx := stripeIndex(si.Object)
		m.stripes[idx].Lock()
		v, err := m.resolve(key, si, cco)
		if err != nil {
			m.stripes[idx].Unlock()
			return nil, err
		}

		refs[i] = consensustx.ObjectRef{Object: si.Object, Version: v}
		if si.Mutable {
			cco.SetNextSharedObjectVersion(key, v+1)
		}
		m.stripes[idx].Unlock()
	}
	return refs, nil
}

// resolve returns the current next_version for key, seeding it from the
// backing object store on first sight within the epoch. Caller must
// hold the stripe lock for key.Object.
func (m *Manager) resolve(key consensustx.ConsensusObjectSequenceKey, si consensustx.SharedInput, cco *quarantine.CCO) (consensustx.Version, error) {
	if v, ok := cco.NextSharedObjectVersions[key]; ok {
		return v, nil
	}

	got, err := m.quarantine.GetNextSharedObjectVersions([]consensustx.ConsensusObjectSequenceKey{key})
	if err != nil {
		return 0, err
	}
	if v, ok := got[key]; ok {
		return v, nil
	}

	cur, liveInLifetime, err := m.objects.SharedObjectVersion(si.Object, si.InitialSharedVersion)
	if err != nil {
		return 0, err
	}
	if liveInLifetime {
		return cur, nil
	}
	return si.InitialSharedVersion, nil
}

// RequireAssigned returns the next_version already staged for key within
// cco or the quarantine-over-store view, fail-stopping (spec §4.3
// "Failure") if it is absent. It serves callers that expect version
// assignment to have already happened this commit; neither checkpoint
// construction nor prologue synthesis in this module calls it.
func (m *Manager) RequireAssigned(key consensustx.ConsensusObjectSequenceKey, cco *quarantine.CCO) consensustx.Version {
	if v, ok := cco.NextSharedObjectVersions[key]; ok {
		return v
	}
	got, err := m.quarantine.GetNextSharedObjectVersions([]consensustx.ConsensusObjectSequenceKey{key})
	if err != nil {
		consensustx.Fatal(m.logger, consensustx.NewStorageError("require-assigned/"+key.String(), err))
	}
	if v, ok := got[key]; ok {
		return v
	}
	consensustx.Fatal(m.logger, consensustx.ErrMissingVersionAssignment)
	panic("unreachable")
}
