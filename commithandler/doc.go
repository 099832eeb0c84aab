// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package commithandler implements the consensus commit handler (C9):
// the orchestrator that classifies, verifies, defers, cancels, and
// schedules the transactions of one consensus commit, assembling the
// resulting pending checkpoint(s) and epoch transitions (spec §4.9).
//
// It is the one package most callers use; every other component in this
// module (epochstore, quarantine, versioning, congestion, deferral,
// randomness, jwk, reconfig, checkpoint, notify) is a leaf this package
// wires together, the way the teacher's engine/chain.Engine composes its
// own leaf collaborators (bootstrap tracker, acceptor, VM handle) behind
// one per-commit entry point.
package commithandler
