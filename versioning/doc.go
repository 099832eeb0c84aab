// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package versioning implements the shared-object version manager (spec
// C3): assigning each transaction's declared shared inputs a concrete
// version, deterministically, from the post-reorder order established by
// the commit handler. Per-object critical sections are protected by a
// fixed-width striped mutex table rather than one lock per object, the
// same tradeoff the teacher makes for its per-chain locking in
// core/tracker.
package versioning
