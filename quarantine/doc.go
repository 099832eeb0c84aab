// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package quarantine implements the in-memory staging area for consensus
// commit outputs awaiting checkpoint certification (spec C2). A CCO
// (consensus commit output) is pushed once per processed commit and held
// until a finalized checkpoint at or above its height arrives; only then
// is it folded into the durable epochstore tables in a single batch and
// dropped.
//
// Every read is a stacked view: quarantine first, epochstore underneath
// (spec §9 "quarantine as stacked view over durable store"), mirroring
// the teacher's layered-cache-over-store pattern (chains/atomic/memory.go
// keeps an unflushed in-memory delta ahead of the committed backing
// store).
package quarantine
