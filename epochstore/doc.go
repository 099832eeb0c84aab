// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package epochstore implements the durable per-epoch key/value tables
// (spec C1): a flat KV store keyed by (epoch_id, table_name, key),
// supporting atomic multi-key write batches. Every exposed write goes
// through a Batch so a crash always leaves the store equivalent to some
// committed prefix of batches (spec §4.1 contract).
//
// Table layout is semantic, not physical: each "table" is just a byte
// prefix under one shared github.com/luxfi/database.Database handle,
// mirroring how the teacher repo treats database.Database as the single
// backing KV store for whatever logical tables a component needs
// (chains/atomic/memory.go, core/interfaces/shared.go).
package epochstore
