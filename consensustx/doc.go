// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package consensustx defines the shared identifiers and wire-ish types
// consumed by every component of the consensus commit core: transaction
// keys, consensus message keys, object references, and the consensus
// commit input itself.
package consensustx
