// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package randomness implements the randomness manager (C6): the DKG
// progress state machine and the per-round randomness reservation it
// gates, backed by the dkg_* and randomness_* tables in epochstore.
package randomness
