// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package jwk implements the per-epoch JWK aggregator (C7): a
// stake-weighted vote tally over (issuer, key id) pairs that activates a
// key once its voters cross committee quorum, backed by the
// pending_jwks, active_jwks, and jwk_aggregator_votes tables in
// epochstore.
package jwk
