// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package reconfig implements the epoch-close reconfiguration state
// machine (C8): AcceptAllTx -> RejectNewCerts -> RejectAllCerts ->
// RejectAllTx, backed by the reconfig_state and end_of_publish tables
// in epochstore.
package reconfig
