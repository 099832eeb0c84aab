// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package congestion implements the congestion tracker (spec C4) and its
// auxiliary execution-time estimator (spec §4.11): per-commit admission
// control over shared-object execution cost, and a per-authority rolling
// estimate of Move call cost in microseconds used by the
// ExecutionTimeEstimate congestion mode.
package congestion
