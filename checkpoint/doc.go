// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package checkpoint implements the checkpoint proposal builder (C10):
// turning a commit's scheduled transaction roots into one or two
// PendingCheckpoint records, and later recording a constructed
// checkpoint's summary/contents digests once the builder service
// finishes signing it.
package checkpoint
