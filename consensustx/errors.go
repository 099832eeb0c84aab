// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package consensustx

import (
	"errors"
	"fmt"

	"github.com/luxfi/log"
)

// ErrEpochEnded is returned by any caller that tries to use an epoch
// table handle after the epoch has terminated and the handle has been
// swapped to nil (spec §5, §7).
var ErrEpochEnded = errors.New("epoch ended: rebind to the new epoch")

// ErrDuplicateProcessedMessage is an InvariantViolation: the same CTK was
// recorded twice as processed.
var ErrDuplicateProcessedMessage = errors.New("consensus message processed marker already set")

// ErrMissingVersionAssignment is an InvariantViolation raised when the
// shared-object version manager expects a prior assignment that is not
// present (spec §4.3 Failure).
var ErrMissingVersionAssignment = errors.New("missing shared object version assignment")

// ErrPendingCheckpointExists is an InvariantViolation: duplicate
// checkpoint emission at an already-used height (spec §4.10).
var ErrPendingCheckpointExists = errors.New("pending checkpoint already exists at height")

// StorageError wraps any error surfaced by the durable KV layer. Per
// spec §7 it is always fatal to the validator process; it is not meant
// to be handled, only logged and propagated up to a crash/restart.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// NewStorageError wraps err as a StorageError for operation op.
func NewStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// ByzantineMessage describes an individual consensus message that was
// dropped because it failed author-matching or was otherwise malformed.
// It is a logged WARN, never an error returned up the call stack (spec
// §7 propagation policy).
type ByzantineMessage struct {
	Reason string
	CTK    CTK
}

func (b *ByzantineMessage) Error() string {
	return fmt.Sprintf("byzantine message %s: %s", b.CTK, b.Reason)
}

// LogByzantine logs a dropped byzantine message at WARN and returns it,
// for callers that want to record the drop without propagating it as an
// error.
func LogByzantine(logger log.Logger, ctk CTK, reason string) *ByzantineMessage {
	b := &ByzantineMessage{Reason: reason, CTK: ctk}
	logger.Warn("dropping byzantine consensus message",
		log.Stringer("ctk", ctk),
		log.String("reason", reason),
	)
	return b
}

// Fatal raises an InvariantViolation: it logs the violation at the
// highest level and panics. Invariant violations are systems bugs, not
// recoverable conditions (spec §4.3 Failure, §7).
func Fatal(logger log.Logger, err error) {
	logger.Error("invariant violation", log.Err(err))
	panic(fmt.Errorf("invariant violation: %w", err))
}
