// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package epochstore

import (
	"bytes"
	"fmt"

	"github.com/luxfi/consensus-core/consensustx"
	"github.com/luxfi/database"
)

// Store is the durable per-epoch KV handle (spec C1). All reads consult
// only this store; the stacked "quarantine first" view described in
// spec §4.2/§9 is implemented one layer up, in package quarantine.
type Store struct {
	db    database.Database
	epoch uint64

	txLocks txLocks
}

// New wraps db as the epoch table store for epoch.
func New(epoch uint64, db database.Database) *Store {
	return &Store{db: db, epoch: epoch}
}

// Epoch returns the epoch this store belongs to.
func (s *Store) Epoch() uint64 { return s.epoch }

// key builds the physical (epoch_id, table_name, key) composite key.
func (s *Store) key(table string, k []byte) []byte {
	return compositeKey(s.epoch, table, k)
}

func compositeKey(epoch uint64, table string, k []byte) []byte {
	buf := make([]byte, 0, 8+len(table)+1+len(k))
	buf = append(buf, encodeUint64(epoch)...)
	buf = append(buf, []byte(table)...)
	buf = append(buf, 0) // NUL separator: table names never contain NUL
	buf = append(buf, k...)
	return buf
}

// get reads and gob-decodes a value out of table, returning (_, false,
// nil) on a clean miss.
func (s *Store) get(table string, k []byte, out any) (bool, error) {
	raw, err := s.db.Get(s.key(table, k))
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, consensustx.NewStorageError("get/"+table, err)
	}
	if err := decodeValue(raw, out); err != nil {
		return false, consensustx.NewStorageError("decode/"+table, err)
	}
	return true, nil
}

func (s *Store) has(table string, k []byte) (bool, error) {
	ok, err := s.db.Has(s.key(table, k))
	if err != nil {
		return false, consensustx.NewStorageError("has/"+table, err)
	}
	return ok, nil
}

// iterateTable scans every key currently stored under table for this
// epoch, gob-decoding each value into a freshly allocated copy of
// sample's type via decodeInto, and calling fn with the raw, table-local
// key suffix. It is used by components that must enumerate a whole
// table (e.g. the deferral store range-loads, or rebuilding in-memory
// aggregator state at epoch start).
func (s *Store) iterateTable(table string, decodeInto func(raw []byte) error, fn func(localKey []byte) error) error {
	prefix := s.key(table, nil)
	it := s.db.NewIteratorWithPrefix(prefix)
	defer it.Release()
	for it.Next() {
		localKey := bytes.TrimPrefix(it.Key(), prefix)
		if err := decodeInto(it.Value()); err != nil {
			return consensustx.NewStorageError("decode/"+table, err)
		}
		if err := fn(localKey); err != nil {
			return err
		}
	}
	if err := it.Error(); err != nil {
		return consensustx.NewStorageError("iterate/"+table, err)
	}
	return nil
}

func isNotFound(err error) bool {
	return err == database.ErrNotFound
}

// Batch accumulates writes across any number of tables for this epoch
// and commits them atomically (spec §4.1 contract: "every exposed write
// is batch-atomic").
type Batch struct {
	epoch uint64
	b     database.Batch
}

// NewBatch starts a new atomic write batch against this store.
func (s *Store) NewBatch() *Batch {
	return &Batch{epoch: s.epoch, b: s.db.NewBatch()}
}

// Write commits every operation staged on the batch atomically.
func (b *Batch) Write() error {
	if err := b.b.Write(); err != nil {
		return consensustx.NewStorageError("batch write", err)
	}
	return nil
}

// Size reports the number of operations staged so far.
func (b *Batch) Size() int { return b.b.Size() }

func (b *Batch) key(table string, k []byte) []byte {
	return compositeKey(b.epoch, table, k)
}

func (b *Batch) put(table string, k []byte, v any) error {
	raw, err := encodeValue(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", table, err)
	}
	if err := b.b.Put(b.key(table, k), raw); err != nil {
		return consensustx.NewStorageError("put/"+table, err)
	}
	return nil
}

func (b *Batch) putRaw(table string, k, v []byte) error {
	if err := b.b.Put(b.key(table, k), v); err != nil {
		return consensustx.NewStorageError("put/"+table, err)
	}
	return nil
}

func (b *Batch) delete(table string, k []byte) error {
	if err := b.b.Delete(b.key(table, k)); err != nil {
		return consensustx.NewStorageError("delete/"+table, err)
	}
	return nil
}
