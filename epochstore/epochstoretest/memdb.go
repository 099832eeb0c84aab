// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package epochstoretest provides a deterministic in-memory
// database.Database fake for exercising epochstore (and everything built
// on it) without a real backing store, mirroring the teacher's
// chaintest/sendertest sibling-package convention for test doubles.
package epochstoretest

import (
	"bytes"
	"sort"
	"sync"

	"github.com/luxfi/database"
)

// MemDB is a minimal, non-persistent implementation of
// database.Database backed by a sorted in-memory map.
type MemDB struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// New returns an empty MemDB.
func New() *MemDB {
	return &MemDB{data: make(map[string][]byte)}
}

func (m *MemDB) Has(key []byte) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.data[string(key)]
	return ok, nil
}

func (m *MemDB) Get(key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[string(key)]
	if !ok {
		return nil, database.ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (m *MemDB) Put(key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(value))
	copy(cp, value)
	m.data[string(key)] = cp
	return nil
}

func (m *MemDB) Delete(key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, string(key))
	return nil
}

func (m *MemDB) Close() error { return nil }

func (m *MemDB) NewBatch() database.Batch {
	return &memBatch{db: m}
}

func (m *MemDB) NewIteratorWithPrefix(prefix []byte) database.Iterator {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		if bytes.HasPrefix([]byte(k), prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	entries := make([]entry, 0, len(keys))
	for _, k := range keys {
		entries = append(entries, entry{key: []byte(k), value: m.data[k]})
	}
	return &memIterator{entries: entries, idx: -1}
}

type entry struct {
	key, value []byte
}

type memIterator struct {
	entries []entry
	idx     int
}

func (it *memIterator) Next() bool {
	it.idx++
	return it.idx < len(it.entries)
}

func (it *memIterator) Error() error { return nil }

func (it *memIterator) Key() []byte {
	if it.idx < 0 || it.idx >= len(it.entries) {
		return nil
	}
	return it.entries[it.idx].key
}

func (it *memIterator) Value() []byte {
	if it.idx < 0 || it.idx >= len(it.entries) {
		return nil
	}
	return it.entries[it.idx].value
}

func (it *memIterator) Release() {}

type batchOp struct {
	key, value []byte
	delete     bool
}

type memBatch struct {
	db  *MemDB
	ops []batchOp
}

func (b *memBatch) Put(key, value []byte) error {
	k := append([]byte(nil), key...)
	v := append([]byte(nil), value...)
	b.ops = append(b.ops, batchOp{key: k, value: v})
	return nil
}

func (b *memBatch) Delete(key []byte) error {
	k := append([]byte(nil), key...)
	b.ops = append(b.ops, batchOp{key: k, delete: true})
	return nil
}

func (b *memBatch) Size() int { return len(b.ops) }

func (b *memBatch) Write() error {
	b.db.mu.Lock()
	defer b.db.mu.Unlock()
	for _, op := range b.ops {
		if op.delete {
			delete(b.db.data, string(op.key))
			continue
		}
		b.db.data[string(op.key)] = op.value
	}
	return nil
}

func (b *memBatch) Reset() { b.ops = b.ops[:0] }

func (b *memBatch) Replay(w database.Writer) error {
	for _, op := range b.ops {
		if op.delete {
			if err := w.Delete(op.key); err != nil {
				return err
			}
			continue
		}
		if err := w.Put(op.key, op.value); err != nil {
			return err
		}
	}
	return nil
}
