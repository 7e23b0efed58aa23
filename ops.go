// Copyright 2026 The hammersbald Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package hammersbald

import (
	"errors"
	"fmt"

	"github.com/hammersbald/hammersbald/internal/format"
	"github.com/hammersbald/hammersbald/internal/pagedfile"
	"github.com/hammersbald/hammersbald/internal/pref"
)

// PRef is a stable 48-bit persistent reference to a stored envelope.
type PRef = pref.PRef

// NIL is the reserved "no pointer" PRef.
const NIL = pref.NIL

// PutKeyed stores value under key and returns the envelope's PRef.  A
// later PutKeyed with the same key supersedes this one; the envelope
// itself is never mutated and stays reachable through the returned
// PRef.  The write is durable after the next Batch.
func (db *Database) PutKeyed(key, value []byte) (PRef, error) {
	if len(key) == 0 || len(key) > format.MaxKeyLen {
		return NIL, ErrKeyTooLong
	}
	if 1+len(key)+len(value) > format.MaxPayload {
		return NIL, ErrValueTooLarge
	}
	if db.closed.Load() {
		return NIL, ErrClosed
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	if db.failed != nil {
		return NIL, fmt.Errorf("%w: %v", ErrReadOnly, db.failed)
	}
	if err := db.beginBatchLocked(); err != nil {
		db.failed = err
		return NIL, err
	}

	p, err := db.data.Append(format.TagKeyed, format.EncodeKeyed(key, value))
	if err != nil {
		db.failed = err
		return NIL, err
	}
	if err := db.mem.Put(key, p); err != nil {
		if errors.Is(err, ErrSlotSpaceExhausted) {
			// the insert is refused but the engine stays healthy
			return NIL, err
		}
		db.failed = err
		return NIL, err
	}
	putsTotal.Inc()
	return p, nil
}

// Put stores value without an index entry; it is reachable only by the
// returned PRef.
func (db *Database) Put(value []byte) (PRef, error) {
	if len(value) == 0 || len(value) > format.MaxPayload {
		return NIL, ErrValueTooLarge
	}
	if db.closed.Load() {
		return NIL, ErrClosed
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	if db.failed != nil {
		return NIL, fmt.Errorf("%w: %v", ErrReadOnly, db.failed)
	}
	if err := db.beginBatchLocked(); err != nil {
		db.failed = err
		return NIL, err
	}

	p, err := db.data.Append(format.TagReferenced, value)
	if err != nil {
		db.failed = err
		return NIL, err
	}
	putsTotal.Inc()
	return p, nil
}

// GetKeyed returns the most recently inserted value for key, with the
// PRef of its envelope.  ok is false if the key was never stored.
// Uncommitted inserts of the current batch are visible.
func (db *Database) GetKeyed(key []byte) (p PRef, value []byte, ok bool, err error) {
	if len(key) == 0 || len(key) > format.MaxKeyLen {
		return NIL, nil, false, ErrKeyTooLong
	}
	if db.closed.Load() {
		return NIL, nil, false, ErrClosed
	}
	getsTotal.Inc()
	return db.mem.Get(key)
}

// Get reads the envelope at p, returning its value: the payload of a
// Referenced envelope, or the value part of a Keyed one.
func (db *Database) Get(p PRef) ([]byte, error) {
	if db.closed.Load() {
		return nil, ErrClosed
	}
	getsTotal.Inc()

	tag, payload, err := db.data.Envelope(p)
	if err != nil {
		if errors.Is(err, pagedfile.ErrShortRead) {
			return nil, fmt.Errorf("no envelope at %s: %w", p, ErrCorrupt)
		}
		return nil, err
	}
	switch tag {
	case format.TagReferenced:
		return payload, nil
	case format.TagKeyed:
		_, value, err := format.ParseKeyed(payload)
		return value, err
	default:
		return nil, fmt.Errorf("envelope at %s has tag %d: %w", p, tag, ErrCorrupt)
	}
}

// MayHaveKey is a probabilistic existence test walking only the 64-bit
// hashes of key's chain: never a false negative, false positives with
// probability about chain-length / 2^64.
func (db *Database) MayHaveKey(key []byte) (bool, error) {
	if len(key) == 0 || len(key) > format.MaxKeyLen {
		return false, ErrKeyTooLong
	}
	if db.closed.Load() {
		return false, ErrClosed
	}
	return db.mem.MayHave(key)
}

// Scan walks every stored envelope in insertion order.  key is nil for
// envelopes stored with Put.  Iteration stops when fn returns false.
// The order is insertion order, never key order.
func (db *Database) Scan(fn func(p PRef, key, value []byte) bool) error {
	if db.closed.Load() {
		return ErrClosed
	}
	return db.data.Scan(func(p pref.PRef, tag byte, payload []byte) bool {
		switch tag {
		case format.TagKeyed:
			k, v, err := format.ParseKeyed(payload)
			if err != nil {
				return false
			}
			return fn(p, k, v)
		case format.TagReferenced:
			return fn(p, nil, payload)
		default:
			return true
		}
	})
}

// Stats is a snapshot of the engine's growth and storage state.
type Stats struct {
	Slots        uint64
	Level        uint32
	SplitPointer uint64
	Entries      uint64
	Splits       uint64
	DataBytes    uint64
	LinkBytes    uint64
	TableBytes   uint64
	CacheHits    uint64
	CacheMisses  uint64
}

// Stats reports the current table shape and store sizes.
func (db *Database) Stats() Stats {
	slots, level, step, count, splits := db.mem.Params()
	s := Stats{
		Slots:        slots,
		Level:        level,
		SplitPointer: step,
		Entries:      count,
		Splits:       splits,
		DataBytes:    uint64(db.data.Pos()),
		LinkBytes:    uint64(db.link.Pos()),
		TableBytes:   db.table.Len(),
	}
	dh, dm := db.dataCache.Stats()
	lh, lm := db.linkCache.Stats()
	s.CacheHits = dh + lh
	s.CacheMisses = dm + lm
	return s
}
