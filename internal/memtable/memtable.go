// Copyright 2026 The hammersbald Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package memtable implements the linear-hash index over the slot pages
// and the link store.  The table exposes S = 2^level + step slots; keys
// hash with siphash-2-4 keyed by the database's persistent sip key.
//
// During a batch, inserts accumulate per-slot in memory; commit emits
// them as immutable link nodes prepended to the slot's durable chain.
// A split rewrites the affected slot's whole chain as fresh links, so
// links already on disk are never modified (the old chain head simply
// becomes unreferenced).
package memtable

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/dchest/siphash"

	"github.com/hammersbald/hammersbald/internal/datafile"
	"github.com/hammersbald/hammersbald/internal/format"
	"github.com/hammersbald/hammersbald/internal/pref"
	"github.com/hammersbald/hammersbald/internal/tablefile"
)

const (
	// InitLevel gives a fresh table 512 slots.
	InitLevel = 9
	// DefaultFillTarget is the average chain length that triggers a
	// split.
	DefaultFillTarget = 64

	maxSlots = uint64(1) << 32
)

// ErrSlotSpaceExhausted is returned when an insert would require the
// table to grow past 2^32 slots.
var ErrSlotSpaceExhausted = errors.New("hash table slot space exhausted")

// slotState is a slot touched by the current batch.
type slotState struct {
	// head of the durable chain, ignored under rewrite
	head pref.PRef
	// fresh entries accumulated this batch, newest first
	fresh []format.Entry
	// rewrite means fresh holds the slot's entire content
	rewrite bool
}

// MemTable is the in-memory face of the hash table.
type MemTable struct {
	table *tablefile.Table
	data  *datafile.Store
	link  *datafile.Store

	mu         sync.RWMutex
	sip0, sip1 uint64
	level      uint32
	step       uint64
	count      uint64
	fill       uint32
	splits     uint64
	touched    map[uint64]*slotState
}

// New builds a memtable from persisted header state.
func New(table *tablefile.Table, data, link *datafile.Store, h tablefile.Header) *MemTable {
	fill := h.FillTarget
	if fill == 0 {
		fill = DefaultFillTarget
	}
	return &MemTable{
		table:   table,
		data:    data,
		link:    link,
		sip0:    binary.BigEndian.Uint64(h.SipKey[0:8]),
		sip1:    binary.BigEndian.Uint64(h.SipKey[8:16]),
		level:   h.Level,
		step:    uint64(h.Step),
		count:   h.Count,
		fill:    fill,
		touched: map[uint64]*slotState{},
	}
}

// Hash is the low 64 bits of siphash-128 of key under the table's key.
func (m *MemTable) Hash(key []byte) uint64 {
	lo, _ := siphash.Hash128(m.sip0, m.sip1, key)
	return lo
}

// Slots is the current slot count S.
func (m *MemTable) Slots() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.slots()
}

func (m *MemTable) slots() uint64 {
	return 1<<uint64(m.level) + m.step
}

// slotFor resolves h to a slot index with split-pointer correction.
func (m *MemTable) slotFor(h uint64) uint64 {
	i := h % (1 << uint64(m.level))
	if i < m.step {
		i = h % (1 << uint64(m.level+1))
	}
	return i
}

// slot returns the batch state for i, loading the durable head on
// first touch.
func (m *MemTable) slot(i uint64) (*slotState, error) {
	if st, ok := m.touched[i]; ok {
		return st, nil
	}
	head, err := m.table.Slot(i)
	if err != nil {
		return nil, err
	}
	st := &slotState{head: head}
	m.touched[i] = st
	return st, nil
}

// Put indexes dataRef under key.  At most one split follows the
// insert, keeping batch work bounded.
func (m *MemTable) Put(key []byte, dataRef pref.PRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.count+1 > uint64(m.fill)*m.slots() && m.slots() >= maxSlots {
		return ErrSlotSpaceExhausted
	}

	h := m.Hash(key)
	st, err := m.slot(m.slotFor(h))
	if err != nil {
		return err
	}
	st.fresh = append([]format.Entry{{Hash: h, Data: dataRef}}, st.fresh...)
	m.count++

	if m.count > uint64(m.fill)*m.slots() {
		if err := m.split(); err != nil {
			return err
		}
	}
	return nil
}

// split partitions slot `step` into `step` and `step + 2^level` by
// rehashing its chain with the next-level modulus.
func (m *MemTable) split() error {
	i := m.step
	st, err := m.slot(i)
	if err != nil {
		return err
	}

	entries := st.fresh
	if !st.rewrite {
		rest, err := m.chainEntries(st.head)
		if err != nil {
			return err
		}
		entries = append(append([]format.Entry{}, st.fresh...), rest...)
	}

	sibling := i + 1<<uint64(m.level)
	var keep, move []format.Entry
	for _, e := range entries {
		if e.Hash%(1<<uint64(m.level+1)) == i {
			keep = append(keep, e)
		} else {
			move = append(move, e)
		}
	}
	m.touched[i] = &slotState{fresh: keep, rewrite: true}
	m.touched[sibling] = &slotState{fresh: move, rewrite: true}

	m.step++
	if m.step == 1<<uint64(m.level) {
		m.level++
		m.step = 0
	}
	m.splits++
	return nil
}

// chainEntries collects every entry of a durable chain, head to tail.
func (m *MemTable) chainEntries(head pref.PRef) ([]format.Entry, error) {
	var out []format.Entry
	err := m.walkChain(head, func(e format.Entry) (bool, error) {
		out = append(out, e)
		return true, nil
	})
	return out, err
}

// walkChain visits the chain's entries newest first, stopping when fn
// returns false.
func (m *MemTable) walkChain(head pref.PRef, fn func(format.Entry) (bool, error)) error {
	for p := head; p.Valid(); {
		tag, payload, err := m.link.Envelope(p)
		if err != nil {
			return err
		}
		if tag != format.TagLink {
			return fmt.Errorf("chain node at %s has tag %d: %w", p, tag, format.ErrCorrupt)
		}
		l, err := format.ParseLink(payload)
		if err != nil {
			return err
		}
		if l.Next.Valid() && l.Next >= p {
			return fmt.Errorf("chain at %s does not descend: %w", p, format.ErrCorrupt)
		}
		for _, e := range l.Entries {
			ok, err := fn(e)
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
		}
		p = l.Next
	}
	return nil
}

// visit walks slot state and durable chain for the slot holding h,
// newest entry first.
func (m *MemTable) visit(h uint64, fn func(format.Entry) (bool, error)) error {
	i := m.slotFor(h)
	head := pref.NIL
	if st, ok := m.touched[i]; ok {
		for _, e := range st.fresh {
			ok, err := fn(e)
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
		}
		if st.rewrite {
			return nil
		}
		head = st.head
	} else {
		var err error
		head, err = m.table.Slot(i)
		if err != nil {
			return err
		}
	}
	return m.walkChain(head, fn)
}

// Get returns the most recently inserted value for key.
func (m *MemTable) Get(key []byte) (pref.PRef, []byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	h := m.Hash(key)
	var (
		foundRef pref.PRef = pref.NIL
		foundVal []byte
	)
	err := m.visit(h, func(e format.Entry) (bool, error) {
		if e.Hash != h {
			return true, nil
		}
		tag, payload, err := m.data.Envelope(e.Data)
		if err != nil {
			return false, err
		}
		if tag != format.TagKeyed {
			return false, fmt.Errorf("slot entry at %s points at tag %d: %w", e.Data, tag, format.ErrCorrupt)
		}
		k, v, err := format.ParseKeyed(payload)
		if err != nil {
			return false, err
		}
		if !bytes.Equal(k, key) {
			return true, nil
		}
		foundRef, foundVal = e.Data, v
		return false, nil
	})
	if err != nil {
		return pref.NIL, nil, false, err
	}
	if !foundRef.Valid() {
		return pref.NIL, nil, false, nil
	}
	return foundRef, foundVal, true, nil
}

// MayHave walks the chain comparing only hashes: never a false
// negative, rarely a false positive.
func (m *MemTable) MayHave(key []byte) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	h := m.Hash(key)
	found := false
	err := m.visit(h, func(e format.Entry) (bool, error) {
		if e.Hash == h {
			found = true
			return false, nil
		}
		return true, nil
	})
	return found, err
}

// Flush emits the batch's accumulated entries as link nodes and updates
// the touched slots, then writes the header.  Called at commit, after
// the data store has drained.
func (m *MemTable) Flush(dataEnd pref.PRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, st := range m.touched {
		if len(st.fresh) == 0 && !st.rewrite {
			continue
		}
		head, err := m.emit(st)
		if err != nil {
			return err
		}
		if err := m.table.SetSlot(i, head); err != nil {
			return err
		}
	}
	m.touched = map[uint64]*slotState{}

	return m.table.WriteHeader(m.header(dataEnd))
}

// emit writes st.fresh as chained links, oldest node first so every
// next pointer refers to an already-assigned lower offset.
func (m *MemTable) emit(st *slotState) (pref.PRef, error) {
	tail := st.head
	if st.rewrite {
		tail = pref.NIL
	}
	if len(st.fresh) == 0 {
		return tail, nil
	}

	var groups [][]format.Entry
	for off := 0; off < len(st.fresh); off += format.LinkArity {
		end := off + format.LinkArity
		if end > len(st.fresh) {
			end = len(st.fresh)
		}
		groups = append(groups, st.fresh[off:end])
	}
	for g := len(groups) - 1; g >= 0; g-- {
		payload := format.EncodeLink(format.Link{Entries: groups[g], Next: tail})
		p, err := m.link.Append(format.TagLink, payload)
		if err != nil {
			return pref.NIL, err
		}
		tail = p
	}
	return tail, nil
}

func (m *MemTable) header(dataEnd pref.PRef) tablefile.Header {
	h := tablefile.Header{
		Level:      m.level,
		Step:       uint32(m.step),
		FillTarget: m.fill,
		DataEnd:    dataEnd,
		LinkEnd:    m.link.Pos(),
		Count:      m.count,
	}
	binary.BigEndian.PutUint64(h.SipKey[0:8], m.sip0)
	binary.BigEndian.PutUint64(h.SipKey[8:16], m.sip1)
	return h
}

// Params reports the table's growth state: slot count, level, split
// pointer, entry count and cumulative splits.
func (m *MemTable) Params() (slots uint64, level uint32, step, count, splits uint64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.slots(), m.level, m.step, m.count, m.splits
}
