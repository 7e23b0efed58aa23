// Copyright 2026 The hammersbald Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package tablefile persists the hash table: the header on page 0 and
// the slot pages after it.  Slot pages are the only mutable on-disk
// structure; every modification captures a pre-image for the log the
// first time the page is touched in a batch.
package tablefile

import (
	"fmt"
	"sync"

	"github.com/hammersbald/hammersbald/internal/cache"
	"github.com/hammersbald/hammersbald/internal/format"
	"github.com/hammersbald/hammersbald/internal/page"
	"github.com/hammersbald/hammersbald/internal/pref"
)

const (
	// Magic is "HMBD".
	Magic = uint32(0x484D4244)
	// Version of the on-disk format.
	Version = uint16(1)

	// SlotsPerPage slots fit one page; the last 4 bytes are unused.
	SlotsPerPage = page.Size / pref.Size
)

// header field offsets
const (
	offMagic   = 0
	offVersion = 4
	offLevel   = 6
	offStep    = 10
	offFill    = 14
	offDataEnd = 18
	offLinkEnd = 24
	offSipKey  = 30
	offCount   = 46
)

// Header is the persisted table state on page 0.
type Header struct {
	Level      uint32
	Step       uint32
	FillTarget uint32
	DataEnd    pref.PRef
	LinkEnd    pref.PRef
	SipKey     [16]byte
	Count      uint64
}

// Table wraps the cached slot-page file.
type Table struct {
	cache *cache.Cache

	mu        sync.Mutex
	preimages map[uint64][]byte
}

func New(c *cache.Cache) *Table {
	return &Table{
		cache:     c,
		preimages: map[uint64][]byte{},
	}
}

// ReadHeader loads the header; ok is false for a fresh (empty) file.
func (t *Table) ReadHeader() (Header, bool, error) {
	pg, err := t.cache.ReadPage(0)
	if err != nil {
		return Header{}, false, err
	}
	if pg == nil {
		return Header{}, false, nil
	}
	if pg.Uint32At(offMagic) != Magic {
		return Header{}, false, fmt.Errorf("bad magic %#x on table file: %w", pg.Uint32At(offMagic), format.ErrCorrupt)
	}
	version := pg.Uint16At(offVersion)
	if version != Version {
		return Header{}, false, fmt.Errorf("table format v%d, this build reads v%d: %w", version, Version, format.ErrCorrupt)
	}
	h := Header{
		Level:      pg.Uint32At(offLevel),
		Step:       pg.Uint32At(offStep),
		FillTarget: pg.Uint32At(offFill),
		DataEnd:    pg.PRefAt(offDataEnd),
		LinkEnd:    pg.PRefAt(offLinkEnd),
		Count:      uint64(pg.PRefAt(offCount)),
	}
	pg.Read(offSipKey, h.SipKey[:])
	return h, true, nil
}

// WriteHeader stores h on page 0 (in cache, pinned dirty).
func (t *Table) WriteHeader(h Header) error {
	return t.modify(0, func(pg *page.Page) {
		pg.PutUint32(offMagic, Magic)
		pg.PutUint16(offVersion, Version)
		pg.PutUint32(offLevel, h.Level)
		pg.PutUint32(offStep, h.Step)
		pg.PutUint32(offFill, h.FillTarget)
		pg.PutPRef(offDataEnd, h.DataEnd)
		pg.PutPRef(offLinkEnd, h.LinkEnd)
		pg.Write(offSipKey, h.SipKey[:])
		pg.PutPRef(offCount, pref.PRef(h.Count))
	})
}

func slotPage(i uint64) uint64 {
	return 1 + i/SlotsPerPage
}

func slotPos(i uint64) int {
	return int(i%SlotsPerPage) * pref.Size
}

// Slot returns the chain head stored in slot i, or NIL if the slot's
// page was never written.
func (t *Table) Slot(i uint64) (pref.PRef, error) {
	pg, err := t.cache.ReadPage(slotPage(i))
	if err != nil {
		return pref.NIL, err
	}
	if pg == nil {
		return pref.NIL, nil
	}
	return pg.PRefAt(slotPos(i)), nil
}

// SetSlot stores the chain head p in slot i.
func (t *Table) SetSlot(i uint64, p pref.PRef) error {
	return t.modify(slotPage(i), func(pg *page.Page) {
		pg.PutPRef(slotPos(i), p)
	})
}

// modify applies mutate to the page in cache, capturing a pre-image the
// first time the page is touched within the current batch.  Pages past
// the committed file length need no pre-image: recovery removes them by
// truncation.
func (t *Table) modify(num uint64, mutate func(*page.Page)) error {
	pg, err := t.cache.ReadPage(num)
	if err != nil {
		return err
	}
	if pg == nil {
		pg = newSlotPage(num)
	}

	t.mu.Lock()
	if _, seen := t.preimages[num]; !seen && num*page.Size < t.cache.Len() {
		img := make([]byte, page.Size)
		copy(img, pg.Content[:])
		t.preimages[num] = img
	}
	t.mu.Unlock()

	mutate(pg)
	t.cache.UpdatePage(pg)
	return nil
}

// newSlotPage initializes every slot of a fresh page to NIL.
func newSlotPage(num uint64) *page.Page {
	pg := page.New(num)
	if num == 0 {
		return pg
	}
	for i := 0; i < SlotsPerPage; i++ {
		pg.PutPRef(i*pref.Size, pref.NIL)
	}
	return pg
}

// Preimages returns the pre-batch images captured so far, keyed by page
// number.
func (t *Table) Preimages() map[uint64][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[uint64][]byte, len(t.preimages))
	for num, img := range t.preimages {
		out[num] = img
	}
	return out
}

// FlushDirty writes all modified pages through to the file.
func (t *Table) FlushDirty() error {
	return t.cache.FlushDirty()
}

// EndBatch forgets the captured pre-images; the next modification
// starts a fresh first-touch set.
func (t *Table) EndBatch() {
	t.mu.Lock()
	t.preimages = map[uint64][]byte{}
	t.mu.Unlock()
}

// RestorePage writes a recovered pre-image directly to the file,
// bypassing batch bookkeeping (recovery only).
func (t *Table) RestorePage(num uint64, img []byte) error {
	return t.cache.WritePage(page.FromBuf(num, img))
}

// Len is the committed on-disk length of the table file in bytes.
func (t *Table) Len() uint64 {
	return t.cache.Len()
}

// Truncate cuts the table file (recovery only).
func (t *Table) Truncate(n uint64) error {
	return t.cache.Truncate(n)
}

func (t *Table) Sync() error {
	return t.cache.Sync()
}
