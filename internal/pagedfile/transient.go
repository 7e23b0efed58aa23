// Copyright 2026 The hammersbald Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package pagedfile

import (
	"io"
	"sync"

	"github.com/hammersbald/hammersbald/internal/page"
)

// Transient is an in-memory File, used by tests and by hosts that want
// a throwaway database.
type Transient struct {
	mu    sync.Mutex
	pages map[uint64]*page.Page
	len   uint64
}

var _ File = (*Transient)(nil)

func NewTransient() *Transient {
	return &Transient{pages: map[uint64]*page.Page{}}
}

func (t *Transient) ReadPage(num uint64) (*page.Page, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if num*page.Size >= t.len {
		return nil, nil
	}
	if pg, ok := t.pages[num]; ok {
		return pg.Clone(), nil
	}
	return page.New(num), nil
}

func (t *Transient) WritePage(pg *page.Page) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pages[pg.Num] = pg.Clone()
	if end := (pg.Num + 1) * page.Size; end > t.len {
		t.len = end
	}
	return nil
}

func (t *Transient) Len() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.len
}

func (t *Transient) Truncate(n uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n >= t.len {
		return nil
	}
	end := n
	if rem := n % page.Size; rem != 0 {
		end = n - rem + page.Size
	}
	for num, pg := range t.pages {
		if num*page.Size >= end {
			delete(t.pages, num)
			continue
		}
		if rem := n % page.Size; rem != 0 && num == n/page.Size {
			zero := make([]byte, page.Size-rem)
			pg.Write(int(rem), zero)
		}
	}
	t.len = end
	return nil
}

func (t *Transient) Sync() error  { return nil }
func (t *Transient) Close() error { return nil }

// MemFlat is an in-memory Flat, backing the log file in tests.
type MemFlat struct {
	mu  sync.Mutex
	buf []byte
}

var _ Flat = (*MemFlat)(nil)

func NewMemFlat() *MemFlat {
	return &MemFlat{}
}

func (m *MemFlat) ReadAt(b []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if off >= int64(len(m.buf)) {
		return 0, io.EOF
	}
	n := copy(b, m.buf[off:])
	if n < len(b) {
		return n, io.EOF
	}
	return n, nil
}

func (m *MemFlat) Append(b []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buf = append(m.buf, b...)
	return nil
}

func (m *MemFlat) Size() (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.buf)), nil
}

func (m *MemFlat) Truncate(n int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n < int64(len(m.buf)) {
		m.buf = m.buf[:n]
	}
	return nil
}

func (m *MemFlat) Sync() error  { return nil }
func (m *MemFlat) Close() error { return nil }
