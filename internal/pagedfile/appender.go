// Copyright 2026 The hammersbald Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package pagedfile

import (
	"fmt"
	"sync"

	"github.com/hammersbald/hammersbald/internal/page"
	"github.com/hammersbald/hammersbald/internal/pref"
)

// Appender turns a page-granular File into a byte-addressed append
// stream.  The tail page is kept in memory until it fills; readers see
// it immediately, which makes uncommitted appends visible mid-batch.
type Appender struct {
	f File

	mu  sync.RWMutex
	pos pref.PRef
	cur *page.Page
}

// NewAppender resumes appending at the logical end pos.  The partial
// tail page, if any, is reloaded lazily from f.
func NewAppender(f File, pos pref.PRef) *Appender {
	return &Appender{f: f, pos: pos}
}

// Pos is the current logical end of the stream.
func (a *Appender) Pos() pref.PRef {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.pos
}

// Append stores buf at the current end and returns the PRef of its
// first byte.  The PRef is assigned before the bytes reach disk.
func (a *Appender) Append(buf []byte) (pref.PRef, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	start := a.pos
	if !start.Add(uint64(len(buf))).Valid() {
		return pref.NIL, fmt.Errorf("append would grow the store past 2^48 bytes")
	}
	for len(buf) > 0 {
		if a.cur == nil {
			pg, err := a.f.ReadPage(a.pos.PageNumber())
			if err != nil {
				return pref.NIL, err
			}
			if pg == nil {
				pg = page.New(a.pos.PageNumber())
			}
			a.cur = pg
		}
		inPage := a.pos.PagePos()
		n := copy(a.cur.Content[inPage:], buf)
		buf = buf[n:]
		a.pos = a.pos.Add(uint64(n))
		if a.pos.PagePos() == 0 {
			if err := a.f.WritePage(a.cur); err != nil {
				return pref.NIL, err
			}
			a.cur = nil
		}
	}
	return start, nil
}

// ReadAt fills b from logical position p.  Reads of the in-memory tail
// page are served without touching f.
func (a *Appender) ReadAt(p pref.PRef, b []byte) error {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if p.Add(uint64(len(b))) > a.pos {
		return fmt.Errorf("read [%s, +%d) past logical end %s: %w", p, len(b), a.pos, ErrShortRead)
	}
	read := 0
	for read < len(b) {
		num := p.PageNumber()
		var pg *page.Page
		if a.cur != nil && a.cur.Num == num {
			pg = a.cur
		} else {
			var err error
			pg, err = a.f.ReadPage(num)
			if err != nil {
				return err
			}
			if pg == nil {
				return fmt.Errorf("page %d missing below logical end: %w", num, ErrShortRead)
			}
		}
		inPage := p.PagePos()
		n := copy(b[read:], pg.Content[inPage:])
		read += n
		p = p.Add(uint64(n))
	}
	return nil
}

// Flush pushes a copy of the partial tail page down to f so the bytes
// appended so far can reach disk.  The tail page stays in memory and is
// rewritten when it fills further.
func (a *Appender) Flush() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cur != nil && a.pos.PagePos() != 0 {
		return a.f.WritePage(a.cur.Clone())
	}
	return nil
}

// Truncate resets the logical end to n.  An in-memory tail page that
// holds bytes below n is kept, with its bytes from n on zeroed; any
// other tail page is discarded.
func (a *Appender) Truncate(n uint64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	end := pref.PRef(n)
	if a.cur != nil && a.cur.Num == end.PageNumber() && end.PagePos() != 0 {
		clear(a.cur.Content[end.PagePos():])
	} else {
		a.cur = nil
	}
	a.pos = end
	return a.f.Truncate(n)
}
