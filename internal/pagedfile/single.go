// Copyright 2026 The hammersbald Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package pagedfile

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/hammersbald/hammersbald/internal/page"
)

// single is one segment file of a rolled family.  base is the logical
// byte offset its first byte covers.
type single struct {
	path string
	base uint64
	max  uint64

	mu   sync.Mutex
	f    *os.File
	size uint64
}

func openSingle(path string, base, max uint64) (*single, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("os.OpenFile(%s): %w", path, err)
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("f.Stat: %w", err)
	}
	return &single{
		path: path,
		base: base,
		max:  max,
		f:    f,
		size: uint64(st.Size()),
	}, nil
}

func (s *single) readPage(num uint64) (*page.Page, error) {
	off := num * page.Size
	if off < s.base || off >= s.base+s.max {
		return nil, fmt.Errorf("page %d outside segment %s", num, s.path)
	}
	local := off - s.base

	s.mu.Lock()
	defer s.mu.Unlock()
	if local >= s.size {
		return nil, nil
	}
	var buf [page.Size]byte
	if _, err := s.f.ReadAt(buf[:], int64(local)); err != nil {
		return nil, fmt.Errorf("f.ReadAt(%s, %d): %w", s.path, local, err)
	}
	return page.FromBuf(num, buf[:]), nil
}

func (s *single) writePage(pg *page.Page) error {
	off := pg.Num * page.Size
	if off < s.base || off >= s.base+s.max {
		return fmt.Errorf("page %d outside segment %s", pg.Num, s.path)
	}
	local := off - s.base

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.f.WriteAt(pg.Content[:], int64(local)); err != nil {
		return fmt.Errorf("f.WriteAt(%s, %d): %w", s.path, local, err)
	}
	if local+page.Size > s.size {
		s.size = local + page.Size
	}
	return nil
}

func (s *single) len() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// truncate cuts the segment to local length n, zeroing the tail of the
// boundary page so stale bytes cannot be misread as envelope headers.
func (s *single) truncate(n uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n >= s.size {
		return nil
	}
	keep := n
	if rem := n % page.Size; rem != 0 {
		keep = n - rem + page.Size
	}
	if err := s.f.Truncate(int64(keep)); err != nil {
		return fmt.Errorf("f.Truncate(%s): %w", s.path, err)
	}
	s.size = keep
	if rem := n % page.Size; rem != 0 {
		zero := make([]byte, page.Size-rem)
		if _, err := s.f.WriteAt(zero, int64(n)); err != nil {
			return fmt.Errorf("f.WriteAt(%s): %w", s.path, err)
		}
	}
	return nil
}

func (s *single) sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := unix.Fdatasync(int(s.f.Fd())); err != nil {
		return fmt.Errorf("fdatasync(%s): %w", s.path, err)
	}
	return nil
}

func (s *single) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}

func (s *single) remove() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.f.Close(); err != nil {
		return err
	}
	return os.Remove(s.path)
}
