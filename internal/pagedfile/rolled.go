// Copyright 2026 The hammersbald Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package pagedfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/hammersbald/hammersbald/internal/page"
)

// Rolled is a sequence of segment files <name>.<n>.<ext>, each at most
// segSize bytes.  A logical byte offset o addresses file o/segSize at
// byte o%segSize.
type Rolled struct {
	name    string
	ext     string
	segSize uint64

	mu    sync.Mutex
	files map[uint32]*single
	len   uint64
}

var _ File = (*Rolled)(nil)

// OpenRolled opens (or creates) the family with the given path prefix
// and extension, picking up any existing numbered segments.
func OpenRolled(name, ext string) (*Rolled, error) {
	return openRolledSize(name, ext, MaxSegmentSize)
}

// openRolledSize exists so tests can roll over at tiny segment sizes.
func openRolledSize(name, ext string, segSize uint64) (*Rolled, error) {
	if segSize%page.Size != 0 {
		return nil, fmt.Errorf("segment size %d not a multiple of the page size", segSize)
	}
	r := &Rolled{
		name:    name,
		ext:     ext,
		segSize: segSize,
		files:   map[uint32]*single{},
	}
	if err := r.scan(); err != nil {
		return nil, err
	}
	return r, nil
}

// scan picks up existing <base>.<n>.<ext> files in the family's
// directory.
func (r *Rolled) scan() error {
	dir := filepath.Dir(r.name)
	base := filepath.Base(r.name)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("db directory %s: %w", dir, err)
		}
		return fmt.Errorf("os.ReadDir(%s): %w", dir, err)
	}
	var highest uint32
	var found bool
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		rest, ok := strings.CutPrefix(e.Name(), base+".")
		if !ok {
			continue
		}
		numStr, ok := strings.CutSuffix(rest, "."+r.ext)
		if !ok {
			continue
		}
		num, err := strconv.ParseUint(numStr, 10, 32)
		if err != nil {
			continue
		}
		idx := uint32(num)
		s, err := openSingle(filepath.Join(dir, e.Name()), uint64(idx)*r.segSize, r.segSize)
		if err != nil {
			return err
		}
		r.files[idx] = s
		if s.len() > 0 && (!found || idx > highest) {
			highest = idx
			found = true
		}
	}
	if found {
		r.len = uint64(highest)*r.segSize + r.files[highest].len()
	}
	return nil
}

func (r *Rolled) segPath(idx uint32) string {
	return fmt.Sprintf("%s.%d.%s", r.name, idx, r.ext)
}

// segment returns the file covering idx, creating it if needed.  File
// creation at a rollover boundary is retried once; this is the only
// local recovery in the engine.
func (r *Rolled) segment(idx uint32) (*single, error) {
	if s, ok := r.files[idx]; ok {
		return s, nil
	}
	s, err := openSingle(r.segPath(idx), uint64(idx)*r.segSize, r.segSize)
	if err != nil {
		s, err = openSingle(r.segPath(idx), uint64(idx)*r.segSize, r.segSize)
		if err != nil {
			return nil, err
		}
	}
	r.files[idx] = s
	return s, nil
}

func (r *Rolled) ReadPage(num uint64) (*page.Page, error) {
	off := num * page.Size
	r.mu.Lock()
	if off >= r.len {
		r.mu.Unlock()
		return nil, nil
	}
	s, ok := r.files[uint32(off/r.segSize)]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("missing segment for page %d", num)
	}
	return s.readPage(num)
}

func (r *Rolled) WritePage(pg *page.Page) error {
	off := pg.Num * page.Size
	idx := uint32(off / r.segSize)

	r.mu.Lock()
	s, err := r.segment(idx)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	if off+page.Size > r.len {
		r.len = off + page.Size
	}
	r.mu.Unlock()

	return s.writePage(pg)
}

func (r *Rolled) Len() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.len
}

// Truncate removes whole trailing segments beyond n and cuts the
// boundary segment.
func (r *Rolled) Truncate(n uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n >= r.len {
		return nil
	}
	boundary := uint32(n / r.segSize)
	for idx, s := range r.files {
		if idx > boundary || (idx == boundary && n == uint64(idx)*r.segSize && idx > 0) {
			if err := s.remove(); err != nil {
				return err
			}
			delete(r.files, idx)
		}
	}
	if s, ok := r.files[boundary]; ok {
		if err := s.truncate(n - uint64(boundary)*r.segSize); err != nil {
			return err
		}
	}
	// the stored length stays page-granular; the tail of the boundary
	// page has been zeroed above
	r.len = n
	if rem := n % page.Size; rem != 0 {
		r.len = n - rem + page.Size
	}
	return nil
}

func (r *Rolled) Sync() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.files {
		if err := s.sync(); err != nil {
			return err
		}
	}
	return nil
}

func (r *Rolled) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var first error
	for _, s := range r.files {
		if err := s.close(); err != nil && first == nil {
			first = err
		}
	}
	r.files = map[uint32]*single{}
	return first
}
