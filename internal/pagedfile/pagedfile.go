// Copyright 2026 The hammersbald Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package pagedfile provides page-granular storage for the engine's file
// families: real segment files rolled at 1 GiB, and an in-memory variant
// for tests.  The File interface is the substitution point for crash
// simulation.
package pagedfile

import (
	"errors"

	"github.com/hammersbald/hammersbald/internal/page"
)

// MaxSegmentSize is the size cap of one segment file.  It is a multiple
// of the page size, so a page never spans two files.
const MaxSegmentSize = 1 << 30

// ErrShortRead is returned when a read reaches past the end of the
// stored data.
var ErrShortRead = errors.New("read past end of file")

// File is the capability set a file family offers: random page read,
// page write, truncate and fsync.
type File interface {
	// ReadPage returns the page at num, or (nil, nil) if the file does
	// not extend that far.
	ReadPage(num uint64) (*page.Page, error)
	// WritePage stores pg at its position, extending the file if needed.
	WritePage(pg *page.Page) error
	// Len is the stored length in bytes (a multiple of the page size).
	Len() uint64
	// Truncate discards all content at and beyond byte offset n, zeroing
	// the remainder of the boundary page.
	Truncate(n uint64) error
	// Sync flushes OS buffers to stable storage.
	Sync() error
	Close() error
}

// Flat is the byte-granular capability set used by the log file.
type Flat interface {
	ReadAt(b []byte, off int64) (int, error)
	// Append writes b at the current end.
	Append(b []byte) error
	Size() (int64, error)
	Truncate(n int64) error
	Sync() error
	Close() error
}
