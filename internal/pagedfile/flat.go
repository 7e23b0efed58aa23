// Copyright 2026 The hammersbald Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package pagedfile

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// OSFlat is a Flat backed by one real file; it backs the log.
type OSFlat struct {
	path string
	f    *os.File
	size int64
}

var _ Flat = (*OSFlat)(nil)

func OpenFlat(path string) (*OSFlat, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("os.OpenFile(%s): %w", path, err)
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("f.Stat: %w", err)
	}
	return &OSFlat{path: path, f: f, size: st.Size()}, nil
}

func (o *OSFlat) ReadAt(b []byte, off int64) (int, error) {
	return o.f.ReadAt(b, off)
}

func (o *OSFlat) Append(b []byte) error {
	if _, err := o.f.WriteAt(b, o.size); err != nil {
		return fmt.Errorf("f.WriteAt(%s, %d): %w", o.path, o.size, err)
	}
	o.size += int64(len(b))
	return nil
}

func (o *OSFlat) Size() (int64, error) {
	return o.size, nil
}

func (o *OSFlat) Truncate(n int64) error {
	if err := o.f.Truncate(n); err != nil {
		return fmt.Errorf("f.Truncate(%s): %w", o.path, err)
	}
	if n < o.size {
		o.size = n
	}
	return nil
}

func (o *OSFlat) Sync() error {
	if err := unix.Fdatasync(int(o.f.Fd())); err != nil {
		return fmt.Errorf("fdatasync(%s): %w", o.path, err)
	}
	return nil
}

func (o *OSFlat) Close() error {
	return o.f.Close()
}
