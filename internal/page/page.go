// Copyright 2026 The hammersbald Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package page holds the fixed-size unit of read and write for the
// persistent files.
package page

import (
	"encoding/binary"

	"github.com/hammersbald/hammersbald/internal/pref"
)

// Size of a page in bytes.
const Size = pref.PageSize

// Page is one 4 KiB page of a persistent file.  Num is the page's
// position in its file family; it is not stored on disk.
type Page struct {
	Num     uint64
	Content [Size]byte
}

// New returns a zeroed page at the given page number.
func New(num uint64) *Page {
	return &Page{Num: num}
}

// FromBuf builds a page from bytes read off disk.
func FromBuf(num uint64, buf []byte) *Page {
	p := &Page{Num: num}
	copy(p.Content[:], buf)
	return p
}

// Clone returns an independent copy of p.
func (p *Page) Clone() *Page {
	c := *p
	return &c
}

// Write copies b into the page at pos.
func (p *Page) Write(pos int, b []byte) {
	copy(p.Content[pos:pos+len(b)], b)
}

// Read copies len(b) bytes out of the page at pos.
func (p *Page) Read(pos int, b []byte) {
	copy(b, p.Content[pos:pos+len(b)])
}

// PutPRef writes a big-endian PRef at pos.
func (p *Page) PutPRef(pos int, r pref.PRef) {
	pref.Put(p.Content[pos:pos+pref.Size], r)
}

// PRefAt reads a big-endian PRef at pos.
func (p *Page) PRefAt(pos int) pref.PRef {
	return pref.Get(p.Content[pos : pos+pref.Size])
}

// PutUint64 writes a big-endian uint64 at pos.
func (p *Page) PutUint64(pos int, n uint64) {
	binary.BigEndian.PutUint64(p.Content[pos:pos+8], n)
}

// Uint64At reads a big-endian uint64 at pos.
func (p *Page) Uint64At(pos int) uint64 {
	return binary.BigEndian.Uint64(p.Content[pos : pos+8])
}

// PutUint16 writes a big-endian uint16 at pos.
func (p *Page) PutUint16(pos int, n uint16) {
	binary.BigEndian.PutUint16(p.Content[pos:pos+2], n)
}

// Uint16At reads a big-endian uint16 at pos.
func (p *Page) Uint16At(pos int) uint16 {
	return binary.BigEndian.Uint16(p.Content[pos : pos+2])
}

// PutUint32 writes a big-endian uint32 at pos.
func (p *Page) PutUint32(pos int, n uint32) {
	binary.BigEndian.PutUint32(p.Content[pos:pos+4], n)
}

// Uint32At reads a big-endian uint32 at pos.
func (p *Page) Uint32At(pos int) uint32 {
	return binary.BigEndian.Uint32(p.Content[pos : pos+4])
}
