// Copyright 2026 The hammersbald Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package pref defines the 48-bit persistent pointer used to address
// bytes in the append stores and the hash table.
package pref

import (
	"encoding/binary"
	"fmt"
)

// Size is the on-disk size of a PRef in bytes.
const Size = 6

// PageSize is the unit of read and write for all persistent files.
const PageSize = 4096

// NIL marks "no pointer".  It is the highest representable 48-bit value,
// so every valid PRef compares below it.
const NIL = PRef(1<<48 - 1)

// PRef is a pointer to persistent data, limited to 2^48-1.
type PRef uint64

// Valid reports whether p addresses data (is not NIL and fits 48 bits).
func (p PRef) Valid() bool {
	return p < NIL
}

// Add advances p by n bytes.
func (p PRef) Add(n uint64) PRef {
	return PRef(uint64(p) + n)
}

// PageNumber is the number of the page containing p.
func (p PRef) PageNumber() uint64 {
	return uint64(p) / PageSize
}

// PagePos is the byte position of p within its page.
func (p PRef) PagePos() int {
	return int(uint64(p) % PageSize)
}

// ThisPage is the PRef of the first byte of the page containing p.
func (p PRef) ThisPage() PRef {
	return PRef(uint64(p) / PageSize * PageSize)
}

// NextPage is the PRef of the first byte of the page after p's.
func (p PRef) NextPage() PRef {
	return p.ThisPage().Add(PageSize)
}

func (p PRef) String() string {
	if p == NIL {
		return "NIL"
	}
	return fmt.Sprintf("%d", uint64(p))
}

// Put writes p big-endian into the first 6 bytes of b.
func Put(b []byte, p PRef) {
	_ = b[Size-1]
	binary.BigEndian.PutUint16(b[0:2], uint16(uint64(p)>>32))
	binary.BigEndian.PutUint32(b[2:6], uint32(uint64(p)))
}

// Get reads a big-endian PRef from the first 6 bytes of b.
func Get(b []byte) PRef {
	_ = b[Size-1]
	hi := uint64(binary.BigEndian.Uint16(b[0:2]))
	lo := uint64(binary.BigEndian.Uint32(b[2:6]))
	return PRef(hi<<32 | lo)
}
