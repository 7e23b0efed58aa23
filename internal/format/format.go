// Copyright 2026 The hammersbald Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package format defines the on-disk framing of the append stores: the
// envelope wrapping every stored value, and the link nodes forming the
// hash table's bucket chains.  All fields are big-endian.
package format

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/hammersbald/hammersbald/internal/pref"
)

// Envelope tags.
const (
	TagKeyed      = byte(0)
	TagReferenced = byte(1)
	TagLink       = byte(2)
)

const (
	// EnvelopeHeaderSize is the 3-byte payload length plus the tag.
	EnvelopeHeaderSize = 4
	// MaxPayload is the largest envelope payload (24-bit length).
	MaxPayload = 1<<24 - 1
	// MaxKeyLen is the largest key a Keyed payload can carry.
	MaxKeyLen = 255

	// LinkArity is the number of entry pairs one link node holds.  A
	// link envelope is 234 bytes, so a node never straddles more than
	// one page boundary.  Fixed as part of format version 1.
	LinkArity = 16

	linkEntrySize = 8 + pref.Size
	// LinkPayloadSize: LinkArity entries plus the next pointer.
	LinkPayloadSize = LinkArity*linkEntrySize + pref.Size
)

// ErrCorrupt reports an on-disk structure that fails validation.
var ErrCorrupt = errors.New("corrupted")

// AppendEnvelope frames payload with the given tag onto dst.
func AppendEnvelope(dst []byte, tag byte, payload []byte) []byte {
	n := len(payload)
	dst = append(dst, byte(n>>16), byte(n>>8), byte(n), tag)
	return append(dst, payload...)
}

// ParseEnvelopeHeader validates a 4-byte envelope header and returns
// the payload length and tag.
func ParseEnvelopeHeader(b []byte) (int, byte, error) {
	_ = b[EnvelopeHeaderSize-1]
	n := int(b[0])<<16 | int(b[1])<<8 | int(b[2])
	tag := b[3]
	if n == 0 {
		return 0, 0, fmt.Errorf("zero-length envelope: %w", ErrCorrupt)
	}
	if tag > TagLink {
		return 0, 0, fmt.Errorf("unknown envelope tag %d: %w", tag, ErrCorrupt)
	}
	return n, tag, nil
}

// EncodeKeyed builds the payload of a Keyed envelope.
func EncodeKeyed(key, value []byte) []byte {
	payload := make([]byte, 0, 1+len(key)+len(value))
	payload = append(payload, byte(len(key)))
	payload = append(payload, key...)
	return append(payload, value...)
}

// ParseKeyed splits a Keyed payload into key and value.
func ParseKeyed(payload []byte) (key, value []byte, err error) {
	if len(payload) < 2 {
		return nil, nil, fmt.Errorf("keyed payload too short: %w", ErrCorrupt)
	}
	keyLen := int(payload[0])
	if keyLen == 0 || 1+keyLen > len(payload) {
		return nil, nil, fmt.Errorf("keyed payload key length %d of %d: %w", keyLen, len(payload), ErrCorrupt)
	}
	return payload[1 : 1+keyLen], payload[1+keyLen:], nil
}

// Entry is one (hash, data) pair of a bucket chain.
type Entry struct {
	Hash uint64
	Data pref.PRef
}

// Link is one node of a bucket chain: up to LinkArity entries, newest
// first, and the PRef of the next (older) node or NIL.
type Link struct {
	Entries []Entry
	Next    pref.PRef
}

// EncodeLink builds the fixed-size payload of a Link envelope.  Unused
// entry slots carry a NIL PRef.
func EncodeLink(l Link) []byte {
	payload := make([]byte, LinkPayloadSize)
	for i, e := range l.Entries {
		off := i * linkEntrySize
		binary.BigEndian.PutUint64(payload[off:off+8], e.Hash)
		pref.Put(payload[off+8:off+8+pref.Size], e.Data)
	}
	for i := len(l.Entries); i < LinkArity; i++ {
		pref.Put(payload[i*linkEntrySize+8:], pref.NIL)
	}
	pref.Put(payload[LinkArity*linkEntrySize:], l.Next)
	return payload
}

// ParseLink decodes a Link payload.
func ParseLink(payload []byte) (Link, error) {
	if len(payload) != LinkPayloadSize {
		return Link{}, fmt.Errorf("link payload is %d bytes, want %d: %w", len(payload), LinkPayloadSize, ErrCorrupt)
	}
	var l Link
	for i := 0; i < LinkArity; i++ {
		off := i * linkEntrySize
		data := pref.Get(payload[off+8 : off+8+pref.Size])
		if !data.Valid() {
			break
		}
		l.Entries = append(l.Entries, Entry{
			Hash: binary.BigEndian.Uint64(payload[off : off+8]),
			Data: data,
		})
	}
	l.Next = pref.Get(payload[LinkArity*linkEntrySize:])
	return l, nil
}
