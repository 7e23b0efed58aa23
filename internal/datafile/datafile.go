// Copyright 2026 The hammersbald Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package datafile implements the append-only envelope stores: the data
// store (keyed and referenced envelopes interleaved) and the link store
// (bucket-chain nodes).
package datafile

import (
	"fmt"

	"github.com/hammersbald/hammersbald/internal/format"
	"github.com/hammersbald/hammersbald/internal/pagedfile"
	"github.com/hammersbald/hammersbald/internal/pref"
)

// Store is one append-only envelope store.
type Store struct {
	ap *pagedfile.Appender
}

// New resumes a store whose logical end is end.
func New(f pagedfile.File, end pref.PRef) *Store {
	return &Store{ap: pagedfile.NewAppender(f, end)}
}

// Append frames payload and appends it, returning the envelope's PRef.
// The PRef is assigned synchronously; the bytes drain in background.
func (s *Store) Append(tag byte, payload []byte) (pref.PRef, error) {
	if len(payload) == 0 || len(payload) > format.MaxPayload {
		return pref.NIL, fmt.Errorf("payload of %d bytes does not fit an envelope", len(payload))
	}
	env := format.AppendEnvelope(make([]byte, 0, format.EnvelopeHeaderSize+len(payload)), tag, payload)
	return s.ap.Append(env)
}

// Envelope fetches the envelope at p.
func (s *Store) Envelope(p pref.PRef) (byte, []byte, error) {
	var hdr [format.EnvelopeHeaderSize]byte
	if err := s.ap.ReadAt(p, hdr[:]); err != nil {
		return 0, nil, err
	}
	n, tag, err := format.ParseEnvelopeHeader(hdr[:])
	if err != nil {
		return 0, nil, fmt.Errorf("envelope at %s: %w", p, err)
	}
	payload := make([]byte, n)
	if err := s.ap.ReadAt(p.Add(format.EnvelopeHeaderSize), payload); err != nil {
		return 0, nil, err
	}
	return tag, payload, nil
}

// Scan walks every envelope in insertion order, stopping early when fn
// returns false.
func (s *Store) Scan(fn func(p pref.PRef, tag byte, payload []byte) bool) error {
	end := s.ap.Pos()
	for p := pref.PRef(0); p < end; {
		tag, payload, err := s.Envelope(p)
		if err != nil {
			return err
		}
		if !fn(p, tag, payload) {
			return nil
		}
		p = p.Add(uint64(format.EnvelopeHeaderSize + len(payload)))
	}
	return nil
}

// Pos is the store's logical end.
func (s *Store) Pos() pref.PRef {
	return s.ap.Pos()
}

// Flush pushes the partial tail page toward disk.
func (s *Store) Flush() error {
	return s.ap.Flush()
}

// Truncate cuts the store back to n bytes (recovery only).
func (s *Store) Truncate(n uint64) error {
	return s.ap.Truncate(n)
}
