// Copyright 2026 The hammersbald Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package logfile implements the redo/undo log that makes batches
// atomic.  A batch writes one lengths record (the pre-batch ends of the
// three stores), then one pre-image record per slot page it dirties.
// Truncating the log to zero is the commit point; a non-empty log at
// open means a batch was in flight and must be rolled back.
package logfile

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/dgryski/go-farm"

	"github.com/hammersbald/hammersbald/internal/format"
	"github.com/hammersbald/hammersbald/internal/page"
	"github.com/hammersbald/hammersbald/internal/pagedfile"
	"github.com/hammersbald/hammersbald/internal/pref"
)

const (
	recLengths  = byte(1)
	recPreimage = byte(2)

	lengthsBody  = 1 + 3*pref.Size
	preimageBody = 1 + pref.Size + page.Size
	checksumSize = 4
)

// Log wraps the single `.lg` file.
type Log struct {
	f pagedfile.Flat
}

func New(f pagedfile.Flat) *Log {
	return &Log{f: f}
}

// Empty reports whether no batch is in flight.
func (l *Log) Empty() (bool, error) {
	n, err := l.f.Size()
	return n == 0, err
}

func (l *Log) append(body []byte) error {
	sum := farm.Hash32(body)
	rec := make([]byte, 0, len(body)+checksumSize)
	rec = append(rec, body...)
	rec = binary.BigEndian.AppendUint32(rec, sum)
	return l.f.Append(rec)
}

// AppendLengths records the pre-batch logical ends of the data, link
// and table stores.  Written exactly once per batch, before any page of
// the batch reaches disk.
func (l *Log) AppendLengths(data, link, table uint64) error {
	body := make([]byte, lengthsBody)
	body[0] = recLengths
	pref.Put(body[1:], pref.PRef(data))
	pref.Put(body[1+pref.Size:], pref.PRef(link))
	pref.Put(body[1+2*pref.Size:], pref.PRef(table))
	return l.append(body)
}

// AppendPreimage records the pre-batch content of a slot page.
func (l *Log) AppendPreimage(num uint64, img []byte) error {
	if len(img) != page.Size {
		return fmt.Errorf("pre-image of %d bytes, want a full page", len(img))
	}
	body := make([]byte, 0, preimageBody)
	body = append(body, recPreimage)
	var p [pref.Size]byte
	pref.Put(p[:], pref.PRef(num))
	body = append(body, p[:]...)
	body = append(body, img...)
	return l.append(body)
}

// Sync flushes the log to stable storage.
func (l *Log) Sync() error {
	return l.f.Sync()
}

// Reset truncates the log to zero and fsyncs; this is the commit point.
func (l *Log) Reset() error {
	if err := l.f.Truncate(0); err != nil {
		return err
	}
	return l.f.Sync()
}

func (l *Log) Close() error {
	return l.f.Close()
}

// Preimage is one logged slot-page image.
type Preimage struct {
	Num uint64
	Img []byte
}

// Replay is the decoded content of a non-empty log.
type Replay struct {
	DataEnd  uint64
	LinkEnd  uint64
	TableEnd uint64
	Pages    []Preimage
}

// Recover decodes the log.  It returns nil for an empty log.  Decoding
// stops silently at a torn or checksum-invalid tail record: a record is
// fsynced before its protected modification may reach disk, so a torn
// record's modification never happened.
func (l *Log) Recover() (*Replay, error) {
	size, err := l.f.Size()
	if err != nil {
		return nil, err
	}
	if size == 0 {
		return nil, nil
	}

	var rep *Replay
	off := int64(0)
	for off < size {
		var kind [1]byte
		if _, err := l.f.ReadAt(kind[:], off); err != nil {
			break
		}
		var bodyLen int
		switch kind[0] {
		case recLengths:
			bodyLen = lengthsBody
		case recPreimage:
			bodyLen = preimageBody
		default:
			if rep == nil {
				return nil, fmt.Errorf("log starts with record type %d: %w", kind[0], format.ErrCorrupt)
			}
			return rep, nil
		}
		rec := make([]byte, bodyLen+checksumSize)
		if n, err := l.f.ReadAt(rec, off); err != nil && (err != io.EOF || n < len(rec)) {
			break
		}
		body := rec[:bodyLen]
		if farm.Hash32(body) != binary.BigEndian.Uint32(rec[bodyLen:]) {
			break
		}

		switch kind[0] {
		case recLengths:
			if rep != nil {
				return nil, fmt.Errorf("second lengths record in log: %w", format.ErrCorrupt)
			}
			rep = &Replay{
				DataEnd:  uint64(pref.Get(body[1:])),
				LinkEnd:  uint64(pref.Get(body[1+pref.Size:])),
				TableEnd: uint64(pref.Get(body[1+2*pref.Size:])),
			}
		case recPreimage:
			if rep == nil {
				return nil, fmt.Errorf("log does not start with a lengths record: %w", format.ErrCorrupt)
			}
			img := make([]byte, page.Size)
			copy(img, body[1+pref.Size:])
			rep.Pages = append(rep.Pages, Preimage{Num: uint64(pref.Get(body[1:])), Img: img})
		}
		off += int64(bodyLen + checksumSize)
	}
	// a non-empty log whose only record is torn means the batch never
	// got to modify anything durable; rep is nil and there is nothing
	// to roll back
	return rep, nil
}
