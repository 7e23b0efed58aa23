// Copyright 2026 The hammersbald Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package hammersbald

import (
	"errors"

	"github.com/hammersbald/hammersbald/internal/format"
	"github.com/hammersbald/hammersbald/internal/memtable"
)

var (
	// ErrKeyTooLong is returned for keys longer than 255 bytes or empty.
	ErrKeyTooLong = errors.New("key must be 1 to 255 bytes")

	// ErrValueTooLarge is returned when a value does not fit a single
	// envelope (payload limit 2^24-1 bytes).
	ErrValueTooLarge = errors.New("value too large for an envelope")

	// ErrSlotSpaceExhausted is returned when an insert would grow the
	// hash table past 2^32 slots.
	ErrSlotSpaceExhausted = memtable.ErrSlotSpaceExhausted

	// ErrAlreadyOpen means another process holds the database's
	// advisory lock.
	ErrAlreadyOpen = errors.New("database already open in another process")

	// ErrCorrupt reports invalid on-disk structures.
	ErrCorrupt = format.ErrCorrupt

	// ErrReadOnly is returned for writes after the engine latched a
	// write-path failure; reopen the database to recover.
	ErrReadOnly = errors.New("engine is read-only after a write failure")

	// ErrClosed is returned for operations after Shutdown.
	ErrClosed = errors.New("database is shut down")
)
