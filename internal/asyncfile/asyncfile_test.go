// Copyright 2026 The hammersbald Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package asyncfile

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hammersbald/hammersbald/internal/page"
	"github.com/hammersbald/hammersbald/internal/pagedfile"
)

func TestWritesArriveAfterDrain(t *testing.T) {
	w := NewWriter()
	defer func() { _ = w.Close() }()

	f := pagedfile.NewTransient()
	h := w.Wrap(f)

	for i := uint64(0); i < 50; i++ {
		pg := page.New(i)
		pg.PutUint64(0, i)
		require.NoError(t, h.WritePage(pg))
	}
	require.NoError(t, w.Drain())

	for i := uint64(0); i < 50; i++ {
		pg, err := f.ReadPage(i)
		require.NoError(t, err)
		require.NotNil(t, pg)
		require.Equal(t, i, pg.Uint64At(0))
	}
}

func TestQueuedPageReadableBeforeDrain(t *testing.T) {
	w := NewWriter()
	defer func() { _ = w.Close() }()

	f := pagedfile.NewTransient()
	h := w.Wrap(f)

	pg := page.New(9)
	pg.PutUint64(0, 123)
	require.NoError(t, h.WritePage(pg))

	got, err := h.ReadPage(9)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, uint64(123), got.Uint64At(0))
	require.NoError(t, w.Drain())
}

type failingFile struct {
	pagedfile.File
	mu        sync.Mutex
	failAfter int
	writes    int
}

var errDiskFull = errors.New("disk full")

func (f *failingFile) WritePage(pg *page.Page) error {
	f.mu.Lock()
	f.writes++
	fail := f.writes > f.failAfter
	f.mu.Unlock()
	if fail {
		return errDiskFull
	}
	return f.File.WritePage(pg)
}

func TestErrorLatched(t *testing.T) {
	w := NewWriter()
	defer func() { _ = w.Close() }()

	f := &failingFile{File: pagedfile.NewTransient(), failAfter: 2}
	h := w.Wrap(f)

	for i := uint64(0); i < 5; i++ {
		_ = h.WritePage(page.New(i))
	}
	err := w.Drain()
	require.ErrorIs(t, err, errDiskFull)

	// once latched, further writes are refused with the same error
	require.ErrorIs(t, h.WritePage(page.New(9)), errDiskFull)
}
