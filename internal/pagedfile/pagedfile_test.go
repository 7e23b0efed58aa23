// Copyright 2026 The hammersbald Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package pagedfile

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hammersbald/hammersbald/internal/page"
	"github.com/hammersbald/hammersbald/internal/pref"
)

func TestRolledRollsOver(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "test")

	r, err := openRolledSize(name, "bc", 2*page.Size)
	require.NoError(t, err)

	for i := uint64(0); i < 5; i++ {
		pg := page.New(i)
		pg.PutUint64(0, i+1)
		require.NoError(t, r.WritePage(pg))
	}
	require.NoError(t, r.Sync())
	require.Equal(t, uint64(5*page.Size), r.Len())

	// pages 0-1 in segment 0, 2-3 in segment 1, 4 in segment 2
	require.FileExists(t, name+".0.bc")
	require.FileExists(t, name+".1.bc")
	require.FileExists(t, name+".2.bc")

	for i := uint64(0); i < 5; i++ {
		pg, err := r.ReadPage(i)
		require.NoError(t, err)
		require.NotNil(t, pg)
		require.Equal(t, i+1, pg.Uint64At(0))
	}
	require.NoError(t, r.Close())
}

func TestRolledReopen(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "test")

	r, err := openRolledSize(name, "bc", 2*page.Size)
	require.NoError(t, err)
	for i := uint64(0); i < 3; i++ {
		pg := page.New(i)
		pg.PutUint64(0, i+7)
		require.NoError(t, r.WritePage(pg))
	}
	require.NoError(t, r.Close())

	r, err = openRolledSize(name, "bc", 2*page.Size)
	require.NoError(t, err)
	require.Equal(t, uint64(3*page.Size), r.Len())
	pg, err := r.ReadPage(2)
	require.NoError(t, err)
	require.NotNil(t, pg)
	require.Equal(t, uint64(9), pg.Uint64At(0))
	require.NoError(t, r.Close())
}

func TestRolledTruncateRemovesTrailingSegments(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "test")

	r, err := openRolledSize(name, "bc", 2*page.Size)
	require.NoError(t, err)
	for i := uint64(0); i < 6; i++ {
		require.NoError(t, r.WritePage(page.New(i)))
	}
	require.NoError(t, r.Truncate(3*page.Size))
	require.Equal(t, uint64(3*page.Size), r.Len())
	require.NoFileExists(t, name+".2.bc")

	pg, err := r.ReadPage(3)
	require.NoError(t, err)
	require.Nil(t, pg)
	require.NoError(t, r.Close())
}

func TestRolledTruncateZeroesBoundaryTail(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "test")

	r, err := openRolledSize(name, "bc", 4*page.Size)
	require.NoError(t, err)
	pg := page.New(0)
	for i := 0; i < page.Size; i++ {
		pg.Content[i] = 0xAB
	}
	require.NoError(t, r.WritePage(pg))

	require.NoError(t, r.Truncate(100))
	got, err := r.ReadPage(0)
	require.NoError(t, err)
	require.NotNil(t, got)
	for i := 0; i < 100; i++ {
		require.Equal(t, byte(0xAB), got.Content[i])
	}
	for i := 100; i < page.Size; i++ {
		require.Equal(t, byte(0), got.Content[i])
	}
	require.NoError(t, r.Close())
}

func TestAppenderRoundTrip(t *testing.T) {
	f := NewTransient()
	a := NewAppender(f, 0)

	first, err := a.Append([]byte("hello"))
	require.NoError(t, err)
	require.Equal(t, pref.PRef(0), first)

	second, err := a.Append(make([]byte, page.Size))
	require.NoError(t, err)
	require.Equal(t, pref.PRef(5), second)
	require.Equal(t, pref.PRef(5+page.Size), a.Pos())

	got := make([]byte, 5)
	require.NoError(t, a.ReadAt(first, got))
	require.Equal(t, []byte("hello"), got)

	big := make([]byte, page.Size)
	require.NoError(t, a.ReadAt(second, big))

	// reading past the logical end fails
	require.Error(t, a.ReadAt(a.Pos(), make([]byte, 1)))
}

func TestAppenderTailVisibleBeforeFlush(t *testing.T) {
	f := NewTransient()
	a := NewAppender(f, 0)

	p, err := a.Append([]byte("tail"))
	require.NoError(t, err)
	// nothing reached the underlying file yet
	require.Equal(t, uint64(0), f.Len())

	got := make([]byte, 4)
	require.NoError(t, a.ReadAt(p, got))
	require.Equal(t, []byte("tail"), got)

	require.NoError(t, a.Flush())
	require.Equal(t, uint64(page.Size), f.Len())
}

func TestAppenderResumeMidPage(t *testing.T) {
	f := NewTransient()
	a := NewAppender(f, 0)
	_, err := a.Append([]byte("abcdef"))
	require.NoError(t, err)
	require.NoError(t, a.Flush())

	// a fresh appender resuming at the logical end keeps old bytes
	b := NewAppender(f, 6)
	p, err := b.Append([]byte("XYZ"))
	require.NoError(t, err)
	require.Equal(t, pref.PRef(6), p)

	got := make([]byte, 9)
	require.NoError(t, b.ReadAt(0, got))
	require.Equal(t, []byte("abcdefXYZ"), got)
}
