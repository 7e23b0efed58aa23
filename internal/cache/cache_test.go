// Copyright 2026 The hammersbald Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package cache

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hammersbald/hammersbald/internal/page"
	"github.com/hammersbald/hammersbald/internal/pagedfile"
)

func TestReadThrough(t *testing.T) {
	f := pagedfile.NewTransient()
	pg := page.New(3)
	pg.PutUint64(0, 42)
	require.NoError(t, f.WritePage(pg))

	c, err := New(f, 16)
	require.NoError(t, err)

	got, err := c.ReadPage(3)
	require.NoError(t, err)
	require.Equal(t, uint64(42), got.Uint64At(0))

	_, err = c.ReadPage(3)
	require.NoError(t, err)
	hits, misses := c.Stats()
	require.Equal(t, uint64(1), hits)
	require.Equal(t, uint64(1), misses)
}

func TestDirtyPinnedUntilSweep(t *testing.T) {
	f := pagedfile.NewTransient()
	c, err := New(f, 16)
	require.NoError(t, err)

	pg := page.New(0)
	pg.PutUint64(0, 7)
	c.UpdatePage(pg)

	// not yet below
	raw, err := f.ReadPage(0)
	require.NoError(t, err)
	require.Nil(t, raw)

	// but visible through the cache
	got, err := c.ReadPage(0)
	require.NoError(t, err)
	require.Equal(t, uint64(7), got.Uint64At(0))

	require.NoError(t, c.FlushDirty())
	raw, err = f.ReadPage(0)
	require.NoError(t, err)
	require.NotNil(t, raw)
	require.Equal(t, uint64(7), raw.Uint64At(0))
}

func TestDirtySurvivesEvictionPressure(t *testing.T) {
	f := pagedfile.NewTransient()
	c, err := New(f, 16)
	require.NoError(t, err)

	dirty := page.New(0)
	dirty.PutUint64(0, 99)
	c.UpdatePage(dirty)

	// push far more clean pages through than the LRU holds
	for i := uint64(1); i < 100; i++ {
		require.NoError(t, f.WritePage(page.New(i)))
	}
	for i := uint64(1); i < 100; i++ {
		_, err := c.ReadPage(i)
		require.NoError(t, err)
	}

	got, err := c.ReadPage(0)
	require.NoError(t, err)
	require.Equal(t, uint64(99), got.Uint64At(0))
}

func TestTruncateDropsCachedPages(t *testing.T) {
	f := pagedfile.NewTransient()
	c, err := New(f, 16)
	require.NoError(t, err)

	for i := uint64(0); i < 4; i++ {
		pg := page.New(i)
		pg.PutUint64(0, i+1)
		require.NoError(t, c.WritePage(pg))
	}
	c.Sweep()
	require.NoError(t, c.Truncate(2*page.Size))

	got, err := c.ReadPage(3)
	require.NoError(t, err)
	require.Nil(t, got)
}
