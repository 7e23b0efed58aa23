// Copyright 2026 The hammersbald Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package logfile

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hammersbald/hammersbald/internal/format"
	"github.com/hammersbald/hammersbald/internal/page"
	"github.com/hammersbald/hammersbald/internal/pagedfile"
)

func TestEmptyLog(t *testing.T) {
	l := New(pagedfile.NewMemFlat())
	empty, err := l.Empty()
	require.NoError(t, err)
	require.True(t, empty)

	rep, err := l.Recover()
	require.NoError(t, err)
	require.Nil(t, rep)
}

func TestRoundTrip(t *testing.T) {
	l := New(pagedfile.NewMemFlat())
	require.NoError(t, l.AppendLengths(100, 200, 4096))

	img1 := make([]byte, page.Size)
	img1[0] = 0xAA
	img2 := make([]byte, page.Size)
	img2[0] = 0xBB
	require.NoError(t, l.AppendPreimage(1, img1))
	require.NoError(t, l.AppendPreimage(2, img2))
	require.NoError(t, l.Sync())

	rep, err := l.Recover()
	require.NoError(t, err)
	require.NotNil(t, rep)
	require.Equal(t, uint64(100), rep.DataEnd)
	require.Equal(t, uint64(200), rep.LinkEnd)
	require.Equal(t, uint64(4096), rep.TableEnd)
	require.Len(t, rep.Pages, 2)
	require.Equal(t, uint64(1), rep.Pages[0].Num)
	require.Equal(t, byte(0xAA), rep.Pages[0].Img[0])
	require.Equal(t, uint64(2), rep.Pages[1].Num)
}

func TestResetIsCommitPoint(t *testing.T) {
	l := New(pagedfile.NewMemFlat())
	require.NoError(t, l.AppendLengths(1, 2, 3))
	require.NoError(t, l.Reset())

	empty, err := l.Empty()
	require.NoError(t, err)
	require.True(t, empty)
	rep, err := l.Recover()
	require.NoError(t, err)
	require.Nil(t, rep)
}

func TestTornTailRecordIgnored(t *testing.T) {
	f := pagedfile.NewMemFlat()
	l := New(f)
	require.NoError(t, l.AppendLengths(10, 20, 30))
	require.NoError(t, l.AppendPreimage(5, make([]byte, page.Size)))

	// cut the last record mid-image
	size, err := f.Size()
	require.NoError(t, err)
	require.NoError(t, f.Truncate(size-100))

	rep, err := l.Recover()
	require.NoError(t, err)
	require.NotNil(t, rep)
	require.Equal(t, uint64(10), rep.DataEnd)
	require.Empty(t, rep.Pages)
}

func TestCorruptChecksumStopsReplay(t *testing.T) {
	f := pagedfile.NewMemFlat()
	l := New(f)
	require.NoError(t, l.AppendLengths(10, 20, 30))
	good := make([]byte, page.Size)
	require.NoError(t, l.AppendPreimage(5, good))

	// flip a byte inside the pre-image record
	size, err := f.Size()
	require.NoError(t, err)
	require.NoError(t, f.Truncate(size-checksumSize-1))
	require.NoError(t, f.Append([]byte{0xFF}))
	require.NoError(t, f.Append(make([]byte, checksumSize)))

	rep, err := l.Recover()
	require.NoError(t, err)
	require.NotNil(t, rep)
	require.Empty(t, rep.Pages)
}

func TestLogMustStartWithLengths(t *testing.T) {
	f := pagedfile.NewMemFlat()
	l := New(f)
	require.NoError(t, l.AppendPreimage(5, make([]byte, page.Size)))

	_, err := l.Recover()
	require.ErrorIs(t, err, format.ErrCorrupt)
}
