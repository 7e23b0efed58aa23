// Copyright 2026 The hammersbald Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package page

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hammersbald/hammersbald/internal/pref"
)

func TestReadWrite(t *testing.T) {
	pg := New(0)
	data := []byte{1, 2, 3}
	pg.Write(10, data)

	got := make([]byte, 3)
	pg.Read(10, got)
	require.Equal(t, data, got)
}

func TestPRefAccessors(t *testing.T) {
	pg := New(7)
	pg.PutPRef(100, pref.PRef(5))

	var raw [pref.Size]byte
	pg.Read(100, raw[:])
	require.Equal(t, [pref.Size]byte{0, 0, 0, 0, 0, 5}, raw)
	require.Equal(t, pref.PRef(5), pg.PRefAt(100))

	pg.PutPRef(200, pref.NIL)
	require.Equal(t, pref.NIL, pg.PRefAt(200))
}

func TestCloneIsIndependent(t *testing.T) {
	pg := New(1)
	pg.PutUint64(0, 11)
	c := pg.Clone()
	c.PutUint64(0, 22)
	require.Equal(t, uint64(11), pg.Uint64At(0))
	require.Equal(t, uint64(22), c.Uint64At(0))
}

func TestIntAccessors(t *testing.T) {
	pg := New(0)
	pg.PutUint64(8, 0xDEADBEEFCAFEF00D)
	require.Equal(t, uint64(0xDEADBEEFCAFEF00D), pg.Uint64At(8))
	pg.PutUint32(16, 0xC0FFEE)
	require.Equal(t, uint32(0xC0FFEE), pg.Uint32At(16))
}
