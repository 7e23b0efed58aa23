// Copyright 2026 The hammersbald Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package hammersbald

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hammersbald/hammersbald/internal/page"
	"github.com/hammersbald/hammersbald/internal/pagedfile"
)

// failingFile passes writes through until armed, then fails every
// write after the next n.
type failingFile struct {
	pagedfile.File

	mu     sync.Mutex
	armed  bool
	budget int
}

var errSimulatedIO = errors.New("simulated write failure")

func (f *failingFile) arm(budget int) {
	f.mu.Lock()
	f.armed = true
	f.budget = budget
	f.mu.Unlock()
}

func (f *failingFile) disarm() {
	f.mu.Lock()
	f.armed = false
	f.mu.Unlock()
}

func (f *failingFile) WritePage(pg *page.Page) error {
	f.mu.Lock()
	fail := f.armed && f.budget <= 0
	if f.armed {
		f.budget--
	}
	f.mu.Unlock()
	if fail {
		return errSimulatedIO
	}
	return f.File.WritePage(pg)
}

// crashEnv keeps segment state alive across simulated process deaths.
type crashEnv struct {
	data  *failingFile
	link  *failingFile
	table *failingFile
	log   pagedfile.Flat
}

func newCrashEnv() *crashEnv {
	return &crashEnv{
		data:  &failingFile{File: pagedfile.NewTransient()},
		link:  &failingFile{File: pagedfile.NewTransient()},
		table: &failingFile{File: pagedfile.NewTransient()},
		log:   pagedfile.NewMemFlat(),
	}
}

func (e *crashEnv) open(t *testing.T, opts ...Option) *Database {
	t.Helper()
	db, err := open("crash", segmentSet{data: e.data, link: e.link, table: e.table, log: e.log}, resolveOptions(opts))
	require.NoError(t, err)
	return db
}

// crash abandons the handle without committing.  Draining the writer
// first models the worst case: every queued page reached disk, but the
// batch never committed.
func (e *crashEnv) crash(db *Database) {
	_ = db.writer.Close()
	db.closed.Store(true)
}

func TestCrashBeforeBatchLosesWholeBatch(t *testing.T) {
	env := newCrashEnv()

	db := env.open(t)
	_, err := db.PutKeyed([]byte("a"), []byte("1"))
	require.NoError(t, err)
	require.NoError(t, db.Batch())
	committed := db.Stats().DataBytes

	_, err = db.PutKeyed([]byte("a"), []byte("2"))
	require.NoError(t, err)
	env.crash(db)

	db = env.open(t)
	defer env.crash(db)

	_, v, ok, err := db.GetKeyed([]byte("a"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("1"), v)
	require.Equal(t, committed, db.Stats().DataBytes)
}

func TestCrashOnEmptyDatabase(t *testing.T) {
	env := newCrashEnv()

	db := env.open(t)
	_, err := db.PutKeyed([]byte("x"), []byte("y"))
	require.NoError(t, err)
	env.crash(db)

	db = env.open(t)
	defer env.crash(db)
	_, _, ok, err := db.GetKeyed([]byte("x"))
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, uint64(0), db.Stats().DataBytes)
	require.Equal(t, uint64(0), db.Stats().Entries)
}

func TestCrashMidIndexFlushRollsBack(t *testing.T) {
	env := newCrashEnv()

	db := env.open(t, WithFillTarget(2))
	for i := 0; i < 200; i++ {
		key := []byte(fmt.Sprintf("base-%d", i))
		_, err := db.PutKeyed(key, key)
		require.NoError(t, err)
	}
	require.NoError(t, db.Batch())
	baseline := db.Stats()

	// the next commit dies after one table-page write
	for i := 0; i < 200; i++ {
		key := []byte(fmt.Sprintf("doomed-%d", i))
		_, err := db.PutKeyed(key, key)
		require.NoError(t, err)
	}
	env.table.arm(1)
	require.ErrorIs(t, db.Batch(), errSimulatedIO)

	// first write-path failure latches the engine read-only
	_, err := db.PutKeyed([]byte("k"), []byte("v"))
	require.ErrorIs(t, err, ErrReadOnly)
	env.table.disarm()
	env.crash(db)

	db = env.open(t)
	defer env.crash(db)

	got := db.Stats()
	require.Equal(t, baseline.Entries, got.Entries)
	require.Equal(t, baseline.Slots, got.Slots)
	require.Equal(t, baseline.DataBytes, got.DataBytes)
	require.Equal(t, baseline.LinkBytes, got.LinkBytes)

	for i := 0; i < 200; i++ {
		key := []byte(fmt.Sprintf("base-%d", i))
		_, v, ok, err := db.GetKeyed(key)
		require.NoError(t, err)
		require.True(t, ok, "key %s", key)
		require.Equal(t, key, v)
	}
	for i := 0; i < 200; i++ {
		key := []byte(fmt.Sprintf("doomed-%d", i))
		_, _, ok, err := db.GetKeyed(key)
		require.NoError(t, err)
		require.False(t, ok, "key %s survived rollback", key)
	}
}

func TestCrashAtEveryIndexWriteBudget(t *testing.T) {
	// commit with a table-write budget of n, crash, reopen: for any n
	// the database must equal the pre-batch state or the full batch
	for budget := 0; budget < 8; budget++ {
		budget := budget
		t.Run(fmt.Sprintf("budget-%d", budget), func(t *testing.T) {
			env := newCrashEnv()
			db := env.open(t, WithFillTarget(2))
			for i := 0; i < 50; i++ {
				key := []byte(fmt.Sprintf("base-%d", i))
				_, err := db.PutKeyed(key, key)
				require.NoError(t, err)
			}
			require.NoError(t, db.Batch())
			baseline := db.Stats().Entries

			for i := 0; i < 50; i++ {
				key := []byte(fmt.Sprintf("next-%d", i))
				_, err := db.PutKeyed(key, key)
				require.NoError(t, err)
			}
			env.table.arm(budget)
			err := db.Batch()
			env.table.disarm()
			env.crash(db)

			db = env.open(t)
			defer env.crash(db)

			entries := db.Stats().Entries
			if err == nil {
				require.Equal(t, baseline+50, entries)
			} else {
				require.Equal(t, baseline, entries)
			}
			for i := 0; i < 50; i++ {
				key := []byte(fmt.Sprintf("base-%d", i))
				_, _, ok, getErr := db.GetKeyed(key)
				require.NoError(t, getErr)
				require.True(t, ok, "committed key %s lost", key)
			}
		})
	}
}

func TestTornLogTailRollsBackCleanly(t *testing.T) {
	env := newCrashEnv()

	db := env.open(t)
	_, err := db.PutKeyed([]byte("a"), []byte("1"))
	require.NoError(t, err)
	require.NoError(t, db.Batch())

	_, err = db.PutKeyed([]byte("b"), []byte("2"))
	require.NoError(t, err)
	env.crash(db)

	// tear the last bytes off the log, as a crash mid-write would
	size, err := env.log.Size()
	require.NoError(t, err)
	if size > 4 {
		require.NoError(t, env.log.Truncate(size-3))
	}

	db = env.open(t)
	defer env.crash(db)
	_, v, ok, err := db.GetKeyed([]byte("a"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("1"), v)
}
