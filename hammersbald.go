// Copyright 2026 The hammersbald Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package hammersbald is an embedded, crash-safe, append-only key/value
// engine.  It drops ordered iteration, range scans and per-key deletes,
// which collapses a keyed lookup to at most one seek while keeping
// atomic batches and crash recovery.
//
// A database is four file families in one directory: data envelopes
// (.bc), bucket-chain links (.bl), the persistent hash table (.tb) and
// the batch log (.lg).  One process owns a database at a time.
package hammersbald

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/hammersbald/hammersbald/internal/asyncfile"
	"github.com/hammersbald/hammersbald/internal/cache"
	"github.com/hammersbald/hammersbald/internal/datafile"
	"github.com/hammersbald/hammersbald/internal/logfile"
	"github.com/hammersbald/hammersbald/internal/memtable"
	"github.com/hammersbald/hammersbald/internal/page"
	"github.com/hammersbald/hammersbald/internal/pagedfile"
	"github.com/hammersbald/hammersbald/internal/tablefile"
)

const defaultCachePages = 4096 // 16 MiB of 4 KiB pages

// Option configures a Database at open time.
type Option func(*options)

type options struct {
	cachePages int
	fillTarget uint32
	logger     *slog.Logger
	sipKey     *[16]byte
}

// WithCachePages bounds the page cache (per file family) to n pages;
// values below 16 are raised to 16.
func WithCachePages(n int) Option {
	return func(o *options) { o.cachePages = n }
}

// WithFillTarget sets the average chain length that triggers hash-table
// growth.  Only honored when the database is created; an existing
// database keeps the target persisted in its header.
func WithFillTarget(n uint32) Option {
	return func(o *options) { o.fillTarget = n }
}

// WithLogger sets an optional logger for open, recovery and batch
// events.  If not provided, no logging output will be produced.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// withSipKey pins the siphash key; tests use it for reproducible
// hashing.  The default is fresh random at creation.
func withSipKey(key [16]byte) Option {
	return func(o *options) { o.sipKey = &key }
}

// Database is a single-process handle on one hammersbald store.  One
// writer at a time (callers serialize); readers may run concurrently
// with each other and with the writer.
type Database struct {
	name   string
	logger *slog.Logger
	lock   *os.File

	writer    *asyncfile.Writer
	dataBase  pagedfile.File
	linkBase  pagedfile.File
	tableBase pagedfile.File
	dataCache *cache.Cache
	linkCache *cache.Cache
	table     *tablefile.Table
	log       *logfile.Log
	data      *datafile.Store
	link      *datafile.Store
	mem       *memtable.MemTable

	mu         sync.Mutex
	batchOpen  bool
	failed     error
	lastSplits uint64
	closed     atomic.Bool
}

// segmentSet carries the storage capabilities a database is built on;
// tests substitute failing stubs here.
type segmentSet struct {
	data  pagedfile.File
	link  pagedfile.File
	table pagedfile.File
	log   pagedfile.Flat
}

// Open opens or creates the database with the given path prefix: files
// are <name>.<n>.bc / .bl / .tb and <name>.0.lg.  Open implies
// recovery; a batch that was in flight during a crash is rolled back.
func Open(name string, opts ...Option) (*Database, error) {
	o := resolveOptions(opts)

	if dir := filepath.Dir(name); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("os.MkdirAll(%s): %w", dir, err)
		}
	}

	lock, err := acquireLock(name + ".0.tb")
	if err != nil {
		return nil, err
	}

	seg, err := openSegments(name)
	if err != nil {
		_ = lock.Close()
		return nil, err
	}
	db, err := open(name, seg, o)
	if err != nil {
		_ = lock.Close()
		return nil, err
	}
	db.lock = lock
	return db, nil
}

// OpenTransient builds a throwaway in-memory database with the same
// semantics; nothing touches the filesystem.
func OpenTransient(opts ...Option) (*Database, error) {
	o := resolveOptions(opts)
	seg := segmentSet{
		data:  pagedfile.NewTransient(),
		link:  pagedfile.NewTransient(),
		table: pagedfile.NewTransient(),
		log:   pagedfile.NewMemFlat(),
	}
	return open("transient", seg, o)
}

func resolveOptions(opts []Option) options {
	o := options{
		cachePages: defaultCachePages,
		fillTarget: memtable.DefaultFillTarget,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func openSegments(name string) (segmentSet, error) {
	var seg segmentSet
	var err error
	if seg.data, err = pagedfile.OpenRolled(name, "bc"); err != nil {
		return seg, err
	}
	if seg.link, err = pagedfile.OpenRolled(name, "bl"); err != nil {
		return seg, err
	}
	if seg.table, err = pagedfile.OpenRolled(name, "tb"); err != nil {
		return seg, err
	}
	if seg.log, err = pagedfile.OpenFlat(name + ".0.lg"); err != nil {
		return seg, err
	}
	return seg, nil
}

// acquireLock takes the OS-level exclusive advisory lock on the header
// file; a held lock means another process owns the database.
func acquireLock(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("os.OpenFile(%s): %w", path, err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, ErrAlreadyOpen
		}
		return nil, fmt.Errorf("flock(%s): %w", path, err)
	}
	return f, nil
}

func open(name string, seg segmentSet, o options) (*Database, error) {
	writer := asyncfile.NewWriter()

	dataCache, err := cache.New(writer.Wrap(seg.data), o.cachePages)
	if err != nil {
		return nil, err
	}
	linkCache, err := cache.New(writer.Wrap(seg.link), o.cachePages)
	if err != nil {
		return nil, err
	}
	tableCache, err := cache.New(seg.table, o.cachePages)
	if err != nil {
		return nil, err
	}
	table := tablefile.New(tableCache)
	log := logfile.New(seg.log)

	if err := recoverLog(seg, table, tableCache, dataCache, linkCache, log, o.logger); err != nil {
		_ = writer.Close()
		return nil, err
	}

	h, existing, err := table.ReadHeader()
	if err != nil {
		_ = writer.Close()
		return nil, err
	}
	if !existing {
		h = tablefile.Header{
			Level:      memtable.InitLevel,
			FillTarget: o.fillTarget,
			DataEnd:    0,
			LinkEnd:    0,
		}
		if o.sipKey != nil {
			h.SipKey = *o.sipKey
		} else if _, err := rand.Read(h.SipKey[:]); err != nil {
			_ = writer.Close()
			return nil, fmt.Errorf("rand.Read: %w", err)
		}
		if err := createTable(table, h, seg.table); err != nil {
			_ = writer.Close()
			return nil, err
		}
		o.logger.Info("created database", "name", name, "fillTarget", h.FillTarget)
	}

	data := datafile.New(dataCache, h.DataEnd)
	link := datafile.New(linkCache, h.LinkEnd)
	mem := memtable.New(table, data, link, h)

	db := &Database{
		name:      name,
		logger:    o.logger,
		writer:    writer,
		dataBase:  seg.data,
		linkBase:  seg.link,
		tableBase: seg.table,
		dataCache: dataCache,
		linkCache: linkCache,
		table:     table,
		log:       log,
		data:      data,
		link:      link,
		mem:       mem,
	}
	_, _, _, _, db.lastSplits = mem.Params()
	o.logger.Info("opened database", "name", name,
		"entries", h.Count, "dataBytes", uint64(h.DataEnd), "linkBytes", uint64(h.LinkEnd))
	return db, nil
}

// createTable persists the initial header so a fresh database survives
// an immediate crash.
func createTable(table *tablefile.Table, h tablefile.Header, base pagedfile.File) error {
	if err := table.WriteHeader(h); err != nil {
		return err
	}
	if err := table.FlushDirty(); err != nil {
		return err
	}
	if err := base.Sync(); err != nil {
		return err
	}
	table.EndBatch()
	return nil
}

// recoverLog rolls back a batch that was in flight when the process died:
// restore the logged slot-page pre-images, truncate the stores to their
// pre-batch lengths, fsync, truncate the log.  Afterwards the database
// equals its state at the last successful batch.
func recoverLog(seg segmentSet, table *tablefile.Table, tableCache, dataCache, linkCache *cache.Cache,
	log *logfile.Log, logger *slog.Logger) error {

	empty, err := log.Empty()
	if err != nil {
		return err
	}
	if empty {
		return nil
	}

	rep, err := log.Recover()
	if err != nil {
		return err
	}
	if rep != nil {
		for _, pi := range rep.Pages {
			if pi.Num*page.Size >= rep.TableEnd {
				continue
			}
			if err := table.RestorePage(pi.Num, pi.Img); err != nil {
				return err
			}
		}
		tableCache.Sweep()
		table.EndBatch()

		if err := dataCache.Truncate(rep.DataEnd); err != nil {
			return err
		}
		if err := linkCache.Truncate(rep.LinkEnd); err != nil {
			return err
		}
		if err := tableCache.Truncate(rep.TableEnd); err != nil {
			return err
		}
		if err := seg.data.Sync(); err != nil {
			return err
		}
		if err := seg.link.Sync(); err != nil {
			return err
		}
		if err := seg.table.Sync(); err != nil {
			return err
		}
		logger.Info("rolled back in-flight batch",
			"dataEnd", rep.DataEnd, "linkEnd", rep.LinkEnd, "restoredPages", len(rep.Pages))
	}
	recoveriesTotal.Inc()
	return log.Reset()
}

// beginBatchLocked writes and fsyncs the lengths record the first time
// a batch modifies anything, before any page can reach the writer.
func (db *Database) beginBatchLocked() error {
	if db.batchOpen {
		return nil
	}
	if err := db.log.AppendLengths(uint64(db.data.Pos()), uint64(db.link.Pos()), db.table.Len()); err != nil {
		return err
	}
	if err := db.log.Sync(); err != nil {
		return err
	}
	db.batchOpen = true
	return nil
}

// Batch ends the current batch: drains pending writes, fsyncs the data
// and link stores, rewrites the dirty slot pages, fsyncs the index and
// truncates the log, which is the commit point.  A new batch starts
// with the next write.
func (db *Database) Batch() error {
	if db.closed.Load() {
		return ErrClosed
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.failed != nil {
		return fmt.Errorf("%w: %v", ErrReadOnly, db.failed)
	}
	return db.commitLocked()
}

func (db *Database) commitLocked() error {
	if !db.batchOpen {
		return nil
	}
	if err := db.commitSteps(); err != nil {
		db.failed = err
		db.logger.Error("batch failed, engine is read-only", "err", err)
		return err
	}

	db.table.EndBatch()
	db.dataCache.Sweep()
	db.linkCache.Sweep()
	db.batchOpen = false

	batchesTotal.Inc()
	_, _, _, _, splits := db.mem.Params()
	splitsTotal.Add(int(splits - db.lastSplits))
	db.lastSplits = splits
	return nil
}

func (db *Database) commitSteps() error {
	// all data envelopes to the writer, then wait for them
	if err := db.data.Flush(); err != nil {
		return err
	}
	if err := db.writer.Drain(); err != nil {
		return err
	}

	// emit this batch's link nodes and slot updates
	if err := db.mem.Flush(db.data.Pos()); err != nil {
		return err
	}
	if err := db.link.Flush(); err != nil {
		return err
	}
	if err := db.writer.Drain(); err != nil {
		return err
	}

	if err := db.dataBase.Sync(); err != nil {
		return err
	}
	if err := db.linkBase.Sync(); err != nil {
		return err
	}

	// pre-images must be durable before any dirty index page is written
	for num, img := range db.table.Preimages() {
		if err := db.log.AppendPreimage(num, img); err != nil {
			return err
		}
	}
	if err := db.log.Sync(); err != nil {
		return err
	}
	if err := db.table.FlushDirty(); err != nil {
		return err
	}
	if err := db.tableBase.Sync(); err != nil {
		return err
	}

	// truncating the log commits the batch
	return db.log.Reset()
}

// Shutdown commits the current batch, stops the writer and releases
// the advisory lock.  The handle is unusable afterwards.
func (db *Database) Shutdown() error {
	if db.closed.Swap(true) {
		return nil
	}
	db.mu.Lock()
	defer db.mu.Unlock()

	var first error
	if db.failed == nil {
		first = db.commitLocked()
	}
	if err := db.writer.Close(); err != nil && first == nil {
		first = err
	}
	for _, c := range []io.Closer{db.dataBase, db.linkBase, db.tableBase, db.log} {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	if db.lock != nil {
		if err := unix.Flock(int(db.lock.Fd()), unix.LOCK_UN); err != nil && first == nil {
			first = fmt.Errorf("funlock: %w", err)
		}
		if err := db.lock.Close(); err != nil && first == nil {
			first = err
		}
	}
	db.logger.Info("shut down", "name", db.name)
	return first
}
