// Copyright 2026 The hammersbald Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package asyncfile drains page writes to disk on a dedicated
// goroutine.  One Writer serves all append stores of a database; the
// API thread only blocks when the queue is full, or at a batch boundary
// when Drain waits for the queue to empty.
package asyncfile

import (
	"errors"
	"sync"

	"github.com/hammersbald/hammersbald/internal/page"
	"github.com/hammersbald/hammersbald/internal/pagedfile"
)

// ErrClosed is returned for writes after the writer shut down.
var ErrClosed = errors.New("async writer closed")

const queueDepth = 128

type item struct {
	dst pagedfile.File
	pg  *page.Page
}

type pendingKey struct {
	dst pagedfile.File
	num uint64
}

// Writer is the message loop owning write access to the stores it
// wraps.  The first write error is latched; every later write and the
// next Drain surface it.
type Writer struct {
	ch   chan item
	done chan struct{}

	mu       sync.Mutex
	cond     *sync.Cond
	pending  map[pendingKey]*page.Page
	inflight int
	err      error
	closed   bool
}

func NewWriter() *Writer {
	w := &Writer{
		ch:      make(chan item, queueDepth),
		done:    make(chan struct{}),
		pending: map[pendingKey]*page.Page{},
	}
	w.cond = sync.NewCond(&w.mu)
	go w.run()
	return w
}

func (w *Writer) run() {
	defer close(w.done)
	for it := range w.ch {
		err := it.dst.WritePage(it.pg)

		w.mu.Lock()
		if err != nil && w.err == nil {
			w.err = err
		}
		key := pendingKey{it.dst, it.pg.Num}
		if w.pending[key] == it.pg {
			delete(w.pending, key)
		}
		w.inflight--
		w.cond.Broadcast()
		w.mu.Unlock()
	}
}

func (w *Writer) enqueue(dst pagedfile.File, pg *page.Page) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrClosed
	}
	if w.err != nil {
		err := w.err
		w.mu.Unlock()
		return err
	}
	w.pending[pendingKey{dst, pg.Num}] = pg
	w.inflight++
	w.mu.Unlock()

	w.ch <- item{dst, pg}
	return nil
}

func (w *Writer) pendingPage(dst pagedfile.File, num uint64) *page.Page {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pending[pendingKey{dst, num}]
}

// Drain blocks until every queued page has been handed to its store,
// then returns the latched error, if any.
func (w *Writer) Drain() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for w.inflight > 0 {
		w.cond.Wait()
	}
	return w.err
}

// Err returns the latched write error without draining.
func (w *Writer) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Close drains and stops the goroutine.
func (w *Writer) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	for w.inflight > 0 {
		w.cond.Wait()
	}
	w.mu.Unlock()

	close(w.ch)
	<-w.done
	return w.Err()
}

// Wrap returns a File whose writes go through the writer's queue and
// whose reads see queued-but-unwritten pages.
func (w *Writer) Wrap(f pagedfile.File) pagedfile.File {
	return &handle{w: w, f: f}
}

type handle struct {
	w *Writer
	f pagedfile.File
}

var _ pagedfile.File = (*handle)(nil)

func (h *handle) ReadPage(num uint64) (*page.Page, error) {
	if pg := h.w.pendingPage(h.f, num); pg != nil {
		return pg.Clone(), nil
	}
	return h.f.ReadPage(num)
}

func (h *handle) WritePage(pg *page.Page) error {
	return h.w.enqueue(h.f, pg)
}

func (h *handle) Len() uint64 {
	return h.f.Len()
}

func (h *handle) Truncate(n uint64) error {
	if err := h.w.Drain(); err != nil {
		return err
	}
	return h.f.Truncate(n)
}

func (h *handle) Sync() error {
	return h.f.Sync()
}

func (h *handle) Close() error {
	return h.f.Close()
}
