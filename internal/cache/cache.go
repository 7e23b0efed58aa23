// Copyright 2026 The hammersbald Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package cache provides the bounded page cache all reads go through.
// Clean pages live in an LRU and may be evicted; dirty pages are pinned
// until the owner confirms they reached the layer below.
package cache

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/hammersbald/hammersbald/internal/page"
	"github.com/hammersbald/hammersbald/internal/pagedfile"
)

// Cache wraps a File with a fixed-capacity page LRU.
type Cache struct {
	file pagedfile.File

	mu    sync.Mutex
	clean *lru.Cache[uint64, *page.Page]
	dirty map[uint64]*page.Page

	hits, misses uint64
}

var _ pagedfile.File = (*Cache)(nil)

// New builds a cache of at most pages clean pages over file; a budget
// below 16 is raised to 16.
func New(file pagedfile.File, pages int) (*Cache, error) {
	if pages < 16 {
		pages = 16
	}
	clean, err := lru.New[uint64, *page.Page](pages)
	if err != nil {
		return nil, err
	}
	return &Cache{
		file:  file,
		clean: clean,
		dirty: map[uint64]*page.Page{},
	}, nil
}

// ReadPage serves from the dirty set, then the LRU, then the file; a
// miss populates the LRU.
func (c *Cache) ReadPage(num uint64) (*page.Page, error) {
	c.mu.Lock()
	if pg, ok := c.dirty[num]; ok {
		c.hits++
		c.mu.Unlock()
		return pg.Clone(), nil
	}
	if pg, ok := c.clean.Get(num); ok {
		c.hits++
		c.mu.Unlock()
		return pg.Clone(), nil
	}
	c.misses++
	c.mu.Unlock()

	pg, err := c.file.ReadPage(num)
	if err != nil || pg == nil {
		return pg, err
	}
	c.mu.Lock()
	c.clean.Add(num, pg.Clone())
	c.mu.Unlock()
	return pg, nil
}

// WritePage pins pg dirty and forwards it below.  The pin is released
// by Sweep once the owner knows the bytes are stable.
func (c *Cache) WritePage(pg *page.Page) error {
	c.mu.Lock()
	c.dirty[pg.Num] = pg.Clone()
	c.clean.Remove(pg.Num)
	c.mu.Unlock()
	return c.file.WritePage(pg)
}

// UpdatePage pins pg dirty without forwarding; FlushDirty later writes
// the pinned set below.  Used by the hash-table path, where pages are
// rewritten in place at commit.
func (c *Cache) UpdatePage(pg *page.Page) {
	c.mu.Lock()
	c.dirty[pg.Num] = pg.Clone()
	c.clean.Remove(pg.Num)
	c.mu.Unlock()
}

// FlushDirty writes every pinned page below and releases the pins.
func (c *Cache) FlushDirty() error {
	c.mu.Lock()
	pages := make([]*page.Page, 0, len(c.dirty))
	for _, pg := range c.dirty {
		pages = append(pages, pg)
	}
	c.mu.Unlock()

	for _, pg := range pages {
		if err := c.file.WritePage(pg); err != nil {
			return err
		}
	}
	c.Sweep()
	return nil
}

// Sweep moves all dirty pages to the clean LRU.
func (c *Cache) Sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for num, pg := range c.dirty {
		c.clean.Add(num, pg)
		delete(c.dirty, num)
	}
}

// Stats returns cumulative hit and miss counts.
func (c *Cache) Stats() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

func (c *Cache) Len() uint64 {
	return c.file.Len()
}

// Truncate drops cached pages at and beyond n.
func (c *Cache) Truncate(n uint64) error {
	c.mu.Lock()
	limit := n / page.Size
	for _, num := range c.clean.Keys() {
		if num >= limit {
			c.clean.Remove(num)
		}
	}
	for num := range c.dirty {
		if num >= limit {
			delete(c.dirty, num)
		}
	}
	// the boundary page's tail changes on disk; drop our copy
	if n%page.Size != 0 {
		c.clean.Remove(limit)
		delete(c.dirty, limit)
	}
	c.mu.Unlock()
	return c.file.Truncate(n)
}

func (c *Cache) Sync() error {
	return c.file.Sync()
}

func (c *Cache) Close() error {
	return c.file.Close()
}
