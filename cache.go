/*
Copyright © 2019 the boutload authors.
This file is part of boutload.

boutload is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

boutload is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with boutload.  If not, see <http://www.gnu.org/licenses/>.
*/

package boutload

import (
	"fmt"
	"os"
	"sync"

	"github.com/ctessum/cdf"
	"github.com/golang/groupcache/lru"
)

// DefaultHandleCacheSize is the default maximum number of netCDF files
// held open at any one time. A decomposed run can easily consist of more
// tiles than the operating system allows open file descriptors, so tile
// handles are pooled and recycled.
const DefaultHandleCacheSize = 256

// handle is one open tile file. size is recorded at open time so the
// number of time records can be computed from the header without another
// stat call.
type handle struct {
	f    *os.File
	cf   *cdf.File
	size int64
}

// A HandleCache is a bounded pool of open netCDF file handles.
// When the pool is full, the least recently used handle is closed.
// All reads of tile data go through the cache, so callers never hold a
// handle across an eviction.
type HandleCache struct {
	mu  sync.Mutex
	lru *lru.Cache
}

// NewHandleCache returns a cache that holds at most maxOpen open files.
func NewHandleCache(maxOpen int) *HandleCache {
	c := &HandleCache{lru: lru.New(maxOpen)}
	c.lru.OnEvicted = func(key lru.Key, value interface{}) {
		value.(*handle).f.Close()
	}
	return c
}

// fileHandles is the process-wide handle pool shared by all datasets.
var fileHandles = NewHandleCache(DefaultHandleCacheSize)

func (c *HandleCache) get(path string) (*handle, error) {
	if v, ok := c.lru.Get(path); ok {
		return v.(*handle), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("boutload: opening %s: %v", path, err)
	}
	cf, err := cdf.Open(f)
	if err != nil {
		f.Close()
		return nil, inputErrorf("boutload: %s is not a valid netCDF file: %v", path, err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	h := &handle{f: f, cf: cf, size: fi.Size()}
	c.lru.Add(path, h)
	return h, nil
}

// With opens path (or reuses a pooled handle) and calls fn with the open
// file. The handle is guaranteed to stay open for the duration of fn.
func (c *HandleCache) With(path string, fn func(cf *cdf.File, size int64) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, err := c.get(path)
	if err != nil {
		return err
	}
	return fn(h.cf, h.size)
}

// Remove closes and forgets the handle for path, if one is pooled.
func (c *HandleCache) Remove(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(path)
}
