// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// ResultCache caches analysis results by commit fingerprint with
// at-most-once computation.
//
// # Description
//
// Concurrent callers for the same fingerprint block on the single
// in-flight computation rather than duplicating work (singleflight).
// Successful results are retained under an LRU bound; failed
// computations are never cached, so a later caller may retry.
//
// # Thread Safety
//
// Safe for concurrent use. The entry map is guarded by a RWMutex and
// computation dedup goes through a singleflight.Group, which serializes
// writers per fingerprint while distinct fingerprints proceed in
// parallel.
type ResultCache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	lru     *list.List
	flight  singleflight.Group
	max     int

	// Stats
	hits     atomic.Int64
	misses   atomic.Int64
	computes atomic.Int64
	evicted  atomic.Int64
}

// cacheEntry is one cached result plus its LRU position.
type cacheEntry struct {
	key        string
	result     *AnalysisResult
	lruElement *list.Element
}

// DefaultCacheSize bounds the cache when the caller does not.
const DefaultCacheSize = 1024

// NewResultCache creates a ResultCache holding at most max entries.
// A non-positive max falls back to DefaultCacheSize.
func NewResultCache(max int) *ResultCache {
	if max <= 0 {
		max = DefaultCacheSize
	}
	return &ResultCache{
		entries: make(map[string]*cacheEntry),
		lru:     list.New(),
		max:     max,
	}
}

// GetOrCompute returns the cached result for fingerprint or runs compute
// exactly once to produce it.
//
// # Inputs
//
//   - ctx: Context for the computation. Must not be nil.
//   - fingerprint: Deterministic cache key (CommitDescriptor.Fingerprint).
//   - compute: Invoked at most once per concurrent wave of callers.
//
// # Outputs
//
//   - *AnalysisResult: The cached or freshly computed result.
//   - error: A *CacheComputeError wrapping the compute failure. Nothing
//     is cached on error.
func (c *ResultCache) GetOrCompute(
	ctx context.Context,
	fingerprint string,
	compute func(ctx context.Context) (*AnalysisResult, error),
) (*AnalysisResult, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}

	if result, ok := c.Get(fingerprint); ok {
		c.hits.Add(1)
		return result, nil
	}
	c.misses.Add(1)

	v, err, _ := c.flight.Do(fingerprint, func() (any, error) {
		// A racing caller may have stored the entry between our miss and
		// the flight admission.
		if result, ok := c.Get(fingerprint); ok {
			return result, nil
		}
		c.computes.Add(1)
		result, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		c.put(fingerprint, result)
		return result, nil
	})
	if err != nil {
		return nil, &CacheComputeError{Fingerprint: fingerprint, Err: err}
	}
	return v.(*AnalysisResult), nil
}

// Get returns the cached result for fingerprint, if present. Get does not
// touch the hit and miss counters; those track one observation per
// GetOrCompute call, so extra lookups never skew Stats.
func (c *ResultCache) Get(fingerprint string) (*AnalysisResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[fingerprint]
	if !ok {
		return nil, false
	}
	c.lru.MoveToFront(entry.lruElement)
	return entry.result, true
}

// Invalidate removes the entry for fingerprint so the next caller
// recomputes. Used when a recompute must supersede a cached result.
func (c *ResultCache) Invalidate(fingerprint string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.entries[fingerprint]; ok {
		c.lru.Remove(entry.lruElement)
		delete(c.entries, fingerprint)
	}
}

// Len returns the number of cached entries.
func (c *ResultCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// CacheStats is a point-in-time snapshot of cache counters.
type CacheStats struct {
	Hits     int64 `json:"hits"`
	Misses   int64 `json:"misses"`
	Computes int64 `json:"computes"`
	Evicted  int64 `json:"evicted"`
	Entries  int   `json:"entries"`
}

// Stats returns a snapshot of the cache counters.
func (c *ResultCache) Stats() CacheStats {
	return CacheStats{
		Hits:     c.hits.Load(),
		Misses:   c.misses.Load(),
		Computes: c.computes.Load(),
		Evicted:  c.evicted.Load(),
		Entries:  c.Len(),
	}
}

// put stores a successful result, evicting the least recently used entry
// when the bound is exceeded. A cached result is never mutated in place:
// a newer result for the same fingerprint replaces the old entry whole.
func (c *ResultCache) put(fingerprint string, result *AnalysisResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[fingerprint]; ok {
		entry.result = result
		c.lru.MoveToFront(entry.lruElement)
		return
	}

	entry := &cacheEntry{key: fingerprint, result: result}
	entry.lruElement = c.lru.PushFront(entry)
	c.entries[fingerprint] = entry

	for len(c.entries) > c.max {
		oldest := c.lru.Back()
		if oldest == nil {
			break
		}
		victim := oldest.Value.(*cacheEntry)
		c.lru.Remove(oldest)
		delete(c.entries, victim.key)
		c.evicted.Add(1)
	}
}
