// CamGrid - Live and Recorded Camera Grid Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/camgrid

package cache

import (
	"sort"
	"sync"
	"time"
)

// timeEntry is a node in the recency list of a TimeCache.
type timeEntry[T any] struct {
	key       int64
	timestamp time.Time
	payload   T
	keyframe  bool
	prev      *timeEntry[T]
	next      *timeEntry[T]
}

// TimeCache is a thread-safe LRU cache keyed by timestamp with nearest
// neighbour lookup.
//
// Key features:
//   - O(1) exact Get and recency updates
//   - O(log n) GetNearest over a sorted key index
//   - Put on an existing timestamp is a no-op and does not refresh recency
//   - Payloads are cloned on the way out so callers never alias cache memory
//
// Keys are Unix milliseconds. The recency list uses the same sentinel
// doubly-linked list layout as the other caches in this package.
type TimeCache[T any] struct {
	mu sync.Mutex

	capacity int
	clone    func(T) T

	// items maps keys to list nodes for O(1) lookup
	items map[int64]*timeEntry[T]

	// keys is kept sorted for nearest-neighbour search
	keys []int64

	// head.next is the most recently used, tail.prev the least
	head *timeEntry[T]
	tail *timeEntry[T]

	hits   int64
	misses int64
}

// NewTimeCache creates a cache holding at most capacity entries. clone may be
// nil when T is a value type with no shared memory.
func NewTimeCache[T any](capacity int, clone func(T) T) *TimeCache[T] {
	if capacity <= 0 {
		capacity = DefaultFrameCapacity
	}
	if clone == nil {
		clone = func(v T) T { return v }
	}

	c := &TimeCache[T]{
		capacity: capacity,
		clone:    clone,
		items:    make(map[int64]*timeEntry[T], capacity),
		keys:     make([]int64, 0, capacity),
		head:     &timeEntry[T]{},
		tail:     &timeEntry[T]{},
	}
	c.head.next = c.tail
	c.tail.prev = c.head
	return c
}

func keyOf(ts time.Time) int64 {
	return ts.UnixMilli()
}

// Put stores payload under ts. If ts is already cached nothing changes.
// Otherwise the entry becomes the most recent and, when the cache is over
// capacity, the least recent entry is evicted.
func (c *TimeCache[T]) Put(ts time.Time, payload T, keyframe bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := keyOf(ts)
	if _, exists := c.items[key]; exists {
		return
	}

	entry := &timeEntry[T]{
		key:       key,
		timestamp: ts,
		payload:   c.clone(payload),
		keyframe:  keyframe,
	}
	c.addToFront(entry)
	c.items[key] = entry
	c.insertKey(key)

	for len(c.items) > c.capacity {
		c.evictOldest()
	}
}

// Get returns the payload stored at exactly ts, promoting it on a hit.
func (c *TimeCache[T]) Get(ts time.Time) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, exists := c.items[keyOf(ts)]; exists {
		c.moveToFront(entry)
		c.hits++
		return c.clone(entry.payload), true
	}

	c.misses++
	var zero T
	return zero, false
}

// GetNearest returns the entry closest to ts within maxDelta, along with the
// timestamp it was stored under. Only the immediate predecessor and successor
// in key order are examined; on a tie the earlier entry wins. A hit is promoted.
func (c *TimeCache[T]) GetNearest(ts time.Time, maxDelta time.Duration) (time.Time, T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	if len(c.keys) == 0 {
		c.misses++
		return time.Time{}, zero, false
	}

	key := keyOf(ts)
	limit := maxDelta.Milliseconds()
	idx := sort.Search(len(c.keys), func(i int) bool { return c.keys[i] >= key })

	best := int64(-1)
	bestDist := int64(-1)
	if idx > 0 {
		pred := c.keys[idx-1]
		if d := key - pred; d <= limit {
			best, bestDist = pred, d
		}
	}
	if idx < len(c.keys) {
		succ := c.keys[idx]
		if d := succ - key; d <= limit && (bestDist < 0 || d < bestDist) {
			best, bestDist = succ, d
		}
	}

	if bestDist < 0 {
		c.misses++
		return time.Time{}, zero, false
	}

	entry := c.items[best]
	c.moveToFront(entry)
	c.hits++
	return entry.timestamp, c.clone(entry.payload), true
}

// Contains reports whether ts is cached without updating recency.
func (c *TimeCache[T]) Contains(ts time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, exists := c.items[keyOf(ts)]
	return exists
}

// IsKeyframe reports whether the entry at ts was stored as a keyframe.
func (c *TimeCache[T]) IsKeyframe(ts time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, exists := c.items[keyOf(ts)]; exists {
		return entry.keyframe
	}
	return false
}

// Range returns the earliest and latest cached timestamps.
func (c *TimeCache[T]) Range() (earliest, latest time.Time, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.keys) == 0 {
		return time.Time{}, time.Time{}, false
	}
	return c.items[c.keys[0]].timestamp, c.items[c.keys[len(c.keys)-1]].timestamp, true
}

// Len returns the current number of entries.
func (c *TimeCache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Capacity returns the configured maximum number of entries.
func (c *TimeCache[T]) Capacity() int {
	return c.capacity
}

// Clear removes all entries. Hit and miss counters are kept.
func (c *TimeCache[T]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[int64]*timeEntry[T], c.capacity)
	c.keys = c.keys[:0]
	c.head.next = c.tail
	c.tail.prev = c.head
}

// Stats returns hit/miss statistics.
func (c *TimeCache[T]) Stats() (hits, misses int64, size int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses, len(c.items)
}

// Internal methods (must be called with lock held)

func (c *TimeCache[T]) addToFront(entry *timeEntry[T]) {
	entry.prev = c.head
	entry.next = c.head.next
	c.head.next.prev = entry
	c.head.next = entry
}

func (c *TimeCache[T]) moveToFront(entry *timeEntry[T]) {
	entry.prev.next = entry.next
	entry.next.prev = entry.prev
	c.addToFront(entry)
}

func (c *TimeCache[T]) removeEntry(entry *timeEntry[T]) {
	entry.prev.next = entry.next
	entry.next.prev = entry.prev
	delete(c.items, entry.key)
	c.removeKey(entry.key)
}

func (c *TimeCache[T]) evictOldest() {
	oldest := c.tail.prev
	if oldest == c.head {
		return
	}
	c.removeEntry(oldest)
}

func (c *TimeCache[T]) insertKey(key int64) {
	i := sort.Search(len(c.keys), func(i int) bool { return c.keys[i] >= key })
	c.keys = append(c.keys, 0)
	copy(c.keys[i+1:], c.keys[i:])
	c.keys[i] = key
}

func (c *TimeCache[T]) removeKey(key int64) {
	i := sort.Search(len(c.keys), func(i int) bool { return c.keys[i] >= key })
	if i < len(c.keys) && c.keys[i] == key {
		c.keys = append(c.keys[:i], c.keys[i+1:]...)
	}
}
