// Package cache provides the process-wide response cache shared by the
// completion and synthesis paths. Entries expire by TTL and are evicted in
// strict insertion order (FIFO, not LRU: a read never refreshes age).
package cache

import (
	"strings"
	"sync"
	"time"
)

// Kind separates cache namespaces so identical prompts with different
// options (e.g. voice settings) do not collide.
type Kind string

const (
	KindCompletion Kind = "completion"
	KindSynthesis  Kind = "synthesis"
)

// Key is the composite cache key: operation kind + normalized input +
// serialized options.
type Key struct {
	Kind    Kind
	Input   string
	Options string
}

// NewKey normalizes the input text (trimmed, inner whitespace collapsed)
// before building the key.
func NewKey(kind Kind, input, options string) Key {
	return Key{
		Kind:    kind,
		Input:   strings.Join(strings.Fields(input), " "),
		Options: options,
	}
}

type entry struct {
	value      []byte
	insertedAt time.Time
	seq        uint64
}

// ResponseCache is a bounded FIFO cache with TTL-as-absent semantics:
// an entry older than the TTL is never returned, but stays resident until
// capacity pressure evicts it. Safe for concurrent use; eviction order is
// by insertion sequence number, not wall clock.
type ResponseCache struct {
	maxEntries int
	ttl        time.Duration

	mu      sync.Mutex
	entries map[Key]*entry
	nextSeq uint64
	clock   func() time.Time
}

const (
	DefaultMaxEntries = 100
	DefaultTTL        = 5 * time.Minute
)

func New(maxEntries int, ttl time.Duration) *ResponseCache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ResponseCache{
		maxEntries: maxEntries,
		ttl:        ttl,
		entries:    make(map[Key]*entry),
		clock:      time.Now,
	}
}

// Get returns the cached value, or false if the key is absent or expired.
// Expired entries are treated as absent even while still resident.
func (c *ResponseCache) Get(key Key) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.clock().Sub(e.insertedAt) > c.ttl {
		return nil, false
	}
	return e.value, true
}

// Put inserts a value. At capacity, the entry with the lowest insertion
// sequence is evicted first. Overwriting an existing key refreshes the value
// and timestamp but keeps its position in the eviction order.
func (c *ResponseCache) Put(key Key, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		e.insertedAt = c.clock()
		return
	}

	if len(c.entries) >= c.maxEntries {
		c.evictOldestLocked()
	}

	c.entries[key] = &entry{
		value:      value,
		insertedAt: c.clock(),
		seq:        c.nextSeq,
	}
	c.nextSeq++
}

// Len reports the number of resident entries, expired ones included.
func (c *ResponseCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *ResponseCache) evictOldestLocked() {
	var oldestKey Key
	var oldest *entry
	for k, e := range c.entries {
		if oldest == nil || e.seq < oldest.seq {
			oldestKey, oldest = k, e
		}
	}
	if oldest != nil {
		delete(c.entries, oldestKey)
	}
}
