// Package cache holds rewritten responses keyed by canonical target URL.
//
// Entries expire after a fixed TTL and the cache evicts in insertion order
// once it reaches capacity. Concurrent misses for the same URL are not
// coalesced: both requests fetch upstream and the second Put wins.
package cache

import (
	"container/list"
	"net/http"
	"sync"
	"time"

	"mirror-proxy/internal/metrics"
)

// DefaultTTL is used when Options.TTL is zero.
const DefaultTTL = time.Hour

// DefaultCapacity is used when Options.Capacity is zero.
const DefaultCapacity = 500

// Entry is one cached, already-rewritten response.
type Entry struct {
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
	InsertedAt time.Time
}

// Options configures a Cache.
type Options struct {
	Enabled  bool
	TTL      time.Duration
	Capacity int
	Metrics  *metrics.Metrics
	Now      func() time.Time // test hook; defaults to time.Now
}

// Cache is a TTL cache with insertion-order eviction.
// A disabled Cache accepts every call and stores nothing.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*list.Element // value: *Entry
	order   *list.List               // oldest insertion at front
	opts    Options
}

// New creates a cache from opts, filling zero values with defaults.
func New(opts Options) *Cache {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Cache{
		entries: make(map[string]*list.Element),
		order:   list.New(),
		opts:    opts,
	}
}

// Enabled reports whether the cache stores anything.
func (c *Cache) Enabled() bool { return c.opts.Enabled }

// TTL returns the configured entry lifetime.
func (c *Cache) TTL() time.Duration { return c.opts.TTL }

// Capacity returns the maximum number of entries.
func (c *Cache) Capacity() int { return c.opts.Capacity }

// Get returns the entry for url if present and younger than the TTL.
// Expired entries are removed on access.
func (c *Cache) Get(url string) (*Entry, bool) {
	if !c.opts.Enabled {
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[url]
	if !ok {
		c.opts.Metrics.RecordCache("miss")
		return nil, false
	}
	entry := el.Value.(*Entry)
	if c.opts.Now().Sub(entry.InsertedAt) > c.opts.TTL {
		c.removeLocked(el)
		c.opts.Metrics.RecordCache("expired")
		return nil, false
	}
	c.opts.Metrics.RecordCache("hit")
	return entry, true
}

// Put stores entry under url, evicting the oldest insertions while the
// cache is full. Re-putting a key moves it to the newest position.
func (c *Cache) Put(url string, entry Entry) {
	if !c.opts.Enabled {
		return
	}

	entry.URL = url
	if entry.InsertedAt.IsZero() {
		entry.InsertedAt = c.opts.Now()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[url]; ok {
		c.removeLocked(el)
	}
	for c.order.Len() >= c.opts.Capacity {
		c.removeLocked(c.order.Front())
		c.opts.Metrics.RecordCache("evicted")
	}
	c.entries[url] = c.order.PushBack(&entry)
}

// Clear drops every entry and returns how many were removed.
func (c *Cache) Clear() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := c.order.Len()
	c.entries = make(map[string]*list.Element)
	c.order.Init()
	return n
}

// Len returns the number of stored entries, including expired ones not
// yet accessed.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *Cache) removeLocked(el *list.Element) {
	entry := c.order.Remove(el).(*Entry)
	delete(c.entries, entry.URL)
}
