// Package cache provides the bounded, time-expiring store that sits in front
// of every fetcher.
//
// Entries age from insertion: a Get never refreshes recency, so once the store
// is full the oldest inserted entry is evicted first and every entry expires on
// a fixed wall-clock schedule regardless of read traffic.
package cache

import (
	"container/list"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/contentrelay/internal/clock"
)

// Defaults applied when Config leaves a field unset.
const (
	DefaultMaxSize = 1000
	DefaultTTL     = time.Hour
)

// Config sizes the cache.
type Config struct {
	MaxSize int
	TTL     time.Duration
}

// Entry is a cached value with its bookkeeping.
type Entry[V any] struct {
	Key         string
	Value       V
	CachedAt    time.Time
	ContentType string
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Size    int     `json:"size"`
	MaxSize int     `json:"maxSize"`
	HitRate float64 `json:"hitRate"`
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
}

// Cache is safe for concurrent use.
type Cache[V any] struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	clock   clock.Clock
	order   *list.List // front = oldest insertion
	items   map[string]*list.Element
	hits    int64
	misses  int64
}

// New builds a Cache. A nil clock falls back to the system clock.
func New[V any](cfg Config, clk clock.Clock) *Cache[V] {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultMaxSize
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Cache[V]{
		maxSize: cfg.MaxSize,
		ttl:     cfg.TTL,
		clock:   clk,
		order:   list.New(),
		items:   make(map[string]*list.Element),
	}
}

// Key builds a deterministic key as prefix:k1=v1&k2=v2 with keys sorted.
func Key(prefix string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(prefix)
	sb.WriteByte(':')
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(params[k])
	}
	return sb.String()
}

// Get returns the live value stored under key.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.lookup(key)
	if !ok {
		c.misses++
		var zero V
		return zero, false
	}
	c.hits++
	return entry.Value, true
}

// Set stores value, replacing any previous entry for key as a fresh insertion.
func (c *Cache[V]) Set(key string, value V, contentType string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.order.Remove(el)
		delete(c.items, key)
	}
	for c.order.Len() >= c.maxSize {
		c.removeElement(c.order.Front())
	}
	c.items[key] = c.order.PushBack(&Entry[V]{
		Key:         key,
		Value:       value,
		CachedAt:    c.clock.Now(),
		ContentType: contentType,
	})
}

// Has reports whether a live entry exists without touching hit counters.
func (c *Cache[V]) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.lookup(key)
	return ok
}

// Delete removes key and reports whether it was present.
func (c *Cache[V]) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return false
	}
	c.removeElement(el)
	return true
}

// DeleteByPrefix removes every key starting with prefix and returns the count.
func (c *Cache[V]) DeleteByPrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for el := c.order.Front(); el != nil; {
		next := el.Next()
		if strings.HasPrefix(el.Value.(*Entry[V]).Key, prefix) {
			c.removeElement(el)
			removed++
		}
		el = next
	}
	return removed
}

// Clear drops every entry and resets the hit/miss counters.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.order.Init()
	c.items = make(map[string]*list.Element)
	c.hits = 0
	c.misses = 0
}

// RemainingTTL returns how long key stays live.
func (c *Cache[V]) RemainingTTL(key string) (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.lookup(key)
	if !ok {
		return 0, false
	}
	return c.ttl - c.clock.Now().Sub(entry.CachedAt), true
}

// Stats returns the current counters.
func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	var rate float64
	if total := c.hits + c.misses; total > 0 {
		rate = float64(c.hits) / float64(total)
	}
	return Stats{
		Size:    len(c.items),
		MaxSize: c.maxSize,
		HitRate: rate,
		Hits:    c.hits,
		Misses:  c.misses,
	}
}

// lookup returns the live entry for key, dropping it if expired. Callers hold mu.
func (c *Cache[V]) lookup(key string) (*Entry[V], bool) {
	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*Entry[V])
	if c.clock.Now().Sub(entry.CachedAt) >= c.ttl {
		c.removeElement(el)
		return nil, false
	}
	return entry, true
}

func (c *Cache[V]) removeElement(el *list.Element) {
	entry := c.order.Remove(el).(*Entry[V])
	delete(c.items, entry.Key)
}
