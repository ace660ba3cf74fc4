// Package weakcache memoizes values per key identity without keeping keys
// alive. An entry disappears once its key has been garbage collected, so a
// cache keyed by short-lived loaders does not grow with them.
package weakcache

import (
	"container/list"
	"fmt"
	"runtime"
	"sync"
	"weak"

	"golang.org/x/sync/singleflight"
)

// Options are construction hints.
type Options struct {
	// InitialCapacity pre-sizes the entry table.
	InitialCapacity int
	// MaxSize bounds the number of live entries; the oldest entry is evicted
	// when a new one would exceed it. Zero means unbounded.
	MaxSize int
}

// Cache maps *K identities to values of type V. Values must not reference
// their key, or the key can never be collected.
type Cache[K any, V any] struct {
	mu      sync.Mutex
	entries map[weak.Pointer[K]]*list.Element
	order   *list.List
	maxSize int
	flights singleflight.Group
}

type entry[K any, V any] struct {
	key   weak.Pointer[K]
	value V
}

func New[K any, V any](opts Options) *Cache[K, V] {
	return &Cache[K, V]{
		entries: make(map[weak.Pointer[K]]*list.Element, opts.InitialCapacity),
		order:   list.New(),
		maxSize: opts.MaxSize,
	}
}

// Get returns the value cached for key, if any.
func (c *Cache[K, V]) Get(key *K) (V, bool) {
	var zero V
	if key == nil {
		return zero, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[weak.Make(key)]; ok {
		return el.Value.(*entry[K, V]).value, true
	}
	return zero, false
}

// GetIfPresentOrCompute returns the cached value for key or computes, stores
// and returns it. Concurrent callers missing on the same key share a single
// computation. Only a completed computation is stored: if compute panics the
// panic reaches every waiting caller and nothing is cached. A nil key is never
// cached.
func (c *Cache[K, V]) GetIfPresentOrCompute(key *K, compute func() V) V {
	if key == nil {
		return compute()
	}
	if v, ok := c.Get(key); ok {
		return v
	}
	v, _, _ := c.flights.Do(fmt.Sprintf("%p", key), func() (any, error) {
		if v, ok := c.Get(key); ok {
			return v, nil
		}
		v := compute()
		c.put(key, v)
		return v, nil
	})
	if v == nil {
		var zero V
		return zero
	}
	return v.(V)
}

func (c *Cache[K, V]) put(key *K, value V) {
	wp := weak.Make(key)

	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[wp]; ok {
		el.Value.(*entry[K, V]).value = value
		return
	}
	if c.maxSize > 0 && len(c.entries) >= c.maxSize {
		if oldest := c.order.Front(); oldest != nil {
			c.order.Remove(oldest)
			delete(c.entries, oldest.Value.(*entry[K, V]).key)
		}
	}
	c.entries[wp] = c.order.PushBack(&entry[K, V]{key: wp, value: value})
	runtime.AddCleanup(key, c.remove, wp)
}

func (c *Cache[K, V]) remove(wp weak.Pointer[K]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[wp]; ok {
		c.order.Remove(el)
		delete(c.entries, wp)
	}
}

// Len returns the number of entries whose keys have not been collected yet.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
