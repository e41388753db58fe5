// internal/cache/lru.go
//
// Bounded least-recently-used cache with idle expiry.
//
// Context
// -------
// The tenant manager stores one live database client per tenant.  Entries
// expire when idle longer than the TTL and the oldest entries are pushed
// out once the cache exceeds its capacity.  Every removal is reported to
// an optional eviction callback so the owner can release resources.
//
// Notes
// -----
//   - Safe for concurrent use.  The callback runs after the lock is
//     released, so it may call back into the cache.
//   - "Idle" means now minus last access; a hit refreshes the timestamp.
package cache

import (
	"container/list"
	"sync"
	"time"
)

// Reason tells the eviction callback why an entry left the cache.
type Reason string

const (
	ReasonExpired  Reason = "ttl"
	ReasonCapacity Reason = "lru"
	ReasonRemoved  Reason = "invalidate"
	ReasonReplaced Reason = "replaced"
)

// EvictFunc receives every entry removed by expiry, capacity pressure,
// Remove, or overwrite.  Drain does not call it.
type EvictFunc[K comparable, V any] func(key K, val V, reason Reason)

// LRU is a generic least-recently-used cache with idle TTL.
type LRU[K comparable, V any] struct {
	mu      sync.Mutex
	cap     int
	ttl     time.Duration
	now     func() time.Time
	onEvict EvictFunc[K, V]
	ll      *list.List
	dict    map[K]*list.Element
}

type item[K comparable, V any] struct {
	key      K
	val      V
	lastSeen time.Time
}

type evicted[K comparable, V any] struct {
	key    K
	val    V
	reason Reason
}

// Option customises an LRU at construction time.
type Option[K comparable, V any] func(*LRU[K, V])

// WithClock overrides time.Now, mainly for tests.
func WithClock[K comparable, V any](now func() time.Time) Option[K, V] {
	return func(c *LRU[K, V]) { c.now = now }
}

// WithEvict installs the eviction callback.
func WithEvict[K comparable, V any](fn EvictFunc[K, V]) Option[K, V] {
	return func(c *LRU[K, V]) { c.onEvict = fn }
}

// New returns an LRU holding at most capacity entries.  A ttl of zero
// disables idle expiry.  Panics on capacity < 1.
func New[K comparable, V any](capacity int, ttl time.Duration, opts ...Option[K, V]) *LRU[K, V] {
	if capacity < 1 {
		panic("cache: capacity must be ≥1")
	}
	c := &LRU[K, V]{
		cap:  capacity,
		ttl:  ttl,
		now:  time.Now,
		ll:   list.New(),
		dict: make(map[K]*list.Element, capacity),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Get returns the value for key and marks it most recently used.  An
// expired entry is removed, reported with ReasonExpired, and treated as a
// miss.
func (c *LRU[K, V]) Get(key K) (val V, ok bool) {
	c.mu.Lock()
	ele, hit := c.dict[key]
	if !hit {
		c.mu.Unlock()
		return val, false
	}
	now := c.now()
	it := ele.Value.(*item[K, V])
	if c.expired(it, now) {
		c.removeElement(ele)
		c.mu.Unlock()
		c.notify([]evicted[K, V]{{key: it.key, val: it.val, reason: ReasonExpired}})
		return val, false
	}
	it.lastSeen = now
	c.ll.MoveToFront(ele)
	c.mu.Unlock()
	return it.val, true
}

// Add inserts or overwrites key.  When the cache grows past capacity the
// least recently used entries are removed one at a time.
func (c *LRU[K, V]) Add(key K, val V) {
	var out []evicted[K, V]

	c.mu.Lock()
	now := c.now()
	if ele, hit := c.dict[key]; hit {
		it := ele.Value.(*item[K, V])
		out = append(out, evicted[K, V]{key: key, val: it.val, reason: ReasonReplaced})
		it.val = val
		it.lastSeen = now
		c.ll.MoveToFront(ele)
	} else {
		c.dict[key] = c.ll.PushFront(&item[K, V]{key: key, val: val, lastSeen: now})
	}
	for c.ll.Len() > c.cap {
		last := c.ll.Back()
		it := last.Value.(*item[K, V])
		c.removeElement(last)
		out = append(out, evicted[K, V]{key: it.key, val: it.val, reason: ReasonCapacity})
	}
	c.mu.Unlock()

	c.notify(out)
}

// Remove deletes key and reports whether it was present.
func (c *LRU[K, V]) Remove(key K) bool {
	c.mu.Lock()
	ele, hit := c.dict[key]
	if !hit {
		c.mu.Unlock()
		return false
	}
	it := ele.Value.(*item[K, V])
	c.removeElement(ele)
	c.mu.Unlock()

	c.notify([]evicted[K, V]{{key: it.key, val: it.val, reason: ReasonRemoved}})
	return true
}

// RemoveFunc deletes every entry match accepts, reporting each with
// ReasonRemoved, and returns how many went.  match runs under the lock
// and must not call back into the cache.
func (c *LRU[K, V]) RemoveFunc(match func(key K, val V) bool) int {
	var out []evicted[K, V]

	c.mu.Lock()
	for ele := c.ll.Front(); ele != nil; {
		next := ele.Next()
		it := ele.Value.(*item[K, V])
		if match(it.key, it.val) {
			c.removeElement(ele)
			out = append(out, evicted[K, V]{key: it.key, val: it.val, reason: ReasonRemoved})
		}
		ele = next
	}
	c.mu.Unlock()

	c.notify(out)
	return len(out)
}

// RemoveExpired sweeps idle entries from the cold end of the list and
// returns how many were removed.
func (c *LRU[K, V]) RemoveExpired() int {
	if c.ttl <= 0 {
		return 0
	}
	var out []evicted[K, V]

	c.mu.Lock()
	now := c.now()
	for ele := c.ll.Back(); ele != nil; {
		it := ele.Value.(*item[K, V])
		if !c.expired(it, now) {
			break // everything nearer the front was seen more recently
		}
		prev := ele.Prev()
		c.removeElement(ele)
		out = append(out, evicted[K, V]{key: it.key, val: it.val, reason: ReasonExpired})
		ele = prev
	}
	c.mu.Unlock()

	c.notify(out)
	return len(out)
}

// Drain empties the cache and returns the values it held, without calling
// the eviction callback.  The caller takes ownership of the values.
func (c *LRU[K, V]) Drain() []V {
	c.mu.Lock()
	defer c.mu.Unlock()

	vals := make([]V, 0, c.ll.Len())
	for ele := c.ll.Front(); ele != nil; ele = ele.Next() {
		vals = append(vals, ele.Value.(*item[K, V]).val)
	}
	c.ll.Init()
	c.dict = make(map[K]*list.Element, c.cap)
	return vals
}

// Len reports current size.
func (c *LRU[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// Keys returns keys ordered from most to least recently used.
func (c *LRU[K, V]) Keys() []K {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]K, 0, c.ll.Len())
	for ele := c.ll.Front(); ele != nil; ele = ele.Next() {
		keys = append(keys, ele.Value.(*item[K, V]).key)
	}
	return keys
}

func (c *LRU[K, V]) expired(it *item[K, V], now time.Time) bool {
	return c.ttl > 0 && now.Sub(it.lastSeen) > c.ttl
}

// removeElement must be called with c.mu held.
func (c *LRU[K, V]) removeElement(ele *list.Element) {
	c.ll.Remove(ele)
	delete(c.dict, ele.Value.(*item[K, V]).key)
}

func (c *LRU[K, V]) notify(out []evicted[K, V]) {
	if c.onEvict == nil {
		return
	}
	for _, e := range out {
		c.onEvict(e.key, e.val, e.reason)
	}
}
