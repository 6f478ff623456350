package ledgercache

import (
	"context"
	"fmt"
	"iter"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ledgercache/ledgercache/log"
)

// the ledger is compacted once it holds more than compactFactor records per slot
const (
	compactFactor       = 2
	minCompactLedgerLen = 64
)

// OnCacheHitCallback will be called on cache get if entry was found
type OnCacheHitCallback[K comparable] func(key K)

// OnCacheMissCallback will be called on cache get if entry was not found
type OnCacheMissCallback[K comparable] func(key K)

// OnAfterPutCallback will be called after a value was stored, with the new slot count
type OnAfterPutCallback func(newSize int)

// OnEvictedCallback will be called after cleanup dropped the slot of the key
type OnEvictedCallback[K comparable] func(key K)

// OnRemovedCallback will be called after Remove, RemoveFunc or a read dropped a slot, with the new slot count
type OnRemovedCallback func(newSize int)

type Options[K comparable] struct {
	// Capacity is the soft maximum entry count, 0 means unbounded
	Capacity uint64
	// EntryTTL is applied to every entry at write time, <= 0 means entries never expire
	EntryTTL time.Duration

	OnCacheHitFn  OnCacheHitCallback[K]
	OnCacheMissFn OnCacheMissCallback[K]
	OnAfterPutFn  OnAfterPutCallback
	OnEvictedFn   OnEvictedCallback[K]
	OnRemovedFn   OnRemovedCallback
}

// LedgerCache maps keys to values without a global lock. Every successful write is recorded in a
// write-order ledger, which drives approximate FIFO eviction once the cache is over capacity.
type LedgerCache[K comparable, V any] struct {
	capacity uint64
	ttl      time.Duration

	// K -> *entry[V]
	entries sync.Map
	size    atomic.Int64
	ledger  *writeLog[K, V]

	onCacheHit  OnCacheHitCallback[K]
	onCacheMiss OnCacheMissCallback[K]
	onAfterPut  OnAfterPutCallback
	onEvicted   OnEvictedCallback[K]
	onRemoved   OnRemovedCallback

	now func() time.Time
}

func NewCache[K comparable, V any](options Options[K]) *LedgerCache[K, V] {
	c := &LedgerCache[K, V]{
		capacity:    options.Capacity,
		ttl:         options.EntryTTL,
		ledger:      newWriteLog[K, V](),
		onCacheHit:  func(K) {},
		onCacheMiss: func(K) {},
		onAfterPut:  func(int) {},
		onEvicted:   func(K) {},
		onRemoved:   func(int) {},
		now:         time.Now,
	}

	if c.capacity == 0 {
		c.capacity = math.MaxUint64
	}

	if c.ttl < 0 {
		c.ttl = 0
	}

	if options.OnCacheHitFn != nil {
		c.onCacheHit = options.OnCacheHitFn
	}

	if options.OnCacheMissFn != nil {
		c.onCacheMiss = options.OnCacheMissFn
	}

	if options.OnAfterPutFn != nil {
		c.onAfterPut = options.OnAfterPutFn
	}

	if options.OnEvictedFn != nil {
		c.onEvicted = options.OnEvictedFn
	}

	if options.OnRemovedFn != nil {
		c.onRemoved = options.OnRemovedFn
	}

	return c
}

// Capacity returns the soft entry budget, math.MaxUint64 if unbounded
func (c *LedgerCache[K, V]) Capacity() uint64 {
	return c.capacity
}

// EntryTTL returns the TTL applied to new entries, 0 if entries never expire
func (c *LedgerCache[K, V]) EntryTTL() time.Duration {
	return c.ttl
}

// Len returns the number of slots. Dead slots are counted until they are cleaned up,
// the value may transiently exceed the capacity.
func (c *LedgerCache[K, V]) Len() int {
	if n := c.size.Load(); n > 0 {
		return int(n)
	}

	return 0
}

func (c *LedgerCache[K, V]) overCapacity() bool {
	n := c.size.Load()

	return n > 0 && uint64(n) > c.capacity
}

func (c *LedgerCache[K, V]) load(key K) (*entry[V], bool) {
	v, ok := c.entries.Load(key)
	if !ok {
		return nil, false
	}

	return v.(*entry[V]), true
}

// Get returns the value of the live entry for key. A dead entry found on the way is detached.
func (c *LedgerCache[K, V]) Get(key K) (val V, ok bool) {
	if e, found := c.load(key); found {
		if val, ok = e.load(c.now()); ok {
			c.onCacheHit(key)

			return val, true
		}

		if c.detach(key, e) {
			c.onRemoved(c.Len())
		}
	}

	c.onCacheMiss(key)

	return val, false
}

// MustGet is like Get but returns ErrKeyNotFound if there is no live entry
func (c *LedgerCache[K, V]) MustGet(key K) (V, error) {
	val, ok := c.Get(key)
	if !ok {
		return val, fmt.Errorf("%w: %v", ErrKeyNotFound, key)
	}

	return val, nil
}

// Lookup returns the live entry with its metadata. It does not update the last used timestamp.
func (c *LedgerCache[K, V]) Lookup(key K) (item Item[V], ok bool) {
	e, found := c.load(key)
	if !found {
		return item, false
	}

	val, ok := e.peek(c.now())
	if !ok {
		return item, false
	}

	return Item[V]{
		Value:      val,
		CreatedAt:  e.createdAt,
		ExpiresAt:  e.expiresAt,
		LastUsedAt: e.lastUsed(),
	}, true
}

// ContainsKey reports whether a live entry exists for key
func (c *LedgerCache[K, V]) ContainsKey(key K) bool {
	e, found := c.load(key)
	if !found {
		return false
	}

	_, ok := e.peek(c.now())

	return ok
}

// Set stores val under key. A superseded entry is tombstoned together with the swap, so a reader
// still holding it observes it as dead.
func (c *LedgerCache[K, V]) Set(key K, val V) {
	ne := newEntry(val, c.now(), c.ttl)

	for {
		actual, loaded := c.entries.LoadOrStore(key, ne)
		if !loaded {
			c.size.Add(1)

			break
		}

		if c.supersede(key, actual.(*entry[V]), ne) {
			break
		}
	}

	c.afterWrite(key, ne)
}

// supersede replaces old with ne. It fails if old is no longer the current entry of the key,
// the caller has to retry against the entry actually present.
func (c *LedgerCache[K, V]) supersede(key K, old, ne *entry[V]) bool {
	old.mu.Lock()
	defer old.mu.Unlock()

	if old.removed || !c.entries.CompareAndSwap(key, old, ne) {
		return false
	}

	old.setRemovedLocked()

	return true
}

// Add stores val only if there is no live entry for key, otherwise ErrDuplicateKey is returned
func (c *LedgerCache[K, V]) Add(key K, val V) error {
	if !c.TryAdd(key, val) {
		return fmt.Errorf("%w: %v", ErrDuplicateKey, key)
	}

	return nil
}

// TryAdd stores val only if there is no live entry for key. Expired entries don't block the insert.
func (c *LedgerCache[K, V]) TryAdd(key K, val V) bool {
	inserted, _ := c.GetOrAdd(key, val)

	return inserted
}

// GetOrAdd returns the live value for key or stores val. Under concurrent calls for the same key
// exactly one caller inserts, the others get the winner's value.
func (c *LedgerCache[K, V]) GetOrAdd(key K, val V) (inserted bool, effective V) {
	ne := newEntry(val, c.now(), c.ttl)

	for {
		actual, loaded := c.entries.LoadOrStore(key, ne)
		if !loaded {
			c.size.Add(1)
			c.afterWrite(key, ne)

			return true, val
		}

		existing, live, replaced := c.replaceIfStale(key, actual.(*entry[V]), ne)
		if live {
			return false, existing
		}

		if replaced {
			c.afterWrite(key, ne)

			return true, val
		}
	}
}

// replaceIfStale checks liveness of old under its own lock. A live entry is returned as is,
// a stale one is swapped for ne. Neither live nor replaced means the slot changed meanwhile.
func (c *LedgerCache[K, V]) replaceIfStale(key K, old, ne *entry[V]) (existing V, live, replaced bool) {
	now := c.now()

	old.mu.Lock()
	defer old.mu.Unlock()

	if old.isLiveLocked(now) {
		old.lastUsedNano.Store(now.UnixNano())

		return old.val, true, false
	}

	if old.removed || !c.entries.CompareAndSwap(key, old, ne) {
		return existing, false, false
	}

	old.setRemovedLocked()

	return existing, false, true
}

// Remove detaches the entry for key and returns its value. An entry that had already expired
// is cleaned up but reported as not found.
func (c *LedgerCache[K, V]) Remove(key K) (val V, ok bool) {
	return c.removeMatching(key, nil)
}

// RemoveFunc removes the entry for key only if its live value satisfies match.
// match is called with the entry locked and must not access the cache.
func (c *LedgerCache[K, V]) RemoveFunc(key K, match func(val V) bool) bool {
	_, ok := c.removeMatching(key, match)

	return ok
}

func (c *LedgerCache[K, V]) removeMatching(key K, match func(val V) bool) (val V, ok bool) {
	for {
		e, found := c.load(key)
		if !found {
			return val, false
		}

		res, removed, detached, retry := c.tryDetach(key, e, match)
		if detached {
			c.onRemoved(c.Len())
		}

		if !retry {
			return res, removed
		}
	}
}

// tryDetach removes e from the slot of key if it is live and matches. removed reports a live value
// was taken, detached that the slot was dropped at all (expired entries are detached but not removed).
func (c *LedgerCache[K, V]) tryDetach(
	key K, e *entry[V], match func(val V) bool,
) (val V, removed, detached, retry bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.removed {
		return val, false, false, true
	}

	live := !e.isExpired(c.now())
	if live && match != nil && !match(e.val) {
		return val, false, false, false
	}

	if !c.entries.CompareAndDelete(key, e) {
		return val, false, false, true
	}

	c.size.Add(-1)

	if live {
		val, removed = e.val, true
	}

	e.setRemovedLocked()

	return val, removed, true, false
}

// detach removes exactly e from the slot of key and tombstones it.
// Returns false if the slot holds another entry.
func (c *LedgerCache[K, V]) detach(key K, e *entry[V]) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !c.entries.CompareAndDelete(key, e) {
		return false
	}

	c.size.Add(-1)
	e.setRemovedLocked()

	return true
}

func (c *LedgerCache[K, V]) afterWrite(key K, e *entry[V]) {
	ledgerLen := c.ledger.append(key, e)

	c.onAfterPut(c.Len())

	if c.overCapacity() {
		c.Cleanup()

		return
	}

	if ledgerLen > compactFactor*max(c.Len(), minCompactLedgerLen) {
		c.compactLedger()
	}
}

// Cleanup drains the ledger oldest first: records of dead entries are always dropped, live ones
// while the cache is over capacity. A slot is removed only if it still holds the recorded entry.
// Returns the number of removed slots.
func (c *LedgerCache[K, V]) Cleanup() (evicted int) {
	for {
		r := c.ledger.peek()
		if r == nil {
			return evicted
		}

		if !r.entry.isDead(c.now()) && !c.overCapacity() {
			return evicted
		}

		if !c.ledger.dequeueIf(r) {
			// another cleaner took it
			continue
		}

		if c.detach(r.key, r.entry) {
			evicted++

			c.onEvicted(r.key)
		}
	}
}

// compactLedger drops records of superseded or removed entries. Dead entries still holding
// their slot are detached, otherwise nothing would ever reach them again.
func (c *LedgerCache[K, V]) compactLedger() {
	var evictedKeys []K

	now := c.now()

	c.ledger.compact(func(r *record[K, V]) bool {
		cur, found := c.load(r.key)
		if !found || cur != r.entry {
			return false
		}

		if r.entry.isDead(now) {
			if c.detach(r.key, r.entry) {
				evictedKeys = append(evictedKeys, r.key)
			}

			return false
		}

		return true
	})

	for _, key := range evictedKeys {
		c.onEvicted(key)
	}
}

// RunPeriodicCleanup calls Cleanup every interval until ctx is done.
func (c *LedgerCache[K, V]) RunPeriodicCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger := log.PrefixedLog("cache")

	for {
		select {
		case <-ticker.C:
			if evicted := c.Cleanup(); evicted > 0 {
				logger.Debugf("cleanup removed %d entries, %d left", evicted, c.Len())
			}
		case <-ctx.Done():
			return
		}
	}
}

// Clear detaches every entry and resets the ledger. Writes running concurrently may survive.
func (c *LedgerCache[K, V]) Clear() {
	c.ledger.reset()

	c.entries.Range(func(key, value any) bool {
		c.detach(key.(K), value.(*entry[V]))

		return true
	})
}

// All returns a lazy sequence of live entries. Liveness is checked per element when it is visited,
// concurrent modifications may or may not be reflected.
func (c *LedgerCache[K, V]) All() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		c.entries.Range(func(key, value any) bool {
			val, ok := value.(*entry[V]).peek(c.now())
			if !ok {
				return true
			}

			return yield(key.(K), val)
		})
	}
}

// Keys returns a lazy sequence of keys of live entries
func (c *LedgerCache[K, V]) Keys() iter.Seq[K] {
	return func(yield func(K) bool) {
		for k := range c.All() {
			if !yield(k) {
				return
			}
		}
	}
}

// Values returns a lazy sequence of values of live entries
func (c *LedgerCache[K, V]) Values() iter.Seq[V] {
	return func(yield func(V) bool) {
		for _, v := range c.All() {
			if !yield(v) {
				return
			}
		}
	}
}

// CopyTo copies live entries into dst starting at index and returns the number of copied pairs.
// dst must have room for Len() pairs, otherwise ErrBufferTooSmall is returned and nothing is copied.
func (c *LedgerCache[K, V]) CopyTo(dst []Pair[K, V], index int) (int, error) {
	if index < 0 || len(dst)-index < c.Len() {
		return 0, fmt.Errorf("%w: %d entries, %d slots available from index %d",
			ErrBufferTooSmall, c.Len(), len(dst)-index, index)
	}

	n := 0

	for k, v := range c.All() {
		if index+n >= len(dst) {
			break
		}

		dst[index+n] = Pair[K, V]{Key: k, Value: v}
		n++
	}

	return n, nil
}
