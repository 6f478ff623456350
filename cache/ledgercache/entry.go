package ledgercache

import (
	"sync"
	"sync/atomic"
	"time"
)

// entry is a single value slot. It is lockable on its own so that superseding or removing one key
// never serializes against operations on other keys.
type entry[V any] struct {
	mu sync.Mutex

	val       V
	createdAt time.Time
	// zero means the entry never expires
	expiresAt time.Time
	removed   bool

	lastUsedNano atomic.Int64
}

func newEntry[V any](val V, now time.Time, ttl time.Duration) *entry[V] {
	e := &entry[V]{
		val:       val,
		createdAt: now,
	}

	if ttl > 0 {
		e.expiresAt = now.Add(ttl)
	}

	e.lastUsedNano.Store(now.UnixNano())

	return e
}

// isExpired is safe without the lock: expiresAt never changes after construction.
func (e *entry[V]) isExpired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// isLiveLocked must be called with e.mu held.
func (e *entry[V]) isLiveLocked(now time.Time) bool {
	return !e.removed && !e.isExpired(now)
}

func (e *entry[V]) isDead(now time.Time) bool {
	if e.isExpired(now) {
		return true
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	return e.removed
}

// load returns the value if the entry is live and marks it as used.
func (e *entry[V]) load(now time.Time) (val V, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.isLiveLocked(now) {
		return val, false
	}

	e.lastUsedNano.Store(now.UnixNano())

	return e.val, true
}

// peek returns the value if the entry is live without touching the last used timestamp.
func (e *entry[V]) peek(now time.Time) (val V, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.isLiveLocked(now) {
		return val, false
	}

	return e.val, true
}

// setRemovedLocked tombstones the entry and drops the value reference. Must be called with e.mu held.
func (e *entry[V]) setRemovedLocked() {
	var zero V

	e.removed = true
	e.val = zero
}

func (e *entry[V]) lastUsed() time.Time {
	return time.Unix(0, e.lastUsedNano.Load())
}
