package ledgercache

import (
	"iter"
	"time"
)

// KeyValueCache is a concurrent in-memory mapping with optional entry expiration and a soft entry budget
type KeyValueCache[K comparable, V any] interface {
	// Get returns the value of a live entry. Dead or absent entries are reported as not found
	Get(key K) (val V, ok bool)

	// Set stores the value, superseding any existing entry for the key
	Set(key K, val V)

	// TryAdd stores the value only if no live entry exists for the key
	TryAdd(key K, val V) bool

	// GetOrAdd returns the live value for the key or stores the passed one.
	// inserted is true if the passed value was stored
	GetOrAdd(key K, val V) (inserted bool, effective V)

	// Remove detaches the entry for the key and returns its value if it was still live
	Remove(key K) (val V, ok bool)

	// All iterates over live entries
	All() iter.Seq2[K, V]

	// Len returns the number of slots currently held, including not yet cleaned dead ones
	Len() int

	// Clear removes all entries
	Clear()
}

// Item is a snapshot of a live entry with its metadata
type Item[V any] struct {
	Value      V
	CreatedAt  time.Time
	ExpiresAt  time.Time // zero if the entry never expires
	LastUsedAt time.Time
}

// Pair is a key with its value, used for bulk copy-out
type Pair[K comparable, V any] struct {
	Key   K
	Value V
}
