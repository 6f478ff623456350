package ledgercache

import "sync"

// record is one successful write. The referenced entry may have been superseded or removed since.
type record[K comparable, V any] struct {
	key   K
	entry *entry[V]
	next  *record[K, V]
}

// writeLog is the write-order ledger: an append-only FIFO of records, oldest first.
// It is not kept in sync with the entry map, stale records are expected and dropped at cleanup time.
type writeLog[K comparable, V any] struct {
	mu   sync.Mutex
	head *record[K, V]
	tail *record[K, V]
	size int
}

func newWriteLog[K comparable, V any]() *writeLog[K, V] {
	return &writeLog[K, V]{}
}

// append adds a record at the tail and returns the new ledger length.
func (l *writeLog[K, V]) append(key K, e *entry[V]) int {
	r := &record[K, V]{key: key, entry: e}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.tail == nil {
		l.head = r
	} else {
		l.tail.next = r
	}

	l.tail = r
	l.size++

	return l.size
}

// peek returns the oldest record or nil if the ledger is empty.
func (l *writeLog[K, V]) peek() *record[K, V] {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.head
}

// dequeueIf removes the head only if it is still the record the caller peeked.
// Returns false if another cleaner got there first.
func (l *writeLog[K, V]) dequeueIf(r *record[K, V]) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.head == nil || l.head != r {
		return false
	}

	l.head = r.next
	if l.head == nil {
		l.tail = nil
	}

	r.next = nil
	l.size--

	return true
}

func (l *writeLog[K, V]) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.size
}

func (l *writeLog[K, V]) reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.head = nil
	l.tail = nil
	l.size = 0
}

// compact drops every record for which keep returns false, preserving the order of the rest.
// Returns the number of dropped records.
func (l *writeLog[K, V]) compact(keep func(r *record[K, V]) bool) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	var (
		newHead, newTail *record[K, V]
		dropped          int
	)

	for r := l.head; r != nil; {
		next := r.next
		r.next = nil

		if keep(r) {
			if newTail == nil {
				newHead = r
			} else {
				newTail.next = r
			}

			newTail = r
		} else {
			dropped++
		}

		r = next
	}

	l.head = newHead
	l.tail = newTail
	l.size -= dropped

	return dropped
}
