package ledgercache

import "errors"

var (
	// ErrKeyNotFound is returned by MustGet if the key is absent or its entry is no longer live
	ErrKeyNotFound = errors.New("key not found")

	// ErrDuplicateKey is returned by Add if a live entry already exists for the key
	ErrDuplicateKey = errors.New("an entry with the same key already exists")

	// ErrBufferTooSmall is returned by CopyTo if the destination can't hold all entries
	ErrBufferTooSmall = errors.New("destination buffer is too small")
)
