// Package api exposes a string cache over HTTP
package api

import (
	"time"

	"github.com/ledgercache/ledgercache/cache/ledgercache"
)

const (
	// PathEntries lists all live entries
	PathEntries = "/api/entries"
	// PathEntry addresses a single entry
	PathEntry = "/api/entries/{key}"
	// PathEntryAdd adds an entry only if the key has no live value
	PathEntryAdd = "/api/entries/{key}/add"
	// PathEntryGetOrAdd returns the live value or adds the passed one
	PathEntryGetOrAdd = "/api/entries/{key}/get-or-add"
	// PathCacheFlush removes all entries
	PathCacheFlush = "/api/cache/flush"
	// PathCacheStats returns size and configuration of the cache
	PathCacheStats = "/api/cache/stats"
)

const (
	contentTypeHeader = "content-type"
	jsonContentType   = "application/json"
	textContentType   = "text/plain; charset=utf-8"

	// maximal accepted size of a value in a request body
	maxValueSize = 1 << 20
)

// StringCache is the cache served by the API
type StringCache interface {
	ledgercache.KeyValueCache[string, string]

	Capacity() uint64
	EntryTTL() time.Duration
}

// GetOrAddResponse is the result of a get-or-add request
type GetOrAddResponse struct {
	// true if the passed value was stored
	Inserted bool   `json:"inserted"`
	Value    string `json:"value"`
}

// StatsResponse describes the current state of the cache
type StatsResponse struct {
	Size int `json:"size"`
	// 0 means unbounded
	Capacity uint64 `json:"capacity"`
	// empty if entries never expire
	EntryTTL string `json:"entryTTL,omitempty"`
}
