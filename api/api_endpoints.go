package api

import (
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/ledgercache/ledgercache/log"
	"github.com/ledgercache/ledgercache/util"
	"github.com/sirupsen/logrus"
)

var errValueTooLarge = errors.New("value too large")

// CacheEndpoint serves the cache operations
type CacheEndpoint struct {
	cache StringCache
}

// RegisterEndpoints registers all cache endpoints on the router
func RegisterEndpoints(router chi.Router, cache StringCache) {
	e := &CacheEndpoint{cache: cache}

	router.Group(func(r chi.Router) {
		r.Use(requestLogger)

		r.Get(PathEntries, e.apiList)
		r.Get(PathEntry, e.apiGet)
		r.Put(PathEntry, e.apiSet)
		r.Delete(PathEntry, e.apiRemove)
		r.Post(PathEntryAdd, e.apiAdd)
		r.Post(PathEntryGetOrAdd, e.apiGetOrAdd)
		r.Post(PathCacheFlush, e.apiFlush)
		r.Get(PathCacheStats, e.apiStats)
	})
}

// requestLogger puts a logger with request fields into the request context
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		ctx, _ := log.CtxWithFields(req.Context(), logrus.Fields{
			"prefix": "api",
			"method": req.Method,
			"path":   log.EscapeInput(req.URL.Path),
		})

		next.ServeHTTP(rw, req.WithContext(ctx))
	})
}

// keyParam returns the unescaped key. chi matches on the raw path if the request has one.
func keyParam(req *http.Request) (string, bool) {
	key := chi.URLParam(req, "key")

	if req.URL.RawPath != "" {
		var err error

		if key, err = url.PathUnescape(key); err != nil {
			return "", false
		}
	}

	return key, key != ""
}

func readValue(req *http.Request) (string, error) {
	b, err := io.ReadAll(io.LimitReader(req.Body, maxValueSize+1))
	if err != nil {
		return "", err
	}

	if len(b) > maxValueSize {
		return "", errValueTooLarge
	}

	return string(b), nil
}

func writeText(rw http.ResponseWriter, req *http.Request, status int, text string) {
	rw.Header().Set(contentTypeHeader, textContentType)
	rw.WriteHeader(status)

	_, err := rw.Write([]byte(text))
	util.LogOnErrorWithEntry(log.FromCtx(req.Context()), "can't write response: ", err)
}

func writeJSON(rw http.ResponseWriter, req *http.Request, status int, v interface{}) {
	rw.Header().Set(contentTypeHeader, jsonContentType)
	rw.WriteHeader(status)

	err := json.NewEncoder(rw).Encode(v)
	util.LogOnErrorWithEntry(log.FromCtx(req.Context()), "can't write response: ", err)
}

// withKeyAndValue parses the key parameter and the request body, answering bad requests itself
func withKeyAndValue(rw http.ResponseWriter, req *http.Request) (key, value string, ok bool) {
	key, ok = keyParam(req)
	if !ok {
		http.Error(rw, "invalid key", http.StatusBadRequest)

		return "", "", false
	}

	value, err := readValue(req)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errValueTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}

		http.Error(rw, err.Error(), status)

		return "", "", false
	}

	return key, value, true
}

func (e *CacheEndpoint) apiGet(rw http.ResponseWriter, req *http.Request) {
	key, ok := keyParam(req)
	if !ok {
		http.Error(rw, "invalid key", http.StatusBadRequest)

		return
	}

	val, found := e.cache.Get(key)
	if !found {
		http.Error(rw, "key not found", http.StatusNotFound)

		return
	}

	writeText(rw, req, http.StatusOK, val)
}

func (e *CacheEndpoint) apiSet(rw http.ResponseWriter, req *http.Request) {
	key, value, ok := withKeyAndValue(rw, req)
	if !ok {
		return
	}

	e.cache.Set(key, value)

	_, logger := log.CtxWithKey(req.Context(), key)
	logger.Debug("stored value")

	rw.WriteHeader(http.StatusOK)
}

func (e *CacheEndpoint) apiAdd(rw http.ResponseWriter, req *http.Request) {
	key, value, ok := withKeyAndValue(rw, req)
	if !ok {
		return
	}

	if !e.cache.TryAdd(key, value) {
		http.Error(rw, "key already exists", http.StatusConflict)

		return
	}

	rw.WriteHeader(http.StatusCreated)
}

func (e *CacheEndpoint) apiGetOrAdd(rw http.ResponseWriter, req *http.Request) {
	key, value, ok := withKeyAndValue(rw, req)
	if !ok {
		return
	}

	inserted, effective := e.cache.GetOrAdd(key, value)

	writeJSON(rw, req, http.StatusOK, GetOrAddResponse{Inserted: inserted, Value: effective})
}

func (e *CacheEndpoint) apiRemove(rw http.ResponseWriter, req *http.Request) {
	key, ok := keyParam(req)
	if !ok {
		http.Error(rw, "invalid key", http.StatusBadRequest)

		return
	}

	ctx, logger := log.CtxWithKey(req.Context(), key)

	val, found := e.cache.Remove(key)
	if !found {
		http.Error(rw, "key not found", http.StatusNotFound)

		return
	}

	logger.Debug("removed entry")

	writeText(rw, req.WithContext(ctx), http.StatusOK, val)
}

func (e *CacheEndpoint) apiList(rw http.ResponseWriter, req *http.Request) {
	entries := make(map[string]string)

	for k, v := range e.cache.All() {
		entries[k] = v
	}

	writeJSON(rw, req, http.StatusOK, entries)
}

func (e *CacheEndpoint) apiFlush(rw http.ResponseWriter, req *http.Request) {
	log.FromCtx(req.Context()).Info("flushing cache")

	e.cache.Clear()

	rw.WriteHeader(http.StatusOK)
}

func (e *CacheEndpoint) apiStats(rw http.ResponseWriter, req *http.Request) {
	res := StatsResponse{
		Size:     e.cache.Len(),
		Capacity: e.cache.Capacity(),
	}

	if res.Capacity == math.MaxUint64 {
		res.Capacity = 0
	}

	if ttl := e.cache.EntryTTL(); ttl > 0 {
		res.EntryTTL = ttl.String()
	}

	writeJSON(rw, req, http.StatusOK, res)
}
