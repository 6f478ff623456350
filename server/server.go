package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"runtime"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
	"github.com/ledgercache/ledgercache/api"
	"github.com/ledgercache/ledgercache/cache/ledgercache"
	"github.com/ledgercache/ledgercache/config"
	"github.com/ledgercache/ledgercache/evt"
	"github.com/ledgercache/ledgercache/log"
	"github.com/ledgercache/ledgercache/metrics"
	"github.com/sirupsen/logrus"
)

// Server owns the cache and serves it over HTTP
type Server struct {
	cfg      *config.Config
	cache    *eventCache
	httpMux  *chi.Mux
	httpSrv  *httpServer
	listener net.Listener

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func logger() *logrus.Entry {
	return log.PrefixedLog("server")
}

func getServerAddress(addr string) string {
	if !strings.Contains(addr, ":") {
		addr = fmt.Sprintf(":%s", addr)
	}

	return addr
}

// NewServer creates new server instance with passed config
func NewServer(cfg *config.Config) (*Server, error) {
	log.ConfigureLogger(cfg.Log)

	cache := newEventCache(&cfg.Cache)

	server := &Server{
		cfg:     cfg,
		cache:   cache,
		httpMux: createRouter(cfg, cache),
	}

	if cfg.Metrics.IsEnabled() {
		metrics.SetCacheCounters(cache)
	}

	if cfg.API.IsEnabled() {
		listener, err := net.Listen("tcp", getServerAddress(cfg.API.Addr))
		if err != nil {
			return nil, fmt.Errorf("server creation failed: %w", err)
		}

		server.listener = listener
		server.httpSrv = newHTTPServer("http", server.httpMux)
	}

	server.printConfiguration()

	return server, nil
}

// Cache returns the cache served by this server
func (s *Server) Cache() api.StringCache {
	return s.cache
}

// Addr returns the address the HTTP listener is bound to, nil if the API is disabled
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}

	return s.listener.Addr()
}

func (s *Server) printConfiguration() {
	logger().Info("current configuration:")

	s.cfg.LogConfig(logger())

	logger().Info("runtime information:")

	// force garbage collector
	runtime.GC()
	debug.FreeOSMemory()

	// gather memory stats
	var m runtime.MemStats

	runtime.ReadMemStats(&m)

	logger().Infof("MEM Alloc =        %10v MB", toMB(m.Alloc))
	logger().Infof("MEM HeapAlloc =    %10v MB", toMB(m.HeapAlloc))
	logger().Infof("MEM Sys =          %10v MB", toMB(m.Sys))
	logger().Infof("MEM NumGC =        %10v", m.NumGC)
	logger().Infof("RUN NumCPU =       %10d", runtime.NumCPU())
	logger().Infof("RUN NumGoroutine = %10d", runtime.NumGoroutine())
	logger().Infof("CACHE Len =        %10d", s.cache.Len())
}

func toMB(b uint64) uint64 {
	const bytesInKB = 1024

	return b / bytesInKB / bytesInKB
}

// Start starts the periodic cleanup and the HTTP listener. Listener failures are sent to errCh.
func (s *Server) Start(ctx context.Context, errCh chan<- error) {
	logger().Info("Starting server")

	ctx, s.cancel = context.WithCancel(ctx)

	if interval := s.cfg.Cache.CleanupInterval.ToDuration(); interval > 0 {
		s.wg.Add(1)

		go func() {
			defer s.wg.Done()

			s.cache.RunPeriodicCleanup(ctx, interval)
		}()
	}

	if s.httpSrv != nil {
		s.wg.Add(1)

		go func() {
			defer s.wg.Done()

			logger().Infof("%s server is up and running on addr %s", s.httpSrv, s.listener.Addr())

			if err := s.httpSrv.Serve(ctx, s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("start %s listener failed: %w", s.httpSrv, err)
			}
		}()
	}

	registerPrintConfigurationTrigger(ctx, s)
}

// Stop stops the listener and the periodic cleanup and waits until both are done
func (s *Server) Stop(ctx context.Context) error {
	logger().Info("Stopping server")

	if s.cancel == nil {
		if s.listener != nil {
			return s.listener.Close()
		}

		return nil
	}

	var shutdownErr error

	if s.httpSrv != nil {
		shutdownErr = s.httpSrv.Shutdown(ctx)
	}

	s.cancel()

	if shutdownErr != nil {
		return fmt.Errorf("stop %s listener failed: %w", s.httpSrv, shutdownErr)
	}

	done := make(chan struct{})

	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// eventCache publishes size changes, evictions and flushes on the event bus.
// Hits and misses are only counted, reads must not contend on the bus.
type eventCache struct {
	*ledgercache.LedgerCache[string, string]

	hits   atomic.Uint64
	misses atomic.Uint64
}

func newEventCache(cfg *config.CachingConfig) *eventCache {
	c := &eventCache{}

	c.LedgerCache = ledgercache.NewCache[string, string](ledgercache.Options[string]{
		Capacity: cfg.Capacity,
		EntryTTL: cfg.EntryTTL.ToDuration(),
		OnCacheHitFn: func(string) {
			c.hits.Add(1)
		},
		OnCacheMissFn: func(string) {
			c.misses.Add(1)
		},
		OnAfterPutFn: func(newSize int) {
			evt.Bus().Publish(evt.CacheSizeChanged, newSize)
		},
		OnEvictedFn: func(key string) {
			evt.Bus().Publish(evt.CacheEntryEvicted, key)
			evt.Bus().Publish(evt.CacheSizeChanged, c.Len())
		},
		OnRemovedFn: func(newSize int) {
			evt.Bus().Publish(evt.CacheSizeChanged, newSize)
		},
	})

	return c
}

// Hits returns the number of reads that found a live entry
func (c *eventCache) Hits() uint64 {
	return c.hits.Load()
}

// Misses returns the number of reads that found no live entry
func (c *eventCache) Misses() uint64 {
	return c.misses.Load()
}

// Clear flushes the cache and publishes the flush
func (c *eventCache) Clear() {
	c.LedgerCache.Clear()

	evt.Bus().Publish(evt.CacheCleared)
}
