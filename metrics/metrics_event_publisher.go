package metrics

import (
	"fmt"
	"sync/atomic"

	"github.com/ledgercache/ledgercache/evt"
	"github.com/ledgercache/ledgercache/util"

	"github.com/prometheus/client_golang/prometheus"
)

// CacheCounters provides the read statistics of the served cache
type CacheCounters interface {
	Hits() uint64
	Misses() uint64
}

type countersHolder struct {
	CacheCounters
}

type noCounters struct{}

func (noCounters) Hits() uint64   { return 0 }
func (noCounters) Misses() uint64 { return 0 }

//nolint:gochecknoglobals
var cacheCounters atomic.Pointer[countersHolder]

// SetCacheCounters sets the source of the cache hit and miss counters
func SetCacheCounters(c CacheCounters) {
	cacheCounters.Store(&countersHolder{c})
}

func currentCacheCounters() CacheCounters {
	if h := cacheCounters.Load(); h != nil {
		return h.CacheCounters
	}

	return noCounters{}
}

// RegisterEventListeners registers all metric handlers by the event bus
func RegisterEventListeners() {
	registerCachingEventListeners()
	registerApplicationEventListeners()
}

func registerApplicationEventListeners() {
	v := versionNumberGauge()
	RegisterMetric(v)

	subscribe(evt.ApplicationStarted, func(version, buildTime string) {
		v.WithLabelValues(version, buildTime).Set(1)
	})
}

func versionNumberGauge() *prometheus.GaugeVec {
	return prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ledgercache_build_info",
			Help: "Version number and build info",
		}, []string{"version", "build_time"},
	)
}

func registerCachingEventListeners() {
	entryCount := cacheEntryCount()
	hitCount := cacheHitCount()
	missCount := cacheMissCount()
	evictionCount := cacheEvictionCount()
	flushCount := cacheFlushCount()

	RegisterMetric(entryCount)
	RegisterMetric(hitCount)
	RegisterMetric(missCount)
	RegisterMetric(evictionCount)
	RegisterMetric(flushCount)

	subscribe(evt.CacheSizeChanged, func(cnt int) {
		entryCount.Set(float64(cnt))
	})

	subscribe(evt.CacheEntryEvicted, func(_ string) {
		evictionCount.Inc()
	})

	subscribe(evt.CacheCleared, func() {
		flushCount.Inc()
		entryCount.Set(0)
	})
}

func cacheEntryCount() prometheus.Gauge {
	return prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ledgercache_cache_entries",
			Help: "Number of entries in cache",
		},
	)
}

func cacheHitCount() prometheus.CounterFunc {
	return prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Name: "ledgercache_cache_hits_total",
			Help: "Cache hit counter",
		}, func() float64 {
			return float64(currentCacheCounters().Hits())
		},
	)
}

func cacheMissCount() prometheus.CounterFunc {
	return prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Name: "ledgercache_cache_misses_total",
			Help: "Cache miss counter",
		}, func() float64 {
			return float64(currentCacheCounters().Misses())
		},
	)
}

func cacheEvictionCount() prometheus.Counter {
	return prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ledgercache_cache_evictions_total",
			Help: "Number of entries removed by cache cleanup",
		},
	)
}

func cacheFlushCount() prometheus.Counter {
	return prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ledgercache_cache_flushes_total",
			Help: "Number of cache flushes",
		},
	)
}

func subscribe(topic string, fn interface{}) {
	util.FatalOnError(fmt.Sprintf("can't subscribe topic '%s'", topic), evt.Bus().Subscribe(topic, fn))
}
