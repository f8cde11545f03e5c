package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// CacheStats reports the cumulative hits and misses of one cache.
type CacheStats func() (hits, misses uint64)

// cacheCollector reads the tracked caches' counters at scrape time.
type cacheCollector struct {
	hits   *prometheus.Desc
	misses *prometheus.Desc

	mu      sync.Mutex
	sources map[string]CacheStats
}

func newCacheCollector() *cacheCollector {
	return &cacheCollector{
		hits: prometheus.NewDesc("expensehub_cache_hits_total",
			"Lookups answered from an in-process cache", []string{"cache"}, nil),
		misses: prometheus.NewDesc("expensehub_cache_misses_total",
			"Lookups that went to the store", []string{"cache"}, nil),
		sources: make(map[string]CacheStats),
	}
}

var caches = newCacheCollector()

func init() {
	prometheus.MustRegister(caches)
}

// TrackCache exposes stats under the given cache label. Tracking a name
// again replaces the previous source.
func TrackCache(name string, stats CacheStats) {
	caches.track(name, stats)
}

func (c *cacheCollector) track(name string, stats CacheStats) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sources[name] = stats
}

func (c *cacheCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.hits
	ch <- c.misses
}

func (c *cacheCollector) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for name, stats := range c.sources {
		hits, misses := stats()
		ch <- prometheus.MustNewConstMetric(c.hits, prometheus.CounterValue, float64(hits), name)
		ch <- prometheus.MustNewConstMetric(c.misses, prometheus.CounterValue, float64(misses), name)
	}
}
