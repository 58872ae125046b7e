package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks payload cache hits
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "patent_cache_hits_total",
			Help: "Total number of payload cache hits",
		},
	)

	// CacheMisses tracks payload cache misses
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "patent_cache_misses_total",
			Help: "Total number of payload cache misses",
		},
	)

	// CacheWrittenBytes tracks bytes written to the cache
	CacheWrittenBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "patent_cache_written_bytes_total",
			Help: "Total bytes of payload data written to the cache",
		},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "patent_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete", "purge"
	)
)
