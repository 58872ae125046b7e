// Package cache keeps raw patent payloads in Redis so that repeated runs over
// overlapping identifier lists do not fetch the same document twice.
//
// Keys have the form patent:<source>:<identifier>, e.g.
// patent:json:EP1234567A1. Values are JSON encoded CacheEntry values and
// carry a Redis TTL equal to the entry's remaining lifetime.
//
//	rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	payloads := cache.NewManager(rdb, 24*time.Hour)
//
//	cfg := client.DefaultConfig(tpl)
//	cfg.Cache = payloads
//
// A cache error is never a fetch error: the fetcher logs it and goes to the
// network. Purge drops the payloads of one source, for instance after the
// source changed its document format.
//
// Metrics: patent_cache_hits_total, patent_cache_misses_total,
// patent_cache_written_bytes_total and patent_cache_errors_total{operation}.
package cache
