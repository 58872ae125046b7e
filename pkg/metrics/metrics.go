// Package metrics provides the Prometheus registry reference and the HTTP
// server that exposes it. All metrics are defined in their respective
// packages (gate, client, cache, extract, checkpoint, pipeline) to maintain
// modularity and avoid circular dependencies.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the harvester.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Gate Metrics (pkg/gate):
//   - patent_gate_in_flight (Gauge): Fetch attempts currently holding a slot
//   - patent_gate_wait_seconds (Histogram): Time spent waiting for a slot
//
// Request Metrics (pkg/client):
//   - patent_fetch_requests_total{source, status} (Counter): Attempts by source and HTTP status
//   - patent_fetch_request_duration_seconds{source} (Histogram): Attempt duration by source
//   - patent_fetch_errors_total{class} (Counter): Failed attempts by class
//   - patent_fetch_outcomes_total{status} (Counter): Final outcomes (ok, undecodable, failed, cancelled)
//
// Retry Metrics (pkg/client):
//   - patent_fetch_retries_total{error_class} (Counter): Retries by error class
//   - patent_fetch_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - patent_fetch_retry_exhausted_total{error_class} (Counter): Identifiers that exhausted all attempts
//
// Cache Metrics (pkg/cache):
//   - patent_cache_hits_total (Counter): Cache hits
//   - patent_cache_misses_total (Counter): Cache misses
//   - patent_cache_written_bytes_total (Counter): Bytes written to the cache
//   - patent_cache_errors_total{operation} (Counter): Cache operation errors
//
// Extraction Metrics (pkg/extract):
//   - patent_extract_decisions_total{decision} (Counter): Filter decisions
//
// Output Metrics (pkg/checkpoint, pkg/pipeline):
//   - patent_checkpoint_writes_total{kind, result} (Counter): State file writes
//   - patent_checkpoint_records{kind} (Gauge): Records in the last state file
//   - patent_pipeline_batches_total (Counter): Batches checkpointed
//   - patent_pipeline_batch_duration_seconds (Histogram): Dispatch-to-checkpoint time
//   - patent_pipeline_records (Gauge): Records in the run state
//   - patent_pipeline_checkpoint_failures_total (Counter): Skipped checkpoint writes
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(patent_cache_hits_total[5m])) /
//   (sum(rate(patent_cache_hits_total[5m])) + sum(rate(patent_cache_misses_total[5m])))
//
//   # Permanent Failure Rate
//   rate(patent_fetch_outcomes_total{status="failed"}[5m])
//
//   # Gate Saturation
//   patent_gate_in_flight
//
//   # P95 Attempt Latency
//   histogram_quantile(0.95, rate(patent_fetch_request_duration_seconds_bucket[5m]))
