package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Sternrassler/patent-harvester/pkg/audit"
	"github.com/Sternrassler/patent-harvester/pkg/client"
	"github.com/Sternrassler/patent-harvester/pkg/document"
	"github.com/Sternrassler/patent-harvester/pkg/extract"
	"github.com/Sternrassler/patent-harvester/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// ErrRunCancelled is returned by Run when the context is cancelled before
// every batch was processed. The returned state holds the checkpointed
// partial results.
var ErrRunCancelled = errors.New("run cancelled")

var (
	batchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "patent_pipeline_batches_total",
		Help: "Batches checkpointed",
	})

	batchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "patent_pipeline_batch_duration_seconds",
		Help:    "Wall time from dispatch to checkpoint per batch",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 900},
	})

	runRecords = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "patent_pipeline_records",
		Help: "Records in the run state",
	})

	checkpointFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "patent_pipeline_checkpoint_failures_total",
		Help: "Checkpoint writes that failed and were skipped",
	})
)

// BatchState is the stage a batch has reached.
type BatchState string

const (
	BatchDispatched   BatchState = "dispatched"
	BatchAwaitingAll  BatchState = "awaiting_all"
	BatchMerged       BatchState = "merged"
	BatchCheckpointed BatchState = "checkpointed"
)

// Config holds orchestrator configuration.
type Config struct {
	// BatchSize is the number of identifiers dispatched together and the
	// checkpoint granularity.
	BatchSize int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{BatchSize: 100}
}

// Fetcher resolves admitted identifiers. *client.Fetcher implements it.
type Fetcher interface {
	Admit(ctx context.Context) error
	FetchAdmitted(ctx context.Context, id string) client.Outcome
}

// Extractor decides on fetch outcomes. *extract.Filter implements it.
type Extractor interface {
	Extract(out client.Outcome) extract.Result
}

// StateWriter persists the run state. *checkpoint.FileStore implements it.
type StateWriter interface {
	WriteCheckpoint(state document.RunState) error
	WriteFinal(state document.RunState) error
}

// AuditLog records one line per decided identifier. *audit.Log implements it.
type AuditLog interface {
	Write(id string, k audit.Kind) error
}

// Orchestrator runs batches of fetches and owns the run state.
type Orchestrator struct {
	config  Config
	fetcher Fetcher
	filter  Extractor
	store   StateWriter
	audit   AuditLog
	logger  zerolog.Logger

	stats Stats
}

// New creates an orchestrator. Configuration errors are reported here, before
// any identifier is dispatched.
func New(cfg Config, fetcher Fetcher, filter Extractor, store StateWriter, auditLog AuditLog) (*Orchestrator, error) {
	if cfg.BatchSize < 1 {
		return nil, fmt.Errorf("batch size must be >= 1 (got %d)", cfg.BatchSize)
	}
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if filter == nil {
		return nil, fmt.Errorf("filter is required")
	}
	if store == nil {
		return nil, fmt.Errorf("state writer is required")
	}
	if auditLog == nil {
		return nil, fmt.Errorf("audit log is required")
	}

	return &Orchestrator{
		config:  cfg,
		fetcher: fetcher,
		filter:  filter,
		store:   store,
		audit:   auditLog,
		logger:  logging.NewLogger("pipeline"),
	}, nil
}

// WithLogger replaces the orchestrator logger, e.g. to attach a run ID.
func (o *Orchestrator) WithLogger(logger zerolog.Logger) *Orchestrator {
	o.logger = logger.With().Str("component", "pipeline").Logger()
	return o
}

// Stats returns the counters of the last Run.
func (o *Orchestrator) Stats() Stats {
	return o.stats
}

// Run processes ids batch by batch and returns the final run state.
// Failures of individual identifiers never abort the run.
func (o *Orchestrator) Run(ctx context.Context, ids []string) (document.RunState, error) {
	start := time.Now()
	state := document.RunState{}
	o.stats = Stats{Identifiers: len(ids), Decisions: make(map[extract.Decision]int)}

	batches := (len(ids) + o.config.BatchSize - 1) / o.config.BatchSize
	o.logger.Info().
		Int("identifiers", len(ids)).
		Int("batch_size", o.config.BatchSize).
		Int("batches", batches).
		Msg("Starting run")

	for b := 0; b < batches; b++ {
		if ctx.Err() != nil {
			break
		}

		lo := b * o.config.BatchSize
		hi := min(lo+o.config.BatchSize, len(ids))

		o.runBatch(ctx, b+1, ids[lo:hi], state)

		o.logger.Info().
			Int("batch", b+1).
			Int("batches", batches).
			Int("records", len(state)).
			Float64("progress_pct", float64(hi)/float64(len(ids))*100).
			Msg("Batch progress")
	}

	o.stats.Duration = time.Since(start)

	if !o.stats.complete() {
		o.logger.Warn().
			Int("batches_done", o.stats.Batches).
			Int("batches", batches).
			Int("records", len(state)).
			Msg("Run cancelled, partial results checkpointed")
		return state, fmt.Errorf("%w after %d of %d batches: %v", ErrRunCancelled, o.stats.Batches, batches, ctx.Err())
	}

	if err := o.store.WriteFinal(state); err != nil {
		return state, fmt.Errorf("write final output: %w", err)
	}

	o.logger.Info().
		Int("records", len(state)).
		Int("batches", o.stats.Batches).
		Dur("duration", o.stats.Duration).
		Msg("Run completed")
	o.logger.Debug().Strs("ids", state.IDs()).Msg("Matched identifiers")
	return state, nil
}

// runBatch takes one batch from Dispatched to Checkpointed.
func (o *Orchestrator) runBatch(ctx context.Context, num int, batch []string, state document.RunState) {
	start := time.Now()
	logger := o.logger.With().Int("batch", num).Logger()

	outcomes := make([]client.Outcome, len(batch))
	var wg sync.WaitGroup
	dispatched := 0

	for i, id := range batch {
		if err := o.fetcher.Admit(ctx); err != nil {
			logger.Warn().
				Err(err).
				Int("dispatched", dispatched).
				Int("size", len(batch)).
				Msg("Dispatch stopped")
			break
		}

		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			outcomes[i] = o.fetcher.FetchAdmitted(ctx, id)
		}(i, id)
		dispatched++
	}
	logger.Debug().Int("dispatched", dispatched).Str("state", string(BatchDispatched)).Msg("Batch state")

	logger.Debug().Str("state", string(BatchAwaitingAll)).Msg("Batch state")
	wg.Wait()

	matched := 0
	for _, out := range outcomes[:dispatched] {
		res := o.filter.Extract(out)
		o.stats.Decisions[res.Decision]++
		o.record(logger, res)
		if res.Record != nil {
			state.Merge(*res.Record)
			matched++
		}
	}
	o.stats.Dispatched += dispatched
	runRecords.Set(float64(len(state)))
	logger.Debug().Int("matched", matched).Str("state", string(BatchMerged)).Msg("Batch state")

	if err := o.store.WriteCheckpoint(state); err != nil {
		o.stats.CheckpointFailures++
		checkpointFailures.Inc()
		logger.Error().Err(err).Msg("Checkpoint write failed, continuing")
	}

	o.stats.Batches++
	batchesTotal.Inc()
	batchDuration.Observe(time.Since(start).Seconds())

	logger.Info().
		Int("size", len(batch)).
		Int("dispatched", dispatched).
		Int("matched", matched).
		Int("records", len(state)).
		Dur("duration", time.Since(start)).
		Str("state", string(BatchCheckpointed)).
		Msg("Batch checkpointed")
}

// record writes the audit line for res.
func (o *Orchestrator) record(logger zerolog.Logger, res extract.Result) {
	kind, ok := auditKind(res.Decision)
	if !ok {
		return
	}
	if err := o.audit.Write(res.ID, kind); err != nil {
		logger.Warn().Err(err).Str("id", res.ID).Msg("Audit write failed")
	}
}

func auditKind(d extract.Decision) (audit.Kind, bool) {
	switch d {
	case extract.DecisionMatched:
		return audit.PatternFound, true
	case extract.DecisionNoPattern:
		return audit.NoPatternFound, true
	case extract.DecisionFetchFailed:
		return audit.Error, true
	case extract.DecisionUndecodable:
		return audit.Undecodable, true
	case extract.DecisionMalformed:
		return audit.Malformed, true
	default:
		return "", false
	}
}
