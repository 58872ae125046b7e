package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sternrassler/patent-harvester/internal/config"
	"github.com/Sternrassler/patent-harvester/internal/input"
	"github.com/Sternrassler/patent-harvester/pkg/audit"
	"github.com/Sternrassler/patent-harvester/pkg/cache"
	"github.com/Sternrassler/patent-harvester/pkg/checkpoint"
	"github.com/Sternrassler/patent-harvester/pkg/client"
	"github.com/Sternrassler/patent-harvester/pkg/extract"
	"github.com/Sternrassler/patent-harvester/pkg/gate"
	"github.com/Sternrassler/patent-harvester/pkg/logging"
	"github.com/Sternrassler/patent-harvester/pkg/metrics"
	"github.com/Sternrassler/patent-harvester/pkg/pattern"
	"github.com/Sternrassler/patent-harvester/pkg/pipeline"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

type runFlags struct {
	input  string
	mode   string
	offset int
	limit  int
}

func newRunCmd() *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Fetch, filter and checkpoint patent documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()

			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			applyRunFlags(cmd, cfg, flags)
			if err := cfg.Finalize(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			setupLogging(cfg)
			defer logging.Close()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return harvest(ctx, cfg, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&flags.input, "input", "", "identifier CSV (overrides input.path)")
	cmd.Flags().StringVar(&flags.mode, "mode", "", "source mode: json or html (overrides source.mode)")
	cmd.Flags().IntVar(&flags.offset, "offset", 0, "skip that many identifiers")
	cmd.Flags().IntVar(&flags.limit, "limit", 0, "process at most that many identifiers")
	return cmd
}

func applyRunFlags(cmd *cobra.Command, cfg *config.Config, flags runFlags) {
	if flags.input != "" {
		cfg.Input.Path = flags.input
	}
	if flags.mode != "" && flags.mode != cfg.Source.Mode {
		cfg.Source.Mode = flags.mode
		// Template and headers follow the new mode unless set explicitly.
		cfg.Source.URLTemplate = ""
		cfg.Source.Headers = nil
	}
	if cmd.Flags().Changed("offset") {
		cfg.Input.Offset = flags.offset
	}
	if cmd.Flags().Changed("limit") {
		cfg.Input.Limit = flags.limit
	}
	if isDebug {
		cfg.Logging.Level = string(logging.LevelDebug)
	}
	if cfg.Cache.RedisURL == "" {
		cfg.Cache.RedisURL = getEnv("REDIS_URL", "")
	}
}

func setupLogging(cfg *config.Config) zerolog.Logger {
	logCfg := logging.DefaultConfig()
	logCfg.Level = logging.LogLevel(cfg.Logging.Level)
	logCfg.Pretty = cfg.Logging.Pretty
	logCfg.File.Path = cfg.Logging.File
	return logging.Setup(logCfg)
}

// harvest runs one complete harvest described by cfg and prints a summary
// to out.
func harvest(ctx context.Context, cfg *config.Config, out io.Writer) error {
	runID := uuid.NewString()
	logger := logging.RunLogger(runID)

	if cfg.Input.Path == "" {
		return fmt.Errorf("no input: set input.path or --input")
	}
	ids, err := input.ReadFile(cfg.Input.Path, input.Options{
		Column:       cfg.Input.Column,
		Offset:       cfg.Input.Offset,
		Limit:        cfg.Input.Limit,
		StripHyphens: cfg.Input.StripHyphens,
	})
	if err != nil {
		return err
	}

	re, err := pattern.Compile(cfg.Run.Pattern)
	if err != nil {
		return err
	}

	filter, err := extract.NewFilter(newFormat(cfg), re)
	if err != nil {
		return err
	}

	g, err := gate.New(cfg.Fetch.Concurrency)
	if err != nil {
		return err
	}

	fetchCfg := client.DefaultConfig(cfg.Source.URLTemplate)
	fetchCfg.Source = cfg.Source.Mode
	fetchCfg.UserAgent = cfg.Source.UserAgent
	fetchCfg.Headers = cfg.Source.Headers
	fetchCfg.AttemptTimeout = cfg.AttemptTimeout()
	fetchCfg.Retry = client.RetryConfig{
		MaxAttempts: cfg.Fetch.MaxAttempts,
		BaseDelay:   cfg.BaseDelay(),
	}
	fetchCfg.CacheTTL = cfg.CacheTTL()

	if cfg.Cache.RedisURL != "" {
		rdb, err := connectRedis(ctx, cfg.Cache.RedisURL)
		if err != nil {
			return err
		}
		defer rdb.Close()
		fetchCfg.Cache = cache.NewManager(rdb, cfg.CacheTTL())
		logger.Info().Msg("Payload cache enabled")
	}

	fetcher, err := client.New(fetchCfg, g, filter.Format())
	if err != nil {
		return err
	}

	store, err := checkpoint.NewFileStore(cfg.Output.Checkpoint, cfg.Output.Final)
	if err != nil {
		return err
	}

	auditLog, err := audit.Open(cfg.Output.SuccessLog, cfg.Output.ErrorLog)
	if err != nil {
		return err
	}
	defer func() {
		if err := auditLog.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close audit logs")
		}
	}()

	orch, err := pipeline.New(pipeline.Config{BatchSize: cfg.Run.BatchSize}, fetcher, filter, store, auditLog)
	if err != nil {
		return err
	}
	orch.WithLogger(logger)

	if cfg.Metrics.Addr != "" {
		srvCtx, cancel := context.WithCancel(context.Background())
		defer cancel()
		srv := metrics.NewServer(cfg.Metrics.Addr)
		go func() {
			if err := srv.Serve(srvCtx); err != nil {
				logger.Error().Err(err).Msg("Metrics server failed")
			}
		}()
	}

	logger.Info().
		Str("mode", cfg.Source.Mode).
		Int("identifiers", len(ids)).
		Int("concurrency", cfg.Fetch.Concurrency).
		Int("batch_size", cfg.Run.BatchSize).
		Msg("Harvest started")

	state, runErr := orch.Run(ctx, ids)
	stats := orch.Stats()
	printSummary(out, runID, stats, len(state), g.Peak())

	if errors.Is(runErr, pipeline.ErrRunCancelled) {
		logger.Warn().Str("checkpoint", cfg.Output.Checkpoint).Msg("Harvest cancelled, partial results checkpointed")
	}
	return runErr
}

func newFormat(cfg *config.Config) extract.Format {
	if cfg.Source.Mode == config.ModeHTML {
		return extract.HTMLFormat{RequireLang: cfg.Source.RequireLang}
	}
	return extract.JSONFormat{Lang: cfg.Source.Lang}
}

func connectRedis(ctx context.Context, rawURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return rdb, nil
}

func printSummary(w io.Writer, runID string, s pipeline.Stats, records, peak int) {
	fmt.Fprintf(w, "run %s\n", runID)
	fmt.Fprintf(w, "  identifiers:  %d (dispatched %d, batches %d)\n", s.Identifiers, s.Dispatched, s.Batches)
	fmt.Fprintf(w, "  matched:      %d\n", s.Matched())
	fmt.Fprintf(w, "  no pattern:   %d\n", s.Decisions[extract.DecisionNoPattern])
	fmt.Fprintf(w, "  failed:       %d\n", s.Failed())
	fmt.Fprintf(w, "  records:      %d\n", records)
	fmt.Fprintf(w, "  peak fetches: %d\n", peak)
	if s.CheckpointFailures > 0 {
		fmt.Fprintf(w, "  checkpoint failures: %d\n", s.CheckpointFailures)
	}
	fmt.Fprintf(w, "  duration:     %s\n", s.Duration.Round(time.Millisecond))
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
