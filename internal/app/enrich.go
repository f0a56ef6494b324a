package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/scout/internal/cli"
	"horse.fit/scout/internal/config"
	"horse.fit/scout/internal/db"
	"horse.fit/scout/internal/diff"
	"horse.fit/scout/internal/enrich"
	"horse.fit/scout/internal/logging"
	"horse.fit/scout/internal/metadata"
	"horse.fit/scout/internal/resilience"
	"horse.fit/scout/internal/terms"
)

// runEnrich drains pending change events: diff fetch, term extraction,
// counter flush. By default it loops on an interval; --once drains a
// single batch and exits.
func runEnrich(args []string) int {
	fs := flag.NewFlagSet("enrich", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	once := fs.Bool("once", false, "Drain one batch and exit")
	interval := fs.Duration("interval", 30*time.Second, "Poll interval between batches")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if *interval <= 0 {
		fmt.Fprintln(os.Stderr, "--interval must be positive")
		return 2
	}

	if envLoader != nil {
		if _, err := envLoader.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}

	dbCtx, dbCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer dbCancel()

	pool, err := db.NewPool(dbCtx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("enrich failed to connect to database")
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	worker, err := buildEnrichWorker(pool, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build enrichment worker: %v\n", err)
		return 1
	}

	if err := worker.WarmStart(ctx); err != nil {
		logger.Error().Err(err).Msg("warm start failed")
		fmt.Fprintf(os.Stderr, "Warm start failed: %v\n", err)
		return 1
	}

	if *once {
		drained, err := worker.RunOnce(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("enrich pass failed")
			fmt.Fprintf(os.Stderr, "Enrich failed: %v\n", err)
			return 1
		}
		fmt.Printf("ok: processed %d events\n", drained)
		return 0
	}

	if err := worker.Run(ctx, *interval); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("enrich loop failed")
		fmt.Fprintf(os.Stderr, "Enrich failed: %v\n", err)
		return 1
	}
	logger.Info().Msg("enrich stopped")
	return 0
}

// buildEnrichWorker wires the resilient HTTP layer, diff and metadata
// fetchers, and the in-memory counter store behind one worker.
func buildEnrichWorker(pool *db.Pool, cfg *config.Config, logger zerolog.Logger) (*enrich.Worker, error) {
	limiter, err := resilience.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow)
	if err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	breaker := resilience.NewCircuitBreaker(cfg.FailureThreshold, cfg.RecoveryInterval)
	fetcher := resilience.NewFetcher(limiter, breaker, logger, resilience.FetcherOptions{
		UserAgent:   cfg.UserAgent,
		MaxRetries:  cfg.MaxRetries,
		BaseBackoff: cfg.BaseBackoff,
		Timeout:     cfg.RequestTimeout,
	})

	diffs := diff.NewFetcher(fetcher, cfg.APIBaseURL)
	meta := metadata.NewFetcher(pool, fetcher, cfg.APIBaseURL, cfg.MetadataTTL, logger)

	counters, err := terms.NewCounterStore(cfg.BucketWidth)
	if err != nil {
		return nil, fmt.Errorf("counter store: %w", err)
	}

	return enrich.NewWorker(pool, diffs, meta, counters, enrich.Options{
		Workers:     cfg.EnrichWorkers,
		BatchSize:   cfg.EnrichBatch,
		NGramMin:    cfg.NGramMin,
		NGramMax:    cfg.NGramMax,
		EnglishOnly: cfg.EnglishOnly,
		Retention:   time.Duration(cfg.BaselineMaxDays) * 24 * time.Hour,
	}, logger), nil
}
