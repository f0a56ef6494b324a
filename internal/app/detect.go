package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"horse.fit/scout/internal/cli"
	"horse.fit/scout/internal/config"
	"horse.fit/scout/internal/db"
	"horse.fit/scout/internal/detect"
	"horse.fit/scout/internal/logging"
	"horse.fit/scout/internal/reader"
)

// runDetect scores the most recent complete hour and persists any
// spike events. One pass per invocation; schedule it externally or use
// serve's POST /api/v1/detect/run.
func runDetect(args []string) int {
	fs := flag.NewFlagSet("detect", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 5*time.Minute, "Detection pass timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
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
		logger.Error().Err(err).Msg("detect failed to connect to database")
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	service := detect.NewService(pool, pool, detectOptions(cfg), logger).
		WithSnippets(pool, snippetFetcher(cfg))
	detected, err := service.RunOnce(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("detection pass failed")
		fmt.Fprintf(os.Stderr, "Detect failed: %v\n", err)
		return 1
	}

	fmt.Printf("ok: %d new spike events\n", detected)
	return 0
}

// snippetFetcher adapts the reader package to the detector's optional
// excerpt hook.
func snippetFetcher(cfg *config.Config) detect.SnippetFunc {
	return func(ctx context.Context, pageURL, title string) (string, error) {
		return reader.Snippet(ctx, pageURL, title, reader.DefaultSnippetChars, reader.FetchOptions{
			UserAgent: cfg.UserAgent,
		})
	}
}

func detectOptions(cfg *config.Config) detect.Options {
	return detect.Options{
		Method:           cfg.SpikeMethod,
		RobustZThreshold: cfg.RobustZThreshold,
		EWMAThreshold:    cfg.EWMAThreshold,
		EWMASpan:         cfg.EWMASpan,
		BaselineMinDays:  cfg.BaselineMinDays,
		BaselineMaxDays:  cfg.BaselineMaxDays,
		TermMethod:       cfg.TermSpikeMethod,
		TermPrior:        cfg.TermPrior,
		TermMinSupport:   cfg.TermMinSupport,
	}
}
