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

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"horse.fit/scout/internal/cli"
	"horse.fit/scout/internal/config"
	"horse.fit/scout/internal/db"
	"horse.fit/scout/internal/logging"
	"horse.fit/scout/internal/report"
)

// runDigest selects the strongest recent detections, applies the
// dedupe gate, persists what passes, and prints the markdown digest.
// With --cron it stays up and repeats on the schedule.
func runDigest(args []string) int {
	fs := flag.NewFlagSet("digest", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	cronSpec := fs.String("cron", "", "Cron schedule for repeated runs (empty runs once)")

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
		logger.Error().Err(err).Msg("digest failed to connect to database")
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	job, err := buildDigestJob(pool, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build digest job: %v\n", err)
		return 1
	}

	if *cronSpec == "" {
		digest, err := job.Run(context.Background())
		if err != nil {
			logger.Error().Err(err).Msg("digest run failed")
			fmt.Fprintf(os.Stderr, "Digest failed: %v\n", err)
			return 1
		}
		fmt.Println(digest.Markdown())
		return 0
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler := cron.New()
	_, err = scheduler.AddFunc(*cronSpec, func() {
		digest, runErr := job.Run(ctx)
		if runErr != nil {
			logger.Error().Err(runErr).Msg("scheduled digest run failed")
			return
		}
		fmt.Println(digest.Markdown())
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid --cron schedule %q: %v\n", *cronSpec, err)
		return 2
	}

	logger.Info().Str("schedule", *cronSpec).Msg("digest scheduler started")
	scheduler.Start()
	<-ctx.Done()
	<-scheduler.Stop().Done()
	logger.Info().Msg("digest scheduler stopped")
	return 0
}

func buildDigestJob(pool *db.Pool, cfg *config.Config, logger zerolog.Logger) (*report.Job, error) {
	gate := report.Gate{
		MinBetween:    time.Duration(cfg.MinHoursBetweenReports) * time.Hour,
		MinScoreDelta: cfg.MinScoreDelta,
		MinNewPages:   cfg.MinNewPages,
	}
	return report.NewJob(pool, gate, cfg.ReportWindowHours, cfg.ReportLimit, logger)
}
