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

	"horse.fit/scout/internal/cli"
	"horse.fit/scout/internal/config"
	"horse.fit/scout/internal/db"
	"horse.fit/scout/internal/feed"
	"horse.fit/scout/internal/logging"
)

// runConsume follows the change stream until interrupted, persisting
// accepted events and the resume cursor.
func runConsume(args []string) int {
	fs := flag.NewFlagSet("consume", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	cursor := fs.String("cursor", "", "Override the stored resume position")

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

	namespaces, err := cfg.NamespaceSet()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid namespace filter: %v\n", err)
		return 2
	}

	dbCtx, dbCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer dbCancel()

	pool, err := db.NewPool(dbCtx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("consume failed to connect to database")
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := feed.NewClient(cfg.StreamURL, cfg.UserAgent, cfg.StreamReadTimeout)
	consumer := feed.NewConsumer(client, pool, feed.Filter{
		Wiki:       cfg.Wiki,
		Namespaces: namespaces,
	}, logger)
	if *cursor != "" {
		consumer.SetCursor(*cursor)
	}

	logger.Info().
		Str("stream_url", cfg.StreamURL).
		Str("wiki", cfg.Wiki).
		Str("namespaces", cfg.Namespaces).
		Msg("consume starting")

	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("consume failed")
		fmt.Fprintf(os.Stderr, "Consume failed: %v\n", err)
		return 1
	}

	logger.Info().Msg("consume stopped")
	return 0
}
