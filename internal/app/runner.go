package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"horse.fit/scout/internal/config"
	"horse.fit/scout/internal/db"
	"horse.fit/scout/internal/detect"
	"horse.fit/scout/internal/enrich"
	"horse.fit/scout/internal/report"
)

// pipelineRunner backs the API's on-demand run endpoints with the same
// wiring the standalone commands use. Jobs are serialized per kind:
// the enrichment worker is a single writer over the term counters, and
// concurrent manual runs would race it.
type pipelineRunner struct {
	enrichMu sync.Mutex
	worker   *enrich.Worker
	warmed   bool

	detectMu sync.Mutex
	detector *detect.Service

	digestMu sync.Mutex
	digest   *report.Job
}

func newPipelineRunner(pool *db.Pool, cfg *config.Config, logger zerolog.Logger) (*pipelineRunner, error) {
	worker, err := buildEnrichWorker(pool, cfg, logger)
	if err != nil {
		return nil, err
	}
	digest, err := buildDigestJob(pool, cfg, logger)
	if err != nil {
		return nil, err
	}
	detector := detect.NewService(pool, pool, detectOptions(cfg), logger).
		WithSnippets(pool, snippetFetcher(cfg))
	return &pipelineRunner{
		worker:   worker,
		detector: detector,
		digest:   digest,
	}, nil
}

func (r *pipelineRunner) RunEnrich(ctx context.Context) (int, error) {
	r.enrichMu.Lock()
	defer r.enrichMu.Unlock()
	if !r.warmed {
		if err := r.worker.WarmStart(ctx); err != nil {
			return 0, err
		}
		r.warmed = true
	}
	return r.worker.RunOnce(ctx)
}

func (r *pipelineRunner) RunDetect(ctx context.Context) (int, error) {
	r.detectMu.Lock()
	defer r.detectMu.Unlock()
	return r.detector.RunOnce(ctx)
}

func (r *pipelineRunner) RunDigest(ctx context.Context) (*report.Digest, error) {
	r.digestMu.Lock()
	defer r.digestMu.Unlock()
	return r.digest.Run(ctx)
}
