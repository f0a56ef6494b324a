package report

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/scout/internal/db"
	"horse.fit/scout/internal/globaltime"
)

// candidateFetchFactor oversamples the detection query so per-key
// deduplication still fills the digest.
const candidateFetchFactor = 5

// maxResolvedPages caps title lookups per digest entry.
const maxResolvedPages = 10

// Store is the persistence surface the reporting job needs.
type Store interface {
	SpikeEventsSince(ctx context.Context, since time.Time, limit int) ([]db.SpikeEvent, error)
	LatestReport(ctx context.Context, key string, windowHours int) (*db.Report, error)
	InsertReport(ctx context.Context, report *db.Report) error
	PageRef(ctx context.Context, pageID int64) (title, titleURL string, err error)
}

// Job assembles one digest: select the strongest detections in the
// window, drop the ones the gates suppress, persist the rest.
type Job struct {
	store       Store
	gate        Gate
	windowHours int
	limit       int
	logger      zerolog.Logger
}

func NewJob(store Store, gate Gate, windowHours, limit int, logger zerolog.Logger) (*Job, error) {
	if windowHours <= 0 {
		return nil, fmt.Errorf("window hours must be > 0, got %d", windowHours)
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0, got %d", limit)
	}
	return &Job{
		store:       store,
		gate:        gate,
		windowHours: windowHours,
		limit:       limit,
		logger:      logger,
	}, nil
}

// Run produces the digest for the trailing window. A run with nothing
// to report returns an empty digest, not an error. Each accepted entry
// is persisted before it is included, so the gates always compare
// against what was actually reported.
func (j *Job) Run(ctx context.Context) (*Digest, error) {
	now := globaltime.UTC()
	since := now.Add(-time.Duration(j.windowHours) * time.Hour)

	events, err := j.store.SpikeEventsSince(ctx, since, j.limit*candidateFetchFactor)
	if err != nil {
		return nil, fmt.Errorf("load detections: %w", err)
	}

	digest := &Digest{GeneratedAt: now, WindowHours: j.windowHours}
	for _, event := range SelectTopEvents(events, j.limit) {
		entry := entryFromEvent(event)

		prev, err := j.store.LatestReport(ctx, entry.Key, j.windowHours)
		if err != nil {
			return nil, fmt.Errorf("load prior report for %q: %w", entry.Key, err)
		}
		ok, reason := j.gate.ShouldReport(prev, entry, now)
		if !ok {
			j.logger.Debug().
				Str("key", entry.Key).
				Str("reason", reason).
				Msg("digest entry suppressed")
			continue
		}

		entry.PageLinks = j.resolvePages(ctx, entry.Pages)

		payload, err := json.Marshal(entry)
		if err != nil {
			return nil, fmt.Errorf("encode report payload for %q: %w", entry.Key, err)
		}
		record := db.Report{
			Key:         entry.Key,
			WindowHours: j.windowHours,
			Score:       entry.Score,
			Direction:   entry.Direction,
			PageCount:   len(entry.Pages),
			Payload:     payload,
			ReportedAt:  now,
		}
		if err := j.store.InsertReport(ctx, &record); err != nil {
			return nil, fmt.Errorf("persist report for %q: %w", entry.Key, err)
		}
		digest.Entries = append(digest.Entries, entry)
	}

	j.logger.Info().
		Int("candidates", len(events)).
		Int("reported", len(digest.Entries)).
		Int("window_hours", j.windowHours).
		Msg("digest assembled")
	return digest, nil
}

// resolvePages maps page ids to display links. Resolution failures only
// cost the link; the id list always remains for gating.
func (j *Job) resolvePages(ctx context.Context, pages []string) []PageLink {
	var links []PageLink
	for _, page := range pages {
		if len(links) >= maxResolvedPages {
			break
		}
		pageID, err := strconv.ParseInt(page, 10, 64)
		if err != nil {
			continue
		}
		title, pageURL, err := j.store.PageRef(ctx, pageID)
		if err != nil {
			j.logger.Debug().Err(err).Int64("page_id", pageID).Msg("page resolve failed")
			continue
		}
		if title == "" {
			continue
		}
		links = append(links, PageLink{Title: title, URL: pageURL})
	}
	return links
}
