// Package enrich drains accepted change events: fetch and parse the
// diff, extract term candidates into the counters, and resolve page
// metadata.
package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"horse.fit/scout/internal/db"
	"horse.fit/scout/internal/diff"
	"horse.fit/scout/internal/globaltime"
	"horse.fit/scout/internal/langdetect"
	"horse.fit/scout/internal/metadata"
	"horse.fit/scout/internal/terms"
)

// Store is the persistence surface the worker needs.
type Store interface {
	PendingChangeEvents(ctx context.Context, limit int) ([]db.ChangeEvent, error)
	MarkEventsProcessed(ctx context.Context, ids []int64) error
	InsertDiffRecord(ctx context.Context, record *db.DiffRecord) (bool, error)
	SaveTermBuckets(ctx context.Context, rows []db.TermBucket) error
	TermBucketsInRange(ctx context.Context, from, to time.Time) ([]db.TermBucket, error)
}

// DiffSource fetches parsed comparison fragments for a revision pair.
type DiffSource interface {
	FetchFragments(ctx context.Context, fromRev, toRev int64) ([]diff.Fragment, error)
}

// MetadataSource resolves cached page metadata.
type MetadataSource interface {
	Get(ctx context.Context, pageID int64) (*metadata.Record, error)
}

type Options struct {
	Workers     int
	BatchSize   int
	NGramMin    int
	NGramMax    int
	EnglishOnly bool
	// Retention bounds how far back buckets are kept in memory.
	Retention time.Duration
}

func (o *Options) applyDefaults() {
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 200
	}
	if o.NGramMin <= 0 {
		o.NGramMin = 1
	}
	if o.NGramMax < o.NGramMin {
		o.NGramMax = o.NGramMin + 2
	}
	if o.Retention <= 0 {
		o.Retention = 30 * 24 * time.Hour
	}
}

type Worker struct {
	store    Store
	diffs    DiffSource
	meta     MetadataSource
	counters *terms.CounterStore
	opts     Options
	logger   zerolog.Logger

	isEnglish func(string) bool
}

func NewWorker(store Store, diffs DiffSource, meta MetadataSource, counters *terms.CounterStore, opts Options, logger zerolog.Logger) *Worker {
	opts.applyDefaults()
	return &Worker{
		store:     store,
		diffs:     diffs,
		meta:      meta,
		counters:  counters,
		opts:      opts,
		logger:    logger,
		isEnglish: langdetect.IsEnglish,
	}
}

// WarmStart loads persisted buckets inside the retention horizon into
// the in-memory counters.
func (w *Worker) WarmStart(ctx context.Context) error {
	now := globaltime.UTC()
	rows, err := w.store.TermBucketsInRange(ctx, now.Add(-w.opts.Retention), now.Add(time.Hour))
	if err != nil {
		return fmt.Errorf("warm-start term buckets: %w", err)
	}
	for _, row := range rows {
		loaded, err := bucketRowFromRecord(row)
		if err != nil {
			w.logger.Warn().Err(err).Str("term", row.Term).Msg("skipping undecodable bucket row")
			continue
		}
		w.counters.LoadRow(loaded)
	}
	w.logger.Info().Int("buckets", len(rows)).Msg("counters warmed from store")
	return nil
}

// Run drains batches on the given interval until ctx is cancelled.
func (w *Worker) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := w.RunOnce(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce processes one batch of pending events. Events whose diff
// cannot be fetched are logged and still marked processed, so a
// permanently missing revision cannot wedge the queue. Returns the
// number of events drained.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	events, err := w.store.PendingChangeEvents(ctx, w.opts.BatchSize)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(w.opts.Workers)

	// Events arrive ordered by (page, revision); fan out across pages
	// and keep each page's edits sequential so its revisions apply in
	// order.
	for _, pageEvents := range groupByPage(events) {
		group.Go(func() error {
			for _, event := range pageEvents {
				if err := w.processEvent(groupCtx, event); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return 0, err
	}

	w.counters.Prune(globaltime.UTC().Add(-w.opts.Retention))
	if err := w.flushCounters(ctx); err != nil {
		return 0, err
	}

	ids := make([]int64, len(events))
	for i, event := range events {
		ids[i] = event.ChangeEventID
	}
	if err := w.store.MarkEventsProcessed(ctx, ids); err != nil {
		return 0, err
	}

	w.logger.Info().Int("events", len(events)).Msg("enrichment batch drained")
	return len(events), nil
}

func (w *Worker) processEvent(ctx context.Context, event db.ChangeEvent) error {
	if event.RevOld == nil || event.RevNew == nil {
		return nil
	}

	fragments, err := w.diffs.FetchFragments(ctx, *event.RevOld, *event.RevNew)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		w.logger.Warn().
			Err(err).
			Str("event_id", event.EventID).
			Int64("page_id", event.PageID).
			Msg("diff fetch failed, skipping event")
		return nil
	}

	encoded, err := json.Marshal(fragments)
	if err != nil {
		return fmt.Errorf("encode fragments for event %s: %w", event.EventID, err)
	}
	record := db.DiffRecord{
		ChangeEventID: event.ChangeEventID,
		FromRev:       *event.RevOld,
		ToRev:         *event.RevNew,
		Fragments:     encoded,
		FetchedAt:     globaltime.UTC(),
	}
	inserted, err := w.store.InsertDiffRecord(ctx, &record)
	if err != nil {
		return err
	}

	// Count only when the diff record is new. Events re-drained after a
	// failed flush or a restart keep their single contribution: the
	// counts live either in memory (awaiting the next flush) or already
	// in the store (reloaded by WarmStart).
	if inserted {
		w.countTerms(event, fragments)
	}

	if _, err := w.meta.Get(ctx, event.PageID); err != nil {
		w.logger.Debug().
			Err(err).
			Int64("page_id", event.PageID).
			Msg("metadata resolution failed")
	}
	return nil
}

// countTerms extracts candidates from every fragment and records them
// into the bucket containing the event time.
func (w *Worker) countTerms(event db.ChangeEvent, fragments []diff.Fragment) {
	if w.opts.EnglishOnly && !w.isEnglish(joinedText(fragments)) {
		return
	}

	pageKey := strconv.FormatInt(event.PageID, 10)
	for _, fragment := range fragments {
		extracted := terms.ExtractDiffTerms(fragment.AddedText, fragment.RemovedText, w.opts.NGramMin, w.opts.NGramMax)
		added := append(extracted.Added.NGrams, extracted.Added.ProperNouns...)
		removed := append(extracted.Removed.NGrams, extracted.Removed.ProperNouns...)
		if len(added) == 0 && len(removed) == 0 {
			continue
		}
		w.counters.AddTerms(added, removed, pageKey, event.EditorName, event.EventTime)
	}
}

func (w *Worker) flushCounters(ctx context.Context) error {
	snapshot := w.counters.Snapshot()
	if len(snapshot) == 0 {
		return nil
	}
	rows := make([]db.TermBucket, 0, len(snapshot))
	for _, cell := range snapshot {
		row, err := bucketRecordFromRow(cell)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}
	return w.store.SaveTermBuckets(ctx, rows)
}

func groupByPage(events []db.ChangeEvent) [][]db.ChangeEvent {
	var pages [][]db.ChangeEvent
	index := make(map[int64]int)
	for _, event := range events {
		i, seen := index[event.PageID]
		if !seen {
			index[event.PageID] = len(pages)
			pages = append(pages, []db.ChangeEvent{event})
			continue
		}
		pages[i] = append(pages[i], event)
	}
	return pages
}

func joinedText(fragments []diff.Fragment) string {
	var parts []string
	for _, fragment := range fragments {
		if fragment.AddedText != "" {
			parts = append(parts, fragment.AddedText)
		}
		if fragment.RemovedText != "" {
			parts = append(parts, fragment.RemovedText)
		}
	}
	return strings.Join(parts, "\n")
}

func bucketRecordFromRow(row terms.BucketRow) (db.TermBucket, error) {
	pages, err := json.Marshal(row.Pages)
	if err != nil {
		return db.TermBucket{}, fmt.Errorf("encode pages for term %q: %w", row.Term, err)
	}
	editors, err := json.Marshal(row.Editors)
	if err != nil {
		return db.TermBucket{}, fmt.Errorf("encode editors for term %q: %w", row.Term, err)
	}
	return db.TermBucket{
		Term:         row.Term,
		BucketStart:  row.BucketStart,
		AddedCount:   int64(row.Added),
		RemovedCount: int64(row.Removed),
		PageIDs:      pages,
		Editors:      editors,
		UpdatedAt:    globaltime.UTC(),
	}, nil
}

func bucketRowFromRecord(record db.TermBucket) (terms.BucketRow, error) {
	var pages, editors []string
	if len(record.PageIDs) > 0 {
		if err := json.Unmarshal(record.PageIDs, &pages); err != nil {
			return terms.BucketRow{}, fmt.Errorf("decode pages: %w", err)
		}
	}
	if len(record.Editors) > 0 {
		if err := json.Unmarshal(record.Editors, &editors); err != nil {
			return terms.BucketRow{}, fmt.Errorf("decode editors: %w", err)
		}
	}
	return terms.BucketRow{
		Term:        record.Term,
		BucketStart: record.BucketStart,
		Added:       int(record.AddedCount),
		Removed:     int(record.RemovedCount),
		Pages:       pages,
		Editors:     editors,
	}, nil
}
