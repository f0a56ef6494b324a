// Package detect scores recent term activity against historical
// baselines and records spike events.
package detect

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/scout/internal/db"
	"horse.fit/scout/internal/globaltime"
	"horse.fit/scout/internal/metadata"
	"horse.fit/scout/internal/spikes"
)

// Store is the persistence surface the detector needs.
type Store interface {
	TermBucketsInRange(ctx context.Context, from, to time.Time) ([]db.TermBucket, error)
	EventsInWindow(ctx context.Context, from, to time.Time) ([]db.ChangeEvent, error)
	InsertSpikeEvents(ctx context.Context, events []db.SpikeEvent) (int64, error)
}

// MetadataLookup reads cached page metadata for evidence enrichment.
type MetadataLookup interface {
	GetMetadata(ctx context.Context, pageID int64) (*metadata.Record, error)
}

// PageResolver maps a page id to the latest title and URL seen for it.
type PageResolver interface {
	PageRef(ctx context.Context, pageID int64) (title, titleURL string, err error)
}

// SnippetFunc fetches a short readable excerpt for a page. Failures
// only cost the snippet, never the detection.
type SnippetFunc func(ctx context.Context, pageURL, title string) (string, error)

type Options struct {
	Method           string
	RobustZThreshold float64
	EWMAThreshold    float64
	EWMASpan         int
	BaselineMinDays  int
	BaselineMaxDays  int
	TermMethod       string
	TermPrior        float64
	TermMinSupport   int
	// MaxEvidenceTerms caps the vocabulary sample attached to each
	// detection.
	MaxEvidenceTerms int
	// MaxMetadataPages caps metadata lookups per detection.
	MaxMetadataPages int
}

func (o *Options) applyDefaults() {
	if o.Method == "" {
		o.Method = spikes.MethodRobustZ
	}
	if o.RobustZThreshold <= 0 {
		o.RobustZThreshold = spikes.DefaultRobustZThreshold
	}
	if o.EWMAThreshold <= 0 {
		o.EWMAThreshold = spikes.DefaultEWMAThreshold
	}
	if o.EWMASpan <= 0 {
		o.EWMASpan = spikes.DefaultEWMASpan
	}
	if o.BaselineMinDays <= 0 {
		o.BaselineMinDays = 14
	}
	if o.BaselineMaxDays <= 0 {
		o.BaselineMaxDays = 30
	}
	if o.TermMethod == "" {
		o.TermMethod = spikes.TermMethodLogOdds
	}
	if o.TermPrior <= 0 {
		o.TermPrior = spikes.DefaultTermPrior
	}
	if o.TermMinSupport <= 0 {
		o.TermMinSupport = spikes.DefaultTermMinSupport
	}
	if o.MaxEvidenceTerms <= 0 {
		o.MaxEvidenceTerms = 10
	}
	if o.MaxMetadataPages <= 0 {
		o.MaxMetadataPages = 25
	}
}

// maxDiffLinks caps the compare URLs attached to one detection.
const maxDiffLinks = 5

// hourCell aggregates one term's activity within one hour.
type hourCell struct {
	activity float64
	pages    map[string]struct{}
	editors  map[string]struct{}
	added    int
}

type Service struct {
	store   Store
	meta    MetadataLookup
	opts    Options
	weights spikes.IntensityWeights
	logger  zerolog.Logger

	pages   PageResolver
	snippet SnippetFunc
}

func NewService(store Store, meta MetadataLookup, opts Options, logger zerolog.Logger) *Service {
	opts.applyDefaults()
	return &Service{
		store:   store,
		meta:    meta,
		opts:    opts,
		weights: spikes.DefaultIntensityWeights(),
		logger:  logger,
	}
}

// WithSnippets enables excerpt fetching for detection evidence. Both
// arguments must be non-nil for snippets to be attached.
func (s *Service) WithSnippets(pages PageResolver, snippet SnippetFunc) *Service {
	s.pages = pages
	s.snippet = snippet
	return s
}

// RunOnce scores the most recent complete hour for every term active in
// it and persists the detections. Terms without enough history are
// skipped, not errors. Returns the number of new spike events.
func (s *Service) RunOnce(ctx context.Context) (int, error) {
	now := globaltime.UTC()
	// The current hour is still filling; scoring it against full-hour
	// baselines would flag partial counts. Score the hour before it.
	lastHour := now.Truncate(time.Hour).Add(-time.Hour)
	from := lastHour.AddDate(0, 0, -s.opts.BaselineMaxDays)

	rows, err := s.store.TermBucketsInRange(ctx, from, lastHour.Add(time.Hour))
	if err != nil {
		return 0, fmt.Errorf("load term buckets: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	series, err := hourlySeries(rows)
	if err != nil {
		return 0, err
	}

	risers := s.vocabularyRisers(series, lastHour)

	windowEvents, err := s.store.EventsInWindow(ctx, lastHour, lastHour.Add(time.Hour))
	if err != nil {
		return 0, fmt.Errorf("load window events: %w", err)
	}
	diffLinks := diffLinksByPage(windowEvents)

	var detections []db.SpikeEvent
	skipped := 0
	for term, cells := range series {
		cell, active := cells[lastHour.Unix()]
		if !active || cell.activity <= 0 {
			continue
		}

		// Zero-fill only from the term's first observation; padding
		// before it would fake history the min-days check must see
		// through.
		points := fillHourly(cells, seriesStart(cells, from), lastHour)
		observed := make([]float64, len(points))
		for i, p := range points {
			observed[i] = p.Value
		}

		baseline, err := spikes.HourOfWeekBaseline(points, s.opts.BaselineMinDays, s.opts.BaselineMaxDays)
		if err != nil {
			skipped++
			continue
		}
		scores, err := spikes.Scores(observed, baseline, s.opts.Method, s.opts.EWMASpan)
		if err != nil {
			return 0, err
		}
		flags := spikes.Flags(scores, s.opts.Method, s.opts.RobustZThreshold, s.opts.EWMAThreshold)

		last := len(scores) - 1
		if !flags[last] {
			continue
		}

		evidence, err := s.buildEvidence(ctx, cell, risers, diffLinks)
		if err != nil {
			return 0, err
		}
		detections = append(detections, db.SpikeEvent{
			Key:         term,
			Kind:        "term",
			WindowStart: lastHour,
			WindowEnd:   lastHour.Add(time.Hour),
			Score:       scores[last],
			Direction:   scoreDirection(scores[last]),
			Method:      s.opts.Method,
			Evidence:    evidence,
			DetectedAt:  now,
		})
	}

	inserted, err := s.store.InsertSpikeEvents(ctx, detections)
	if err != nil {
		return 0, err
	}
	s.logger.Info().
		Int("candidates", len(series)).
		Int("insufficient_history", skipped).
		Int("detected", len(detections)).
		Int64("inserted", inserted).
		Time("window_start", lastHour).
		Msg("detection pass complete")
	return int(inserted), nil
}

// vocabularyRisers ranks terms by frequency shift of the trailing 24
// hours against the rest of the history.
func (s *Service) vocabularyRisers(series map[string]map[int64]*hourCell, lastHour time.Time) []string {
	currentStart := lastHour.Add(-24 * time.Hour).Unix()

	current := make(map[string]int)
	baseline := make(map[string]int)
	for term, cells := range series {
		for hour, cell := range cells {
			if hour >= currentStart {
				current[term] += cell.added
			} else {
				baseline[term] += cell.added
			}
		}
	}

	scores, err := spikes.TermScores(current, baseline, s.opts.TermMethod, s.opts.TermPrior, s.opts.TermMinSupport)
	if err != nil || len(scores) == 0 {
		return nil
	}

	ranked := make([]string, 0, len(scores))
	for term := range scores {
		ranked = append(ranked, term)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if scores[ranked[i]] != scores[ranked[j]] {
			return scores[ranked[i]] > scores[ranked[j]]
		}
		return ranked[i] < ranked[j]
	})
	if len(ranked) > s.opts.MaxEvidenceTerms {
		ranked = ranked[:s.opts.MaxEvidenceTerms]
	}
	return ranked
}

// buildEvidence assembles the stored payload for one detection:
// contributing pages and editors from the spiking hour, their diff
// links, plus the metadata-weighted topic intensity.
func (s *Service) buildEvidence(ctx context.Context, cell *hourCell, risers []string, diffLinks map[string][]string) (json.RawMessage, error) {
	pages := make([]string, 0, len(cell.pages))
	for page := range cell.pages {
		pages = append(pages, page)
	}
	sort.Strings(pages)

	var categories, canonicalIDs []string
	seenCategories := make(map[string]struct{})
	lookups := 0
	for _, page := range pages {
		if lookups >= s.opts.MaxMetadataPages {
			break
		}
		pageID, err := strconv.ParseInt(page, 10, 64)
		if err != nil {
			continue
		}
		lookups++
		record, err := s.meta.GetMetadata(ctx, pageID)
		if err != nil {
			s.logger.Debug().Err(err).Int64("page_id", pageID).Msg("evidence metadata lookup failed")
			continue
		}
		if record == nil {
			continue
		}
		for _, category := range record.Categories {
			if _, seen := seenCategories[category]; !seen {
				seenCategories[category] = struct{}{}
				categories = append(categories, category)
			}
		}
		if record.CanonicalID != "" {
			canonicalIDs = append(canonicalIDs, record.CanonicalID)
		}
	}

	var links []string
	for _, page := range pages {
		for _, link := range diffLinks[page] {
			if len(links) >= maxDiffLinks {
				break
			}
			links = append(links, link)
		}
	}

	intensity := spikes.TopicIntensity(categories, canonicalIDs, nil, len(pages), s.weights)
	evidence := spikes.Evidence{
		Intensity:   &intensity,
		Pages:       pages,
		EditorCount: len(cell.editors),
		SampleTerms: risers,
		DiffLinks:   links,
		Snippet:     s.fetchSnippet(ctx, pages),
	}
	encoded, err := json.Marshal(evidence)
	if err != nil {
		return nil, fmt.Errorf("encode evidence: %w", err)
	}
	return encoded, nil
}

// scoreDirection labels which side of the baseline the hour landed on.
func scoreDirection(score float64) string {
	if score < 0 {
		return "down"
	}
	return "up"
}

// fetchSnippet pulls an excerpt from the first contributing page that
// resolves to a URL. Any failure drops the snippet, nothing else.
func (s *Service) fetchSnippet(ctx context.Context, pages []string) string {
	if s.pages == nil || s.snippet == nil {
		return ""
	}
	for _, page := range pages {
		pageID, err := strconv.ParseInt(page, 10, 64)
		if err != nil {
			continue
		}
		title, pageURL, err := s.pages.PageRef(ctx, pageID)
		if err != nil || pageURL == "" {
			continue
		}
		snippet, err := s.snippet(ctx, pageURL, title)
		if err != nil {
			s.logger.Debug().Err(err).Str("page_url", pageURL).Msg("snippet fetch failed")
			return ""
		}
		return snippet
	}
	return ""
}

// hourlySeries folds bucket rows into per-term hourly cells. Bucket
// widths finer than an hour aggregate up.
func hourlySeries(rows []db.TermBucket) (map[string]map[int64]*hourCell, error) {
	series := make(map[string]map[int64]*hourCell)
	for _, row := range rows {
		hour := row.BucketStart.UTC().Truncate(time.Hour).Unix()
		cells, ok := series[row.Term]
		if !ok {
			cells = make(map[int64]*hourCell)
			series[row.Term] = cells
		}
		cell, ok := cells[hour]
		if !ok {
			cell = &hourCell{
				pages:   make(map[string]struct{}),
				editors: make(map[string]struct{}),
			}
			cells[hour] = cell
		}
		cell.activity += float64(row.AddedCount + row.RemovedCount)
		cell.added += int(row.AddedCount)

		var pages, editors []string
		if len(row.PageIDs) > 0 {
			if err := json.Unmarshal(row.PageIDs, &pages); err != nil {
				return nil, fmt.Errorf("decode pages for term %q: %w", row.Term, err)
			}
		}
		if len(row.Editors) > 0 {
			if err := json.Unmarshal(row.Editors, &editors); err != nil {
				return nil, fmt.Errorf("decode editors for term %q: %w", row.Term, err)
			}
		}
		for _, page := range pages {
			cell.pages[page] = struct{}{}
		}
		for _, editor := range editors {
			cell.editors[editor] = struct{}{}
		}
	}
	return series, nil
}

// diffLinksByPage builds compare URLs for every window event that
// carries both revisions and a page URL, keyed by page id.
func diffLinksByPage(events []db.ChangeEvent) map[string][]string {
	links := make(map[string][]string)
	for _, event := range events {
		if event.TitleURL == nil || event.RevOld == nil || event.RevNew == nil {
			continue
		}
		parsed, err := url.Parse(*event.TitleURL)
		if err != nil || parsed.Host == "" {
			continue
		}
		page := strconv.FormatInt(event.PageID, 10)
		links[page] = append(links[page], fmt.Sprintf("%s://%s/w/index.php?diff=%d&oldid=%d",
			parsed.Scheme, parsed.Host, *event.RevNew, *event.RevOld))
	}
	return links
}

// seriesStart returns the later of from and the earliest observed hour.
func seriesStart(cells map[int64]*hourCell, from time.Time) time.Time {
	earliest := int64(0)
	for hour := range cells {
		if earliest == 0 || hour < earliest {
			earliest = hour
		}
	}
	if earliest == 0 {
		return from
	}
	first := time.Unix(earliest, 0).UTC()
	if first.Before(from) {
		return from
	}
	return first
}

// fillHourly expands sparse cells into a dense hourly series over
// [from, through], zero-filling silent hours.
func fillHourly(cells map[int64]*hourCell, from, through time.Time) []spikes.Point {
	start := from.UTC().Truncate(time.Hour)
	end := through.UTC().Truncate(time.Hour)

	var points []spikes.Point
	for hour := start; !hour.After(end); hour = hour.Add(time.Hour) {
		value := 0.0
		if cell, ok := cells[hour.Unix()]; ok {
			value = cell.activity
		}
		points = append(points, spikes.Point{Time: hour, Value: value})
	}
	return points
}
