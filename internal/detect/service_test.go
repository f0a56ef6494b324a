package detect

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/scout/internal/db"
	"horse.fit/scout/internal/globaltime"
	"horse.fit/scout/internal/metadata"
	"horse.fit/scout/internal/spikes"
)

type detectStore struct {
	rows     []db.TermBucket
	events   []db.ChangeEvent
	inserted []db.SpikeEvent
}

func (s *detectStore) TermBucketsInRange(_ context.Context, from, to time.Time) ([]db.TermBucket, error) {
	var rows []db.TermBucket
	for _, row := range s.rows {
		if !row.BucketStart.Before(from) && row.BucketStart.Before(to) {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func (s *detectStore) EventsInWindow(_ context.Context, from, to time.Time) ([]db.ChangeEvent, error) {
	var events []db.ChangeEvent
	for _, event := range s.events {
		if !event.EventTime.Before(from) && event.EventTime.Before(to) {
			events = append(events, event)
		}
	}
	return events, nil
}

func (s *detectStore) InsertSpikeEvents(_ context.Context, events []db.SpikeEvent) (int64, error) {
	s.inserted = append(s.inserted, events...)
	return int64(len(events)), nil
}

type detectMeta struct {
	records map[int64]*metadata.Record
}

func (m *detectMeta) GetMetadata(_ context.Context, pageID int64) (*metadata.Record, error) {
	return m.records[pageID], nil
}

func bucketRow(t *testing.T, term string, start time.Time, added, removed int64, pages, editors []string) db.TermBucket {
	t.Helper()
	encodedPages, err := json.Marshal(pages)
	if err != nil {
		t.Fatalf("marshal pages: %v", err)
	}
	encodedEditors, err := json.Marshal(editors)
	if err != nil {
		t.Fatalf("marshal editors: %v", err)
	}
	return db.TermBucket{
		Term:         term,
		BucketStart:  start,
		AddedCount:   added,
		RemovedCount: removed,
		PageIDs:      encodedPages,
		Editors:      encodedEditors,
	}
}

// steadyHistory writes one bucket per hour at a constant level over the
// given number of days ending just before lastHour.
func steadyHistory(t *testing.T, term string, lastHour time.Time, days int, level int64) []db.TermBucket {
	t.Helper()
	var rows []db.TermBucket
	for hour := lastHour.AddDate(0, 0, -days); hour.Before(lastHour); hour = hour.Add(time.Hour) {
		rows = append(rows, bucketRow(t, term, hour, level, 0, []string{"100"}, []string{"editor-a"}))
	}
	return rows
}

func TestRunOnceDetectsOutlierHour(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 30, 0, 0, time.UTC)
	globaltime.SetMockTime(now)
	defer globaltime.ResetTime()
	lastHour := time.Date(2026, 8, 28, 11, 0, 0, 0, time.UTC)

	store := &detectStore{rows: steadyHistory(t, "hurricane", lastHour, 20, 2)}
	// The spiking hour: far above the steady level, touching new pages.
	store.rows = append(store.rows, bucketRow(t, "hurricane", lastHour, 80, 10,
		[]string{"100", "200"}, []string{"editor-a", "editor-b", "editor-c"}))

	titleURL := "https://en.wikipedia.org/wiki/Hurricane_Example"
	revOld, revNew := int64(10), int64(11)
	store.events = []db.ChangeEvent{{
		PageID:    100,
		TitleURL:  &titleURL,
		RevOld:    &revOld,
		RevNew:    &revNew,
		EventTime: lastHour.Add(20 * time.Minute),
	}}

	meta := &detectMeta{records: map[int64]*metadata.Record{
		100: {PageID: 100, CanonicalID: "Q1", Categories: []string{"Category:Storms"}},
		200: {PageID: 200, CanonicalID: "Q2", Categories: []string{"Category:Storms", "Category:2026 disasters"}},
	}}
	service := NewService(store, meta, Options{Method: spikes.MethodRobustZ}, zerolog.Nop())

	detected, err := service.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if detected != 1 {
		t.Fatalf("detected = %d, want 1", detected)
	}

	event := store.inserted[0]
	if event.Key != "hurricane" || event.Kind != "term" {
		t.Fatalf("event = %+v", event)
	}
	if !event.WindowStart.Equal(lastHour) || !event.WindowEnd.Equal(lastHour.Add(time.Hour)) {
		t.Fatalf("window = %v to %v", event.WindowStart, event.WindowEnd)
	}
	// Only complete hours are scored; the window never reaches into the
	// still-filling hour.
	if event.WindowEnd.After(now) {
		t.Fatalf("window end %v is in the future (now %v)", event.WindowEnd, now)
	}
	if event.Score < spikes.DefaultRobustZThreshold {
		t.Fatalf("score = %f, below threshold", event.Score)
	}
	if event.Direction != "up" {
		t.Fatalf("direction = %q, want up", event.Direction)
	}

	var evidence spikes.Evidence
	if err := json.Unmarshal(event.Evidence, &evidence); err != nil {
		t.Fatalf("decode evidence: %v", err)
	}
	if len(evidence.Pages) != 2 || evidence.Pages[0] != "100" {
		t.Fatalf("evidence pages = %v", evidence.Pages)
	}
	if evidence.EditorCount != 3 {
		t.Fatalf("editor count = %d", evidence.EditorCount)
	}
	if evidence.Intensity == nil || evidence.Intensity.Score <= 0 {
		t.Fatalf("intensity = %+v", evidence.Intensity)
	}
	// Three distinct categories across the two pages.
	if evidence.Intensity.CategorySignal <= evidence.Intensity.CanonicalSignal {
		t.Fatalf("category signal %f not above canonical signal %f",
			evidence.Intensity.CategorySignal, evidence.Intensity.CanonicalSignal)
	}
	wantDiff := "https://en.wikipedia.org/w/index.php?diff=11&oldid=10"
	if len(evidence.DiffLinks) != 1 || evidence.DiffLinks[0] != wantDiff {
		t.Fatalf("diff links = %v", evidence.DiffLinks)
	}
}

type stubResolver struct {
	refs map[int64][2]string
}

func (r *stubResolver) PageRef(_ context.Context, pageID int64) (string, string, error) {
	ref, ok := r.refs[pageID]
	if !ok {
		return "", "", nil
	}
	return ref[0], ref[1], nil
}

func TestRunOnceAttachesSnippet(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 30, 0, 0, time.UTC)
	globaltime.SetMockTime(now)
	defer globaltime.ResetTime()
	lastHour := time.Date(2026, 8, 28, 11, 0, 0, 0, time.UTC)

	store := &detectStore{rows: steadyHistory(t, "hurricane", lastHour, 20, 2)}
	store.rows = append(store.rows, bucketRow(t, "hurricane", lastHour, 80, 10,
		[]string{"100", "200"}, []string{"editor-a"}))

	resolver := &stubResolver{refs: map[int64][2]string{
		// First page has no URL on record; the fetcher moves on.
		200: {"Hurricane Example", "https://en.wikipedia.org/wiki/Hurricane_Example"},
	}}
	var fetchedURL string
	service := NewService(store, &detectMeta{}, Options{}, zerolog.Nop()).
		WithSnippets(resolver, func(_ context.Context, pageURL, _ string) (string, error) {
			fetchedURL = pageURL
			return "A storm formed in the Atlantic.", nil
		})

	detected, err := service.RunOnce(context.Background())
	if err != nil || detected != 1 {
		t.Fatalf("RunOnce = %d, %v", detected, err)
	}

	var evidence spikes.Evidence
	if err := json.Unmarshal(store.inserted[0].Evidence, &evidence); err != nil {
		t.Fatalf("decode evidence: %v", err)
	}
	if evidence.Snippet != "A storm formed in the Atlantic." {
		t.Fatalf("snippet = %q", evidence.Snippet)
	}
	if fetchedURL != "https://en.wikipedia.org/wiki/Hurricane_Example" {
		t.Fatalf("fetched url = %q", fetchedURL)
	}
}

func TestRunOnceSkipsQuietTerms(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 30, 0, 0, time.UTC)
	globaltime.SetMockTime(now)
	defer globaltime.ResetTime()
	lastHour := time.Date(2026, 8, 28, 11, 0, 0, 0, time.UTC)

	// Steady history including a normal final hour: no detection.
	rows := steadyHistory(t, "steady", lastHour, 20, 2)
	rows = append(rows, bucketRow(t, "steady", lastHour, 2, 0, []string{"100"}, []string{"editor-a"}))
	store := &detectStore{rows: rows}
	service := NewService(store, &detectMeta{}, Options{}, zerolog.Nop())

	detected, err := service.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if detected != 0 {
		t.Fatalf("steady series flagged: %+v", store.inserted)
	}
}

func TestRunOnceInsufficientHistory(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 30, 0, 0, time.UTC)
	globaltime.SetMockTime(now)
	defer globaltime.ResetTime()
	lastHour := time.Date(2026, 8, 28, 11, 0, 0, 0, time.UTC)

	// Only three days of data against a fourteen-day minimum.
	rows := steadyHistory(t, "young", lastHour, 3, 2)
	rows = append(rows, bucketRow(t, "young", lastHour, 90, 0, []string{"100"}, []string{"editor-a"}))
	store := &detectStore{rows: rows}
	service := NewService(store, &detectMeta{}, Options{}, zerolog.Nop())

	detected, err := service.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("insufficient history errored: %v", err)
	}
	if detected != 0 {
		t.Fatalf("young term detected: %+v", store.inserted)
	}
}

func TestRunOnceEmptyStore(t *testing.T) {
	t.Parallel()

	service := NewService(&detectStore{}, &detectMeta{}, Options{}, zerolog.Nop())
	detected, err := service.RunOnce(context.Background())
	if err != nil || detected != 0 {
		t.Fatalf("empty store = %d, %v", detected, err)
	}
}
