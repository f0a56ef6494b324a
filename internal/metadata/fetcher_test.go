package metadata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/scout/internal/globaltime"
	"horse.fit/scout/internal/resilience"
)

type stubStore struct {
	records map[int64]*Record
	upserts int
}

func newStubStore() *stubStore {
	return &stubStore{records: make(map[int64]*Record)}
}

func (s *stubStore) GetMetadata(_ context.Context, pageID int64) (*Record, error) {
	record, ok := s.records[pageID]
	if !ok {
		return nil, nil
	}
	copied := *record
	return &copied, nil
}

func (s *stubStore) UpsertMetadata(_ context.Context, record Record) error {
	s.upserts++
	s.records[record.PageID] = &record
	return nil
}

func newTestClient(t *testing.T) *resilience.Fetcher {
	t.Helper()

	limiter, err := resilience.NewRateLimiter(100, time.Second)
	if err != nil {
		t.Fatalf("NewRateLimiter: %v", err)
	}
	breaker := resilience.NewCircuitBreaker(5, time.Minute)
	return resilience.NewFetcher(limiter, breaker, zerolog.Nop(), resilience.FetcherOptions{
		MaxRetries: 2,
		Timeout:    5 * time.Second,
	})
}

const pageResponse = `{
	"query": {
		"pages": {
			"42": {
				"categories": [
					{"title": "Category:Living people"},
					{"title": "Category:Politicians"}
				],
				"pageprops": {"wikibase_item": "Q4242"}
			}
		}
	}
}`

func TestGetFetchesAndCaches(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(pageResponse))
	}))
	defer server.Close()

	store := newStubStore()
	fetcher := NewFetcher(store, newTestClient(t), server.URL, 6*time.Hour, zerolog.Nop())

	record, err := fetcher.Get(context.Background(), 42)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if record.CanonicalID != "Q4242" {
		t.Fatalf("canonical id = %q", record.CanonicalID)
	}
	if len(record.Categories) != 2 {
		t.Fatalf("categories = %v", record.Categories)
	}
	if store.upserts != 1 {
		t.Fatalf("upserts = %d, want 1", store.upserts)
	}

	// A second call within the TTL is served from cache.
	if _, err := fetcher.Get(context.Background(), 42); err != nil {
		t.Fatalf("cached Get: %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("external calls = %d, want 1", got)
	}
}

func TestGetRefreshesExpiredRecord(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(pageResponse))
	}))
	defer server.Close()

	store := newStubStore()
	store.records[42] = &Record{
		PageID:      42,
		CanonicalID: "Q-stale",
		Categories:  []string{"Category:Old"},
		FetchedAt:   globaltime.UTC().Add(-7 * time.Hour),
	}

	fetcher := NewFetcher(store, newTestClient(t), server.URL, 6*time.Hour, zerolog.Nop())
	record, err := fetcher.Get(context.Background(), 42)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if record.CanonicalID != "Q4242" {
		t.Fatalf("stale record served past TTL: %+v", record)
	}
	if calls.Load() != 1 {
		t.Fatalf("external calls = %d, want 1", calls.Load())
	}
}

func TestGetCachesEmptyCategories(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"query":{"pages":{"7":{}}}}`))
	}))
	defer server.Close()

	store := newStubStore()
	fetcher := NewFetcher(store, newTestClient(t), server.URL, 6*time.Hour, zerolog.Nop())

	record, err := fetcher.Get(context.Background(), 7)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if record.Categories == nil || len(record.Categories) != 0 {
		t.Fatalf("empty category set not preserved: %#v", record.Categories)
	}

	// No negative caching does not mean re-query: an empty set is a
	// valid cached value.
	if _, err := fetcher.Get(context.Background(), 7); err != nil {
		t.Fatalf("cached Get: %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("external calls = %d, want 1", calls.Load())
	}
}
