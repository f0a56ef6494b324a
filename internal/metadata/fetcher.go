// Package metadata resolves page categories and the canonical
// knowledge-graph identifier, cached with a time-to-live.
package metadata

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/scout/internal/globaltime"
	"horse.fit/scout/internal/resilience"
)

const DefaultTTL = 6 * time.Hour

// Record is the cached metadata for one page. At most one live record
// exists per page_id.
type Record struct {
	PageID      int64
	CanonicalID string
	Categories  []string
	FetchedAt   time.Time
}

// Store is the cache backing the fetcher.
type Store interface {
	GetMetadata(ctx context.Context, pageID int64) (*Record, error)
	UpsertMetadata(ctx context.Context, record Record) error
}

type queryResponse struct {
	Query struct {
		Pages map[string]struct {
			Categories []struct {
				Title string `json:"title"`
			} `json:"categories"`
			PageProps struct {
				WikibaseItem string `json:"wikibase_item"`
			} `json:"pageprops"`
		} `json:"pages"`
	} `json:"query"`
}

type Fetcher struct {
	store   Store
	client  *resilience.Fetcher
	baseURL string
	ttl     time.Duration
	logger  zerolog.Logger
}

func NewFetcher(store Store, client *resilience.Fetcher, baseURL string, ttl time.Duration, logger zerolog.Logger) *Fetcher {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Fetcher{
		store:   store,
		client:  client,
		baseURL: baseURL,
		ttl:     ttl,
		logger:  logger,
	}
}

// Get returns the cached record when it is still fresh, otherwise
// performs one external query and upserts the cache atomically. A page
// with zero categories is cached as an empty set, so it is not
// re-queried within the TTL.
func (f *Fetcher) Get(ctx context.Context, pageID int64) (*Record, error) {
	cached, err := f.store.GetMetadata(ctx, pageID)
	if err != nil {
		return nil, fmt.Errorf("read metadata cache for page %d: %w", pageID, err)
	}
	if cached != nil && globaltime.UTC().Sub(cached.FetchedAt) <= f.ttl {
		return cached, nil
	}

	params := url.Values{
		"action":    {"query"},
		"format":    {"json"},
		"pageids":   {strconv.FormatInt(pageID, 10)},
		"prop":      {"categories|pageprops"},
		"cllimit":   {"max"},
		"redirects": {"1"},
	}
	var resp queryResponse
	if err := f.client.GetJSON(ctx, f.baseURL, params, &resp); err != nil {
		return nil, fmt.Errorf("fetch metadata for page %d: %w", pageID, err)
	}

	record := Record{
		PageID:     pageID,
		Categories: []string{},
		FetchedAt:  globaltime.UTC(),
	}
	if page, ok := resp.Query.Pages[strconv.FormatInt(pageID, 10)]; ok {
		for _, category := range page.Categories {
			if category.Title != "" {
				record.Categories = append(record.Categories, category.Title)
			}
		}
		record.CanonicalID = page.PageProps.WikibaseItem
	}

	if err := f.store.UpsertMetadata(ctx, record); err != nil {
		return nil, fmt.Errorf("upsert metadata for page %d: %w", pageID, err)
	}
	f.logger.Debug().
		Int64("page_id", pageID).
		Int("categories", len(record.Categories)).
		Str("canonical_id", record.CanonicalID).
		Msg("metadata refreshed")
	return &record, nil
}
