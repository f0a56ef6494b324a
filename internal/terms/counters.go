package terms

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// BucketStats accumulates occurrence deltas for one (bucket, term)
// cell. Counts only grow within a bucket once written.
type BucketStats struct {
	Added   int
	Removed int
	Pages   map[string]struct{}
	Editors map[string]struct{}
}

func newBucketStats() *BucketStats {
	return &BucketStats{
		Pages:   make(map[string]struct{}),
		Editors: make(map[string]struct{}),
	}
}

func (s *BucketStats) record(deltaAdded, deltaRemoved int, pageID, editorID string) {
	s.Added += deltaAdded
	s.Removed += deltaRemoved
	if pageID != "" {
		s.Pages[pageID] = struct{}{}
	}
	if editorID != "" {
		s.Editors[editorID] = struct{}{}
	}
}

// WindowStats is a derived aggregate over a trailing window. It is
// recomputed on demand, never stored.
type WindowStats struct {
	Term    string
	Added   int
	Removed int
	Pages   map[string]struct{}
	Editors map[string]struct{}
}

// CounterStore buckets term occurrence deltas by fixed-width time
// windows keyed by bucket start. Safe for concurrent writers.
type CounterStore struct {
	mu          sync.RWMutex
	bucketWidth time.Duration
	bucketSecs  int64
	table       map[int64]map[string]*BucketStats
}

// NewCounterStore rejects a non-positive or sub-second bucket width at
// construction; a bad width is a configuration error, not a runtime one.
func NewCounterStore(bucketWidth time.Duration) (*CounterStore, error) {
	secs := int64(bucketWidth / time.Second)
	if secs <= 0 || bucketWidth%time.Second != 0 {
		return nil, fmt.Errorf("bucket width must be a positive whole number of seconds, got %s", bucketWidth)
	}
	return &CounterStore{
		bucketWidth: bucketWidth,
		bucketSecs:  secs,
		table:       make(map[int64]map[string]*BucketStats),
	}, nil
}

// BucketStart floors a timestamp to its bucket boundary using integer
// epoch-second arithmetic, so boundaries are stable across time zones
// and immune to floating-point drift.
func (c *CounterStore) BucketStart(ts time.Time) time.Time {
	epoch := ts.Unix()
	return time.Unix(epoch-epoch%c.bucketSecs, 0).UTC()
}

// AddTerms records one occurrence per listed term into the bucket
// containing ts, attributing the contributing page and editor.
func (c *CounterStore) AddTerms(added, removed []string, pageID, editorID string, ts time.Time) {
	bucket := c.BucketStart(ts).Unix()

	c.mu.Lock()
	defer c.mu.Unlock()

	cells, ok := c.table[bucket]
	if !ok {
		cells = make(map[string]*BucketStats)
		c.table[bucket] = cells
	}
	for _, term := range added {
		stats, ok := cells[term]
		if !ok {
			stats = newBucketStats()
			cells[term] = stats
		}
		stats.record(1, 0, pageID, editorID)
	}
	for _, term := range removed {
		stats, ok := cells[term]
		if !ok {
			stats = newBucketStats()
			cells[term] = stats
		}
		stats.record(0, 1, pageID, editorID)
	}
}

// WindowStats sums counts and unions page/editor sets over every bucket
// whose start falls within [end-window, end].
func (c *CounterStore) WindowStats(term string, end time.Time, window time.Duration) WindowStats {
	start := end.Add(-window).Unix()
	endEpoch := end.Unix()

	result := WindowStats{
		Term:    term,
		Pages:   make(map[string]struct{}),
		Editors: make(map[string]struct{}),
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	for bucket, cells := range c.table {
		if bucket < start || bucket > endEpoch {
			continue
		}
		stats, ok := cells[term]
		if !ok {
			continue
		}
		result.Added += stats.Added
		result.Removed += stats.Removed
		for page := range stats.Pages {
			result.Pages[page] = struct{}{}
		}
		for editor := range stats.Editors {
			result.Editors[editor] = struct{}{}
		}
	}
	return result
}

// Rollups returns the standard trailing horizons for a term.
func (c *CounterStore) Rollups(term string, now time.Time) map[string]WindowStats {
	return map[string]WindowStats{
		"24h": c.WindowStats(term, now, 24*time.Hour),
		"7d":  c.WindowStats(term, now, 7*24*time.Hour),
		"30d": c.WindowStats(term, now, 30*24*time.Hour),
	}
}

// BucketRow is the persistable form of one (bucket, term) cell.
type BucketRow struct {
	Term        string
	BucketStart time.Time
	Added       int
	Removed     int
	Pages       []string
	Editors     []string
}

// Snapshot exports every cell, ordered by bucket then term.
func (c *CounterStore) Snapshot() []BucketRow {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var rows []BucketRow
	for bucket, cells := range c.table {
		start := time.Unix(bucket, 0).UTC()
		for term, stats := range cells {
			rows = append(rows, BucketRow{
				Term:        term,
				BucketStart: start,
				Added:       stats.Added,
				Removed:     stats.Removed,
				Pages:       sortedKeys(stats.Pages),
				Editors:     sortedKeys(stats.Editors),
			})
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].BucketStart.Equal(rows[j].BucketStart) {
			return rows[i].BucketStart.Before(rows[j].BucketStart)
		}
		return rows[i].Term < rows[j].Term
	})
	return rows
}

// LoadRow replaces the cell for (row.Term, row.BucketStart), used to
// warm the store from persisted buckets at startup.
func (c *CounterStore) LoadRow(row BucketRow) {
	bucket := c.BucketStart(row.BucketStart).Unix()

	c.mu.Lock()
	defer c.mu.Unlock()

	cells, ok := c.table[bucket]
	if !ok {
		cells = make(map[string]*BucketStats)
		c.table[bucket] = cells
	}
	stats := newBucketStats()
	stats.Added = row.Added
	stats.Removed = row.Removed
	for _, page := range row.Pages {
		stats.Pages[page] = struct{}{}
	}
	for _, editor := range row.Editors {
		stats.Editors[editor] = struct{}{}
	}
	cells[row.Term] = stats
}

// Prune drops every bucket that starts before the cutoff.
func (c *CounterStore) Prune(before time.Time) int {
	cutoff := before.Unix()

	c.mu.Lock()
	defer c.mu.Unlock()

	dropped := 0
	for bucket := range c.table {
		if bucket < cutoff {
			delete(c.table, bucket)
			dropped++
		}
	}
	return dropped
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Terms lists every known term in sorted order.
func (c *CounterStore) Terms() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, cells := range c.table {
		for term := range cells {
			seen[term] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for term := range seen {
		out = append(out, term)
	}
	sort.Strings(out)
	return out
}
