package terms

import (
	"testing"
	"time"
)

func TestCounterStoreRejectsBadWidth(t *testing.T) {
	t.Parallel()

	if _, err := NewCounterStore(0); err == nil {
		t.Fatalf("expected error for zero bucket width")
	}
	if _, err := NewCounterStore(1500 * time.Millisecond); err == nil {
		t.Fatalf("expected error for fractional-second bucket width")
	}
}

func TestBucketStartIntegerArithmetic(t *testing.T) {
	t.Parallel()

	store, err := NewCounterStore(time.Hour)
	if err != nil {
		t.Fatalf("NewCounterStore: %v", err)
	}

	ts := time.Date(2026, 2, 3, 14, 59, 59, 999_999_999, time.UTC)
	want := time.Date(2026, 2, 3, 14, 0, 0, 0, time.UTC)
	if got := store.BucketStart(ts); !got.Equal(want) {
		t.Fatalf("BucketStart(%s) = %s, want %s", ts, got, want)
	}

	// The boundary belongs to the next bucket.
	boundary := time.Date(2026, 2, 3, 15, 0, 0, 0, time.UTC)
	if got := store.BucketStart(boundary); !got.Equal(boundary) {
		t.Fatalf("BucketStart at boundary = %s, want %s", got, boundary)
	}

	// Zone offsets must not move the bucket: same instant, same bucket.
	offset := ts.In(time.FixedZone("UTC+5", 5*3600))
	if got := store.BucketStart(offset); !got.Equal(want) {
		t.Fatalf("BucketStart with zone offset = %s, want %s", got, want)
	}
}

func TestWindowStatsSumsAndUnions(t *testing.T) {
	t.Parallel()

	store, err := NewCounterStore(time.Hour)
	if err != nil {
		t.Fatalf("NewCounterStore: %v", err)
	}

	base := time.Date(2026, 2, 3, 10, 30, 0, 0, time.UTC)
	store.AddTerms([]string{"election", "election"}, nil, "page-1", "editor-a", base)
	store.AddTerms([]string{"election"}, []string{"election"}, "page-2", "editor-b", base.Add(time.Hour))
	store.AddTerms(nil, []string{"election"}, "page-1", "editor-c", base.Add(2*time.Hour))

	stats := store.WindowStats("election", base.Add(2*time.Hour), 3*time.Hour)
	if stats.Added != 3 || stats.Removed != 2 {
		t.Fatalf("window counts = added %d removed %d, want 3/2", stats.Added, stats.Removed)
	}
	if len(stats.Pages) != 2 {
		t.Fatalf("page union size = %d, want 2", len(stats.Pages))
	}
	if len(stats.Editors) != 3 {
		t.Fatalf("editor union size = %d, want 3", len(stats.Editors))
	}

	// A narrower window excludes the first bucket.
	narrow := store.WindowStats("election", base.Add(2*time.Hour), 90*time.Minute)
	if narrow.Added != 1 || narrow.Removed != 2 {
		t.Fatalf("narrow window = added %d removed %d, want 1/2", narrow.Added, narrow.Removed)
	}
}

func TestRollupsHorizons(t *testing.T) {
	t.Parallel()

	store, err := NewCounterStore(time.Hour)
	if err != nil {
		t.Fatalf("NewCounterStore: %v", err)
	}

	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	store.AddTerms([]string{"ceasefire"}, nil, "p1", "e1", now.Add(-2*time.Hour))
	store.AddTerms([]string{"ceasefire"}, nil, "p2", "e2", now.Add(-3*24*time.Hour))
	store.AddTerms([]string{"ceasefire"}, nil, "p3", "e3", now.Add(-20*24*time.Hour))

	rollups := store.Rollups("ceasefire", now)
	if rollups["24h"].Added != 1 {
		t.Fatalf("24h added = %d, want 1", rollups["24h"].Added)
	}
	if rollups["7d"].Added != 2 {
		t.Fatalf("7d added = %d, want 2", rollups["7d"].Added)
	}
	if rollups["30d"].Added != 3 {
		t.Fatalf("30d added = %d, want 3", rollups["30d"].Added)
	}
}

func TestTermsListing(t *testing.T) {
	t.Parallel()

	store, err := NewCounterStore(time.Hour)
	if err != nil {
		t.Fatalf("NewCounterStore: %v", err)
	}
	now := time.Now()
	store.AddTerms([]string{"beta"}, []string{"alpha"}, "p", "e", now)

	got := store.Terms()
	if len(got) != 2 || got[0] != "alpha" || got[1] != "beta" {
		t.Fatalf("Terms() = %v, want [alpha beta]", got)
	}
}
