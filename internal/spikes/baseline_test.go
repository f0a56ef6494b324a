package spikes

import (
	"testing"
	"time"
)

// A 30-day hourly series whose value is a pure function of the
// hour-of-week bucket has zero variance per bucket, so the baseline
// must reproduce the input exactly.
func TestHourOfWeekBaselineZeroVariance(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC) // a Monday
	var points []Point
	for hour := 0; hour < 30*24; hour++ {
		ts := start.Add(time.Duration(hour) * time.Hour)
		weekday := (int(ts.Weekday()) + 6) % 7
		points = append(points, Point{Time: ts, Value: float64(weekday*24 + ts.Hour())})
	}

	baseline, err := HourOfWeekBaseline(points, 14, 30)
	if err != nil {
		t.Fatalf("HourOfWeekBaseline: %v", err)
	}
	for i, p := range points {
		if baseline[i] != p.Value {
			t.Fatalf("baseline[%d] = %v, want %v at %s", i, baseline[i], p.Value, p.Time)
		}
	}
}

func TestHourOfWeekBaselineRequiresMinDays(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	var points []Point
	for hour := 0; hour < 7*24; hour++ {
		points = append(points, Point{Time: start.Add(time.Duration(hour) * time.Hour), Value: 1})
	}

	if _, err := HourOfWeekBaseline(points, 14, 30); err == nil {
		t.Fatalf("expected failure for a series spanning fewer than 14 days")
	}
}

func TestHourOfWeekBaselineEmptyInput(t *testing.T) {
	t.Parallel()

	if _, err := HourOfWeekBaseline(nil, 14, 30); err == nil {
		t.Fatalf("expected failure for empty input")
	}
}

func TestHourOfWeekBaselineFallbackForUncoveredBucket(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	var points []Point
	// 15 days of morning-only observations: buckets for hours 12-23
	// never receive history.
	for day := 0; day < 15; day++ {
		for hour := 0; hour < 12; hour++ {
			ts := start.AddDate(0, 0, day).Add(time.Duration(hour) * time.Hour)
			points = append(points, Point{Time: ts, Value: 4})
		}
	}
	// One stale afternoon point outside the trailing window; its bucket
	// has no median, so it takes the fallback.
	stale := Point{Time: start.AddDate(0, 0, -40).Add(13 * time.Hour), Value: 99}
	points = append(points, stale)

	baseline, err := HourOfWeekBaseline(points, 14, 30)
	if err != nil {
		t.Fatalf("HourOfWeekBaseline: %v", err)
	}
	last := baseline[len(baseline)-1]
	if last != 4 {
		t.Fatalf("fallback baseline = %v, want overall median 4", last)
	}
}

func TestMedian(t *testing.T) {
	t.Parallel()

	if got := median([]float64{3, 1, 2}); got != 2 {
		t.Fatalf("odd median = %v, want 2", got)
	}
	if got := median([]float64{4, 1, 2, 3}); got != 2.5 {
		t.Fatalf("even median = %v, want 2.5", got)
	}
}
