// Package spikes scores deviation of observed edit activity against a
// rolling historical baseline.
package spikes

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Point is one observation of a metric time series.
type Point struct {
	Time  time.Time
	Value float64
}

const hoursPerWeek = 7 * 24

// hourOfWeek maps a timestamp to its (Monday-0 weekday, hour) bucket.
func hourOfWeek(t time.Time) int {
	utc := t.UTC()
	weekday := (int(utc.Weekday()) + 6) % 7
	return weekday*24 + utc.Hour()
}

// HourOfWeekBaseline computes the expected value for every input point
// from the median observed in its hour-of-week bucket over a trailing
// window of maxDays. The window must span at least minDays or the
// computation fails. Buckets with no history fall back to the overall
// median of the computed bucket medians.
func HourOfWeekBaseline(points []Point, minDays, maxDays int) ([]float64, error) {
	if len(points) == 0 {
		return nil, fmt.Errorf("no data provided for baseline computation")
	}

	maxTime := points[0].Time
	for _, p := range points[1:] {
		if p.Time.After(maxTime) {
			maxTime = p.Time
		}
	}
	end := maxTime.UTC().Truncate(time.Hour)
	windowStart := end.AddDate(0, 0, -maxDays)

	var window []Point
	for _, p := range points {
		if !p.Time.Before(windowStart) {
			window = append(window, p)
		}
	}
	if len(window) == 0 {
		return nil, fmt.Errorf("not enough data in the trailing window for baseline computation")
	}

	minTS, maxTS := window[0].Time, window[0].Time
	for _, p := range window[1:] {
		if p.Time.Before(minTS) {
			minTS = p.Time
		}
		if p.Time.After(maxTS) {
			maxTS = p.Time
		}
	}
	spanDays := int(maxTS.Sub(minTS).Hours()/24) + 1
	if spanDays < minDays {
		return nil, fmt.Errorf("insufficient history: %d days of data, need %d", spanDays, minDays)
	}

	byBucket := make(map[int][]float64, hoursPerWeek)
	for _, p := range window {
		bucket := hourOfWeek(p.Time)
		byBucket[bucket] = append(byBucket[bucket], p.Value)
	}

	medians := make(map[int]float64, len(byBucket))
	medianValues := make([]float64, 0, len(byBucket))
	for bucket, values := range byBucket {
		m := median(values)
		medians[bucket] = m
		medianValues = append(medianValues, m)
	}
	fallback := median(medianValues)

	baseline := make([]float64, len(points))
	for i, p := range points {
		if m, ok := medians[hourOfWeek(p.Time)]; ok {
			baseline[i] = m
		} else {
			baseline[i] = fallback
		}
	}
	return baseline, nil
}

// median returns the middle value of xs, averaging the two central
// values for even lengths. The input slice is not modified.
func median(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	sorted := make([]float64, len(xs))
	copy(sorted, xs)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
