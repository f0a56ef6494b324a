package spikes

import "math"

// IntensityWeights weigh the metadata signals feeding the
// topic-intensity score.
type IntensityWeights struct {
	Categories    float64
	CanonicalIDs  float64
	Reverts       float64
	DistinctPages float64
}

// DefaultIntensityWeights matches the production weighting.
func DefaultIntensityWeights() IntensityWeights {
	return IntensityWeights{
		Categories:    0.35,
		CanonicalIDs:  0.35,
		Reverts:       0.2,
		DistinctPages: 0.1,
	}
}

// Intensity is the topic-intensity score with its per-signal breakdown.
// It enriches spike evidence; it is never a standalone trigger.
type Intensity struct {
	Score               float64 `json:"score"`
	CategorySignal      float64 `json:"category_signal"`
	CanonicalSignal     float64 `json:"canonical_signal"`
	RevertSignal        float64 `json:"revert_signal"`
	DistinctPagesSignal float64 `json:"distinct_pages_signal"`
}

// TopicIntensity computes a weighted sum of log1p-damped metadata
// counts for a candidate topic.
func TopicIntensity(categories, canonicalIDs, revertTags []string, distinctPages int, weights IntensityWeights) Intensity {
	result := Intensity{
		CategorySignal:      math.Log1p(float64(len(categories))),
		CanonicalSignal:     math.Log1p(float64(len(canonicalIDs))),
		RevertSignal:        math.Log1p(float64(len(revertTags))),
		DistinctPagesSignal: math.Log1p(float64(distinctPages)),
	}
	result.Score = weights.Categories*result.CategorySignal +
		weights.CanonicalIDs*result.CanonicalSignal +
		weights.Reverts*result.RevertSignal +
		weights.DistinctPages*result.DistinctPagesSignal
	return result
}
