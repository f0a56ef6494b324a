package spikes

import (
	"fmt"
	"math"
)

// Scoring methods for point series.
const (
	MethodRobustZ = "robust_z"
	MethodEWMA    = "ewma"
)

// Default thresholds per method.
const (
	DefaultRobustZThreshold = 3.5
	DefaultEWMAThreshold    = 3.0
	DefaultEWMASpan         = 24
)

// Scores computes per-point spike scores over the residuals
// observed[i] - baseline[i].
//
// robust_z scales residual deviation by 1.4826*MAD, falling back to the
// population standard deviation when the MAD is zero, and to 1.0 when
// that is zero as well. ewma scales by exponentially-weighted moving
// statistics with the given span; an undefined or zero moving standard
// deviation is floored to 1.0.
func Scores(observed, baseline []float64, method string, span int) ([]float64, error) {
	if len(observed) != len(baseline) {
		return nil, fmt.Errorf("observed and baseline lengths differ: %d vs %d", len(observed), len(baseline))
	}
	residuals := make([]float64, len(observed))
	for i := range observed {
		residuals[i] = observed[i] - baseline[i]
	}

	switch method {
	case MethodRobustZ:
		return robustZScores(residuals), nil
	case MethodEWMA:
		if span < 1 {
			span = DefaultEWMASpan
		}
		return ewmaScores(residuals, span), nil
	default:
		return nil, fmt.Errorf("unknown spike score method: %q", method)
	}
}

// Flags marks every score whose magnitude reaches the method threshold.
func Flags(scores []float64, method string, zThreshold, ewmaThreshold float64) []bool {
	threshold := zThreshold
	if method == MethodEWMA {
		threshold = ewmaThreshold
	}
	flags := make([]bool, len(scores))
	for i, score := range scores {
		flags[i] = math.Abs(score) >= threshold
	}
	return flags
}

func robustZScores(residuals []float64) []float64 {
	med := median(residuals)
	deviations := make([]float64, len(residuals))
	for i, r := range residuals {
		deviations[i] = math.Abs(r - med)
	}
	mad := median(deviations)

	scale := 1.4826 * mad
	if mad <= 0 {
		scale = populationStd(residuals)
	}
	if scale == 0 {
		scale = 1.0
	}

	scores := make([]float64, len(residuals))
	for i, r := range residuals {
		scores[i] = (r - med) / scale
	}
	return scores
}

// ewmaScores uses the adjust=false recursion: the moving mean and
// biased variance update in place, and the variance is bias-corrected
// by the accumulated squared weight mass.
func ewmaScores(residuals []float64, span int) []float64 {
	alpha := 2.0 / (float64(span) + 1.0)

	scores := make([]float64, len(residuals))
	var mean, biasedVar float64
	sqWeights := 1.0
	for i, r := range residuals {
		if i == 0 {
			mean = r
			scores[i] = 0
			continue
		}
		delta := r - mean
		biasedVar = (1 - alpha) * (biasedVar + alpha*delta*delta)
		mean += alpha * delta
		sqWeights = (1-alpha)*(1-alpha)*sqWeights + alpha*alpha

		std := 1.0
		if denom := 1 - sqWeights; denom > 0 {
			if v := biasedVar / denom; v > 0 {
				std = math.Sqrt(v)
			}
		}
		scores[i] = (r - mean) / std
	}
	return scores
}

func populationStd(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))

	var sq float64
	for _, x := range xs {
		sq += (x - mean) * (x - mean)
	}
	return math.Sqrt(sq / float64(len(xs)))
}
