package spikes

import (
	"fmt"
	"math"
)

// Scoring methods for vocabulary frequency shifts.
const (
	TermMethodLogOdds = "log_odds"
	TermMethodRatio   = "ratio"
)

// Defaults for term scoring.
const (
	DefaultTermPrior      = 0.5
	DefaultTermMinSupport = 5
)

// TermScores compares a current-period count map against a baseline
// count map. Terms whose combined support is below minSupport are
// skipped. Probabilities are Laplace-smoothed with the given prior over
// the union vocabulary, so a term absent from one side still scores.
func TermScores(current, baseline map[string]int, method string, prior float64, minSupport int) (map[string]float64, error) {
	switch method {
	case TermMethodLogOdds, TermMethodRatio:
	default:
		return nil, fmt.Errorf("unknown term spike method: %q", method)
	}

	vocab := make(map[string]struct{}, len(current)+len(baseline))
	totalCurrent := 0
	for term, count := range current {
		vocab[term] = struct{}{}
		totalCurrent += count
	}
	totalBaseline := 0
	for term, count := range baseline {
		vocab[term] = struct{}{}
		totalBaseline += count
	}
	vocabSize := len(vocab)
	if vocabSize == 0 {
		vocabSize = 1
	}

	scores := make(map[string]float64)
	for term := range vocab {
		cur := current[term]
		base := baseline[term]
		if cur+base < minSupport {
			continue
		}

		currentProb := (float64(cur) + prior) / (float64(totalCurrent) + prior*float64(vocabSize))
		baselineProb := (float64(base) + prior) / (float64(totalBaseline) + prior*float64(vocabSize))

		switch method {
		case TermMethodLogOdds:
			scores[term] = logit(currentProb) - logit(baselineProb)
		case TermMethodRatio:
			scores[term] = math.Log(currentProb / baselineProb)
		}
	}
	return scores, nil
}

func logit(p float64) float64 {
	return math.Log(p / (1 - p))
}
