package spikes

import (
	"math"
	"testing"
)

func TestTermScoresSupportBoundary(t *testing.T) {
	t.Parallel()

	current := map[string]int{"alpha": 20, "beta": 2}
	baseline := map[string]int{"alpha": 5, "beta": 1, "gamma": 30}

	scores, err := TermScores(current, baseline, TermMethodLogOdds, DefaultTermPrior, 3)
	if err != nil {
		t.Fatalf("TermScores: %v", err)
	}

	alpha, ok := scores["alpha"]
	if !ok || alpha <= 0 {
		t.Fatalf("alpha should score positive (spiking up), got %v present=%v", alpha, ok)
	}
	// beta's combined support is exactly 3; the cutoff is strictly
	// less-than, so it stays in.
	if _, ok := scores["beta"]; !ok {
		t.Fatalf("beta at exact min_support should be scored")
	}
	// gamma is absent from the current period but still scored via
	// smoothing, and negative.
	gamma, ok := scores["gamma"]
	if !ok || gamma >= 0 {
		t.Fatalf("gamma should score negative, got %v present=%v", gamma, ok)
	}
}

func TestTermScoresSkipsLowSupport(t *testing.T) {
	t.Parallel()

	scores, err := TermScores(
		map[string]int{"rare": 1},
		map[string]int{"rare": 1},
		TermMethodLogOdds, DefaultTermPrior, DefaultTermMinSupport,
	)
	if err != nil {
		t.Fatalf("TermScores: %v", err)
	}
	if len(scores) != 0 {
		t.Fatalf("low-support term scored: %v", scores)
	}
}

func TestTermScoresRatioMethod(t *testing.T) {
	t.Parallel()

	current := map[string]int{"surge": 10}
	baseline := map[string]int{"surge": 10}

	scores, err := TermScores(current, baseline, TermMethodRatio, DefaultTermPrior, 5)
	if err != nil {
		t.Fatalf("TermScores: %v", err)
	}
	// Identical distributions: the log probability ratio is zero.
	if got := scores["surge"]; math.Abs(got) > 1e-12 {
		t.Fatalf("ratio score for unchanged term = %v, want 0", got)
	}
}

func TestTermScoresUnknownMethod(t *testing.T) {
	t.Parallel()

	if _, err := TermScores(nil, nil, "entrails", DefaultTermPrior, 5); err == nil {
		t.Fatalf("expected error for unknown method")
	}
}

func TestTermScoresEmptyInputs(t *testing.T) {
	t.Parallel()

	scores, err := TermScores(nil, nil, TermMethodLogOdds, DefaultTermPrior, 5)
	if err != nil {
		t.Fatalf("TermScores: %v", err)
	}
	if len(scores) != 0 {
		t.Fatalf("expected empty result, got %v", scores)
	}
}

func TestTopicIntensityWeighting(t *testing.T) {
	t.Parallel()

	got := TopicIntensity(
		[]string{"Category:Politics", "Category:Elections"},
		[]string{"Q1"},
		nil,
		3,
		DefaultIntensityWeights(),
	)

	want := 0.35*math.Log1p(2) + 0.35*math.Log1p(1) + 0.1*math.Log1p(3)
	if math.Abs(got.Score-want) > 1e-12 {
		t.Fatalf("intensity score = %v, want %v", got.Score, want)
	}
	if got.RevertSignal != 0 {
		t.Fatalf("revert signal = %v, want 0", got.RevertSignal)
	}
}
