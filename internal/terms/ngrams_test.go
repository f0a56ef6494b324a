package terms

import (
	"reflect"
	"testing"
)

func TestNGramsSlidingWindows(t *testing.T) {
	t.Parallel()

	got := NGrams([]string{"a", "b", "c"}, 1, 3)
	want := []string{"a", "b", "c", "a b", "b c", "a b c"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("NGrams mismatch: got %v want %v", got, want)
	}
}

func TestNGramsKeepsRepeats(t *testing.T) {
	t.Parallel()

	got := NGrams([]string{"spam", "spam"}, 1, 2)
	want := []string{"spam", "spam", "spam spam"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("repeated n-grams deduplicated: got %v want %v", got, want)
	}
}

func TestNGramsShortInput(t *testing.T) {
	t.Parallel()

	if got := NGrams([]string{"solo"}, 2, 4); len(got) != 0 {
		t.Fatalf("expected no n-grams for undersized input, got %v", got)
	}
}

func TestExtractCandidates(t *testing.T) {
	t.Parallel()

	candidates := ExtractCandidates("Barack Obama visited Chicago", 1, 2)
	if !reflect.DeepEqual(candidates.Tokens, []string{"Barack", "Obama", "visited", "Chicago"}) {
		t.Fatalf("tokens mismatch: %v", candidates.Tokens)
	}
	if !reflect.DeepEqual(candidates.ProperNouns, []string{"Barack Obama", "Chicago"}) {
		t.Fatalf("proper nouns mismatch: %v", candidates.ProperNouns)
	}
	wantGrams := []string{
		"barack", "obama", "visited", "chicago",
		"barack obama", "obama visited", "visited chicago",
	}
	if !reflect.DeepEqual(candidates.NGrams, wantGrams) {
		t.Fatalf("n-grams mismatch: %v", candidates.NGrams)
	}
}

func TestExtractDiffTermsIndependentSpans(t *testing.T) {
	t.Parallel()

	diff := ExtractDiffTerms("new phrasing", "old phrasing", 1, 1)
	if !reflect.DeepEqual(diff.Added.NGrams, []string{"new", "phrasing"}) {
		t.Fatalf("added span mismatch: %v", diff.Added.NGrams)
	}
	if !reflect.DeepEqual(diff.Removed.NGrams, []string{"old", "phrasing"}) {
		t.Fatalf("removed span mismatch: %v", diff.Removed.NGrams)
	}
}
