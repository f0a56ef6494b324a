package terms

import "strings"

// TermCandidates holds the independently extracted vocabulary views of
// one text span.
type TermCandidates struct {
	Tokens      []string
	NGrams      []string
	ProperNouns []string
}

// DiffTerms pairs candidates for the added and removed spans of a
// single diff fragment.
type DiffTerms struct {
	Added   TermCandidates
	Removed TermCandidates
}

// NGrams generates space-joined n-grams for every length in
// [minN, maxN], sliding left to right. Repeated n-grams are kept; they
// count once per occurrence downstream.
func NGrams(tokens []string, minN, maxN int) []string {
	if minN < 1 {
		minN = 1
	}
	var grams []string
	for n := minN; n <= maxN; n++ {
		for start := 0; start+n <= len(tokens); start++ {
			grams = append(grams, strings.Join(tokens[start:start+n], " "))
		}
	}
	return grams
}

// ExtractCandidates tokenizes one span and derives n-grams (normalized,
// lower-cased) plus proper-noun phrases (case-sensitive).
func ExtractCandidates(text string, minN, maxN int) TermCandidates {
	tokens := Tokenize(text)
	lowered := make([]string, len(tokens))
	for i, token := range tokens {
		lowered[i] = strings.ToLower(token)
	}
	return TermCandidates{
		Tokens:      tokens,
		NGrams:      NGrams(lowered, minN, maxN),
		ProperNouns: CapitalizedPhrases(tokens),
	}
}

// ExtractDiffTerms extracts candidates for both spans of a fragment.
func ExtractDiffTerms(addedText, removedText string, minN, maxN int) DiffTerms {
	return DiffTerms{
		Added:   ExtractCandidates(addedText, minN, maxN),
		Removed: ExtractCandidates(removedText, minN, maxN),
	}
}
