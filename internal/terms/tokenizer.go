// Package terms extracts vocabulary candidates from diff text and keeps
// time-bucketed occurrence counters for them.
package terms

import (
	"regexp"
	"strings"
	"unicode"
)

// wordRE matches contiguous alphanumeric runs, optionally with one
// internal apostrophe ("don't", "O'Brien").
var wordRE = regexp.MustCompile(`[A-Za-z0-9]+(?:'[A-Za-z0-9]+)?`)

// Tokenize splits text into word-like tokens, preserving case.
func Tokenize(text string) []string {
	return wordRE.FindAllString(text, -1)
}

// TokenizeLower splits text into lower-cased tokens for n-gram counting.
func TokenizeLower(text string) []string {
	tokens := Tokenize(text)
	for i, token := range tokens {
		tokens[i] = strings.ToLower(token)
	}
	return tokens
}

func isCapitalized(token string) bool {
	for _, r := range token {
		return unicode.IsUpper(r)
	}
	return false
}

// CapitalizedPhrases joins maximal runs of capitalized tokens into
// proper-noun phrase candidates: ["New","York","Times","said"] yields
// ["New York Times"].
func CapitalizedPhrases(tokens []string) []string {
	var phrases []string
	var current []string
	for _, token := range tokens {
		if isCapitalized(token) {
			current = append(current, token)
			continue
		}
		if len(current) > 0 {
			phrases = append(phrases, strings.Join(current, " "))
			current = nil
		}
	}
	if len(current) > 0 {
		phrases = append(phrases, strings.Join(current, " "))
	}
	return phrases
}
