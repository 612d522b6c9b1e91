// Package utils provides shared utilities for text, math, and logging.
package utils

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var folder = cases.Fold()

// Fold returns the NFC-normalized, case-folded form of s. Folded strings compare
// equal for "Zürich", "ZÜRICH" and the decomposed "Zürich".
func Fold(s string) string {
	return folder.String(norm.NFC.String(s))
}

// Tokenize splits s into folded word tokens. Letters and digits form tokens;
// everything else separates them. Tokens shorter than minLen runes are dropped.
func Tokenize(s string, minLen int) []string {
	fields := strings.FieldsFunc(Fold(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if utf8.RuneCountInString(f) >= minLen {
			out = append(out, f)
		}
	}
	return out
}

// ContainsWord reports whether the folded token sequence of text contains phrase
// (itself tokenized) as a contiguous run. Matching is on whole tokens only, so
// "admis" does not match inside "inadmissible".
func ContainsWord(text []string, phrase string) bool {
	p := Tokenize(phrase, 1)
	if len(p) == 0 || len(p) > len(text) {
		return false
	}
	for i := 0; i+len(p) <= len(text); i++ {
		match := true
		for j := range p {
			if text[i+j] != p[j] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// Truncate returns s truncated to maxLen runes, with "..." appended if truncated.
// If maxLen is 0 or negative, returns s unchanged.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	r := []rune(s)
	return string(r[:maxLen]) + "..."
}
