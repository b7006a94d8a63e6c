package pipeline

import (
	"strings"
	"unicode"
)

// Tokenize splits recognized text into search tokens: whitespace-separated
// words, lowercased, with punctuation stripped. Words that are nothing but
// punctuation vanish entirely.
func Tokenize(text string) []string {
	fields := strings.Fields(text)
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		t := strings.Map(func(r rune) rune {
			if unicode.IsPunct(r) {
				return -1
			}
			return unicode.ToLower(r)
		}, f)
		if t != "" {
			tokens = append(tokens, t)
		}
	}
	return tokens
}
