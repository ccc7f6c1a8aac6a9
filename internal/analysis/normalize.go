package analysis

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Normalize applies NFKC normalization, drops control characters and
// collapses runs of whitespace to single spaces.
func Normalize(text string) string {
	normed := norm.NFKC.String(text)
	normed = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return ' '
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, normed)
	return strings.Join(strings.Fields(normed), " ")
}

// Tokens lowercases text and splits it on whitespace, trimming punctuation
// from token edges. Inner hyphens survive so "sci-fi" and "f-16" stay whole.
func Tokens(text string) []string {
	fields := strings.Fields(strings.ToLower(Normalize(text)))
	out := make([]string, 0, len(fields))
	for _, field := range fields {
		token := strings.TrimFunc(field, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if token != "" {
			out = append(out, token)
		}
	}
	return out
}

// MeaningfulTokens returns tokens longer than two characters that are not
// stopwords.
func MeaningfulTokens(text string) []string {
	tokens := Tokens(text)
	out := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if len(token) <= 2 {
			continue
		}
		if _, stop := stopwords[token]; stop {
			continue
		}
		out = append(out, token)
	}
	return out
}

// CoreTokens returns the meaningful tokens that name a subject: action
// verbs, size words and colors are removed.
func CoreTokens(text string) []string {
	meaningful := MeaningfulTokens(text)
	out := make([]string, 0, len(meaningful))
	for _, token := range meaningful {
		if _, skip := actionWords[token]; skip {
			continue
		}
		if _, skip := sizeWords[token]; skip {
			continue
		}
		if isColor(token) {
			continue
		}
		out = append(out, token)
	}
	return out
}

func isColor(token string) bool {
	for _, color := range colorWords {
		if token == color {
			return true
		}
	}
	return false
}

func lowered(text string) string {
	return strings.ToLower(Normalize(text))
}
