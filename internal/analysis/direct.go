package analysis

import (
	"strings"

	"brickkit/internal/catalog"
)

// Direct performs keyword-table analysis of a request.
//
// The theme is the category whose keyword list is longest among those with a
// keyword present in the text; ties keep the earlier category. Colors and
// constraints are substring matches in table order.
func Direct(text string) catalog.Request {
	lower := lowered(text)

	theme := catalog.GeneralTheme
	priority := 0
	for _, category := range themeCategories {
		for _, keyword := range category.keywords {
			if !strings.Contains(lower, keyword) {
				continue
			}
			if len(category.keywords) > priority {
				theme = category.name
				priority = len(category.keywords)
			}
			break
		}
	}

	return catalog.Request{
		Theme:       theme,
		Colors:      containedWords(lower, colorWords),
		Constraints: containedWords(lower, constraintWords),
		Keywords:    MeaningfulTokens(text),
	}
}

// IsSimple reports whether a request can be served by direct analysis and
// theme-specific queries: at most three meaningful tokens, a recognised
// theme, and no complexity trigger words.
func IsSimple(text string, req catalog.Request) bool {
	if len(MeaningfulTokens(text)) > 3 {
		return false
	}
	if req.Theme == "" || req.Theme == catalog.GeneralTheme {
		return false
	}
	return !HasComplexConcept(text)
}

// HasComplexConcept reports whether any complexity trigger appears in text.
func HasComplexConcept(text string) bool {
	lower := lowered(text)
	for _, trigger := range complexityTriggers {
		if strings.Contains(lower, trigger) {
			return true
		}
	}
	return false
}

func containedWords(lower string, words []string) []string {
	var found []string
	for _, word := range words {
		if strings.Contains(lower, word) {
			found = append(found, word)
		}
	}
	return found
}
