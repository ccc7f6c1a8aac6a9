package analysis

import (
	"strings"

	"brickkit/internal/catalog"
)

// Enhance expands a direct analysis with the built-in concept table. Every
// concept present in the text contributes its related terms to both the
// related concepts and the search hints, and the keyword list is extended
// with them and de-duplicated.
func Enhance(text string, direct catalog.Request) catalog.Request {
	lower := lowered(text)

	var related []string
	for _, mapping := range conceptMappings {
		if strings.Contains(lower, mapping.concept) {
			related = append(related, mapping.related...)
		}
	}

	keywords := make([]string, 0, len(direct.Keywords)+len(related))
	keywords = append(keywords, direct.Keywords...)
	keywords = append(keywords, related...)

	out := direct.Clone()
	out.Keywords = filterKeywords(keywords)
	out.RelatedConcepts = related
	out.SearchHints = append([]string(nil), related...)
	return out
}

func filterKeywords(words []string) []string {
	seen := make(map[string]struct{}, len(words))
	out := make([]string, 0, len(words))
	for _, word := range words {
		word = strings.ToLower(strings.TrimSpace(word))
		if len(word) <= 2 {
			continue
		}
		if _, stop := stopwords[word]; stop {
			continue
		}
		if _, action := actionWords[word]; action {
			continue
		}
		if _, dup := seen[word]; dup {
			continue
		}
		seen[word] = struct{}{}
		out = append(out, word)
	}
	return out
}
