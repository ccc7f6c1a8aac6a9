package search

import (
	"strings"

	"brickkit/internal/analysis"
	"brickkit/internal/catalog"
)

// Strategy labels in planning order.
const (
	LabelExactPrompt      = "exact_prompt"
	LabelCoreConcept      = "core_concept"
	LabelBroaderCategory  = "broader_category"
	LabelEnhancedKeywords = "enhanced_keywords"
)

var themeQueries = map[string]string{
	"batmobile":   "batmobile batman",
	"race_car":    "race car racing formula",
	"sports_car":  "sports car supercar",
	"regular_car": "car automobile vehicle",
	"train":       "train locomotive railway",
}

var broaderCategories = map[string]string{
	"race_car":    "vehicle",
	"sports_car":  "vehicle",
	"regular_car": "vehicle",
	"truck":       "vehicle",
	"bus":         "vehicle",
	"motorcycle":  "vehicle",
	"train":       "vehicle",
	"fighter_jet": "aircraft",
	"airplane":    "aircraft",
	"helicopter":  "aircraft",
	"spaceship":   "space",
	"house":       "building",
	"castle":      "building",
	"building":    "building",
	"robot":       "mechanical",
	"ship":        "watercraft",
	"tank":        "military",
}

// Plan returns the ordered query strategies for a request. The first entry
// is always the original text under LabelExactPrompt.
func Plan(req catalog.Request, original string) []catalog.Strategy {
	strategies := []catalog.Strategy{{Label: LabelExactPrompt, Query: original}}

	if analysis.IsSimple(original, req) {
		if query, ok := themeQueries[req.Theme]; ok {
			strategies = append(strategies, catalog.Strategy{Label: req.Theme + "_specific", Query: query})
		}
	}

	if core := CoreConcept(original); core != "" {
		strategies = append(strategies, catalog.Strategy{Label: LabelCoreConcept, Query: core})
	}

	if category := BroaderCategory(req.Theme); category != "" && category != req.Theme && !queried(strategies, category) {
		strategies = append(strategies, catalog.Strategy{Label: LabelBroaderCategory, Query: category})
	}

	if len(req.Keywords) > 0 {
		keywords := req.Keywords
		if len(keywords) > 3 {
			keywords = keywords[:3]
		}
		strategies = append(strategies, catalog.Strategy{Label: LabelEnhancedKeywords, Query: strings.Join(keywords, " ")})
	}
	return strategies
}

// CoreConcept returns up to three subject words from the original text.
func CoreConcept(original string) string {
	tokens := analysis.CoreTokens(original)
	if len(tokens) > 3 {
		tokens = tokens[:3]
	}
	return strings.Join(tokens, " ")
}

// BroaderCategory maps a theme to its broader catalogue category, or "" when
// the theme has none.
func BroaderCategory(theme string) string {
	return broaderCategories[theme]
}

// queried reports whether term already appears as a token of an earlier query.
func queried(strategies []catalog.Strategy, term string) bool {
	for _, strategy := range strategies {
		for _, token := range strings.Fields(strings.ToLower(strategy.Query)) {
			if token == term {
				return true
			}
		}
	}
	return false
}
