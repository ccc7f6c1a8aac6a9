package search

import (
	"strings"

	"brickkit/internal/catalog"
)

var (
	raceWords  = []string{"race", "racing", "formula", "f1", "nascar", "speed"}
	trainWords = []string{"train", "railroad", "railway", "locomotive"}
	carWords   = []string{"car", "automobile", "vehicle"}
	sportWords = []string{"sports", "supercar", "ferrari", "lamborghini", "porsche"}
)

// irrelevantPatterns lists name fragments that disqualify a candidate for a
// theme in semantic mode.
var irrelevantPatterns = map[string][]string{
	"race_car": {"train", "railroad", "railway", "locomotive", "house", "building", "castle"},
	"train":    {"race", "racing", "sports car", "ferrari", "lamborghini"},
	"aircraft": {"car", "truck", "ship", "boat", "house", "building"},
	"space":    {"car", "truck", "house", "building", "train"},
	"building": {"car", "truck", "aircraft", "spaceship", "train"},
}

// Score rates how well a candidate matches a request. Requests carrying
// related concepts or search hints use semantic weights; others use direct
// theme rules. The result is always within [0,1].
func Score(req catalog.Request, c catalog.Candidate) float64 {
	name := strings.ToLower(c.DisplayName)
	category := strings.ToLower(c.Category)

	var score float64
	if req.Semantic() {
		score = semanticScore(req, name)
	} else {
		score = directScore(req, name, category)
	}
	return clamp(score)
}

func directScore(req catalog.Request, name, category string) float64 {
	theme := strings.ToLower(req.Theme)
	var score float64

	switch theme {
	case "race_car":
		switch {
		case containsAny(name, raceWords):
			score += 0.8
		case containsAny(name, trainWords):
			score -= 0.5
		case strings.Contains(name, "car"):
			score += 0.3
		}
	case "regular_car":
		if containsAny(name, carWords) {
			if containsAny(name, trainWords) {
				score -= 0.3
			} else {
				score += 0.6
			}
		}
	case "train":
		switch {
		case containsAny(name, trainWords):
			score += 0.8
		case strings.Contains(name, "car") && !containsAny(name, []string{"race", "racing", "sports"}):
			score += 0.4
		}
	case "sports_car":
		switch {
		case containsAny(name, sportWords):
			score += 0.8
		case strings.Contains(name, "car"):
			score += 0.4
		}
	default:
		if theme != "" && (strings.Contains(name, theme) || strings.Contains(category, theme)) {
			score += 0.5
		}
	}

	score += 0.3 * float64(countMatches(name, req.Colors))
	score += 0.2 * float64(countMatches(name, req.Constraints))
	score += 0.1 * float64(countMatches(name, req.Keywords))

	switch {
	case theme == "race_car" && strings.Contains(name, "race car"):
		score += 0.2
	case theme == "sports_car" && strings.Contains(name, "sports car"):
		score += 0.2
	}
	return score
}

func semanticScore(req catalog.Request, name string) float64 {
	theme := strings.ToLower(req.Theme)
	var score float64

	if theme != "" && theme != catalog.GeneralTheme && strings.Contains(name, theme) {
		score += 0.4
	}
	score += 0.3 * float64(countMatches(name, req.Colors))
	score += 0.2 * float64(countMatches(name, req.Constraints))

	keywords := countMatches(name, req.Keywords)
	score += 0.15 * float64(keywords)
	if keywords >= 2 {
		score += 0.1
	}

	concepts := countMatches(name, req.RelatedConcepts)
	score += 0.2 * float64(concepts)
	if concepts >= 2 {
		score += 0.15
	}

	hints := countMatches(name, req.SearchHints)
	score += 0.1 * float64(hints)
	if hints >= 3 {
		score += 0.1
	}

	if containsAny(name, irrelevantPatterns[theme]) {
		score -= 0.3
	}
	return score
}

func countMatches(name string, terms []string) int {
	n := 0
	for _, term := range terms {
		term = strings.ToLower(term)
		if term != "" && strings.Contains(name, term) {
			n++
		}
	}
	return n
}

func containsAny(name string, words []string) bool {
	for _, word := range words {
		if strings.Contains(name, word) {
			return true
		}
	}
	return false
}

func clamp(score float64) float64 {
	switch {
	case score < 0:
		return 0
	case score > 1:
		return 1
	default:
		return score
	}
}
