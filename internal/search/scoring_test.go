package search_test

import (
	"math"
	"strings"
	"testing"

	"brickkit/internal/catalog"
	"brickkit/internal/search"
)

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestScoreDirectThemeRules(t *testing.T) {
	tests := []struct {
		name     string
		theme    string
		title    string
		category string
		want     float64
	}{
		{"race car hit", "race_car", "Formula One", "Town", 0.8},
		{"race car train penalty clamps", "race_car", "Railway Wagon", "Town", 0},
		{"race car plain car", "race_car", "Family Car", "Town", 0.3},
		{"regular car", "regular_car", "Family Car", "Town", 0.6},
		{"regular car train car", "regular_car", "Train Car", "Town", 0},
		{"train", "train", "Steam Locomotive", "Town", 0.8},
		{"train car wagon", "train", "Tank Car", "Town", 0.4},
		{"train ignores sports car", "train", "Sports Car", "Town", 0},
		{"sports car brand", "sports_car", "Ferrari F40", "Town", 0.8},
		{"sports car plain car", "sports_car", "Family Car", "Town", 0.4},
		{"generic theme in category", "castle", "King's Keep", "Castle", 0.5},
		{"generic theme miss", "castle", "Pirate Ship", "Town", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := catalog.Request{Theme: tt.theme}
			got := search.Score(req, catalog.Candidate{DisplayName: tt.title, Category: tt.category})
			if !approxEqual(got, tt.want) {
				t.Fatalf("Score = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScoreDirectBonuses(t *testing.T) {
	req := catalog.Request{
		Theme:       "race_car",
		Colors:      []string{"blue"},
		Constraints: []string{"mini"},
	}
	// 0.8 theme + 0.2 exact phrase, clamped.
	if got := search.Score(req, catalog.Candidate{DisplayName: "Race Car"}); !approxEqual(got, 1) {
		t.Fatalf("Score = %v, want 1", got)
	}
	// 0.3 plain car + 0.3 color + 0.2 constraint.
	got := search.Score(req, catalog.Candidate{DisplayName: "Blue Mini Car"})
	if !approxEqual(got, 0.8) {
		t.Fatalf("Score = %v, want 0.8", got)
	}
}

func TestScoreSemantic(t *testing.T) {
	req := catalog.Request{
		Theme:           "spaceship",
		Keywords:        []string{"hover", "craft"},
		RelatedConcepts: []string{"sci-fi"},
	}
	// theme 0.4 + keywords 0.3 + multi-keyword 0.1.
	got := search.Score(req, catalog.Candidate{DisplayName: "Hover Craft Spaceship"})
	if !approxEqual(got, 0.8) {
		t.Fatalf("Score = %v, want 0.8", got)
	}

	penalised := catalog.Request{Theme: "building", SearchHints: []string{"tower"}}
	// hint 0.1 minus irrelevant 0.3.
	if got := search.Score(penalised, catalog.Candidate{DisplayName: "Tower Crane Truck"}); got != 0 {
		t.Fatalf("Score = %v, want 0", got)
	}
}

func TestScoreAlwaysInRange(t *testing.T) {
	everything := []string{"red", "car", "race", "train", "space", "building", "a", "e", "r"}
	requests := []catalog.Request{
		{Theme: "race_car", Colors: everything, Constraints: everything, Keywords: everything},
		{Theme: "race_car", RelatedConcepts: everything, SearchHints: everything, Keywords: everything, Colors: everything},
		{Theme: "building", RelatedConcepts: []string{"zzz"}},
		{Theme: "regular_car"},
		{},
	}
	names := []string{
		"",
		"Red Race Car Racing Formula Speed Train Space Building",
		"railway locomotive train house castle",
		strings.Repeat("car ", 200),
		"ÄÖÜ ☃ 🚗",
	}
	for _, req := range requests {
		for _, name := range names {
			got := search.Score(req, catalog.Candidate{DisplayName: name, Category: name})
			if got < 0 || got > 1 || math.IsNaN(got) {
				t.Fatalf("Score(%+v, %q) = %v out of range", req, name, got)
			}
		}
	}
}

func TestScoreDirectMonotoneInKeywords(t *testing.T) {
	candidate := catalog.Candidate{DisplayName: "Small Red Sedan With Roof Rack"}
	words := []string{"small", "red", "sedan", "roof", "rack"}
	prev := -1.0
	for i := 0; i <= len(words); i++ {
		req := catalog.Request{Theme: "truck", Keywords: words[:i]}
		got := search.Score(req, candidate)
		if got < prev {
			t.Fatalf("score decreased from %v to %v after adding keyword %q", prev, got, words[i-1])
		}
		prev = got
	}
}
