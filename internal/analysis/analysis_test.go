package analysis_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"brickkit/internal/analysis"
	"brickkit/internal/catalog"
)

func TestDirectThemeSelection(t *testing.T) {
	tests := []struct {
		text  string
		theme string
	}{
		{"small red car", "regular_car"},
		{"red race car", "race_car"},
		{"batmobile", "batmobile"},
		{"steam locomotive", "train"},
		{"a pirate ship", "ship"},
		{"something odd", catalog.GeneralTheme},
		// "jet" and "plane" both match four-keyword themes; fighter_jet comes first.
		{"jet plane", "fighter_jet"},
	}
	for _, tt := range tests {
		got := analysis.Direct(tt.text)
		if got.Theme != tt.theme {
			t.Errorf("Direct(%q).Theme = %q, want %q", tt.text, got.Theme, tt.theme)
		}
	}
}

func TestDirectExtractsColorsConstraintsKeywords(t *testing.T) {
	got := analysis.Direct("Small RED car with the LEGO wheels")
	want := catalog.Request{
		Theme:       "regular_car",
		Colors:      []string{"red"},
		Constraints: []string{"small"},
		Keywords:    []string{"small", "red", "car", "wheels"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Direct mismatch (-want +got):\n%s", diff)
	}
}

func TestIsSimple(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"small red car", true},
		{"red race car", true},
		{"futuristic car", false},
		{"small red car with big wheels", false},
		{"something odd", false},
	}
	for _, tt := range tests {
		got := analysis.IsSimple(tt.text, analysis.Direct(tt.text))
		if got != tt.want {
			t.Errorf("IsSimple(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestNormalizeAndTokens(t *testing.T) {
	if got := analysis.Normalize("ｒｅｄ\tcar\x00  now"); got != "red car now" {
		t.Fatalf("Normalize = %q", got)
	}
	got := analysis.Tokens("A sci-fi F-16, please!")
	want := []string{"a", "sci-fi", "f-16", "please"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Tokens mismatch (-want +got):\n%s", diff)
	}
}

func TestCoreTokens(t *testing.T) {
	got := analysis.CoreTokens("build a small red car with big wheels and spoiler")
	want := []string{"car", "wheels", "spoiler"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("CoreTokens mismatch (-want +got):\n%s", diff)
	}
}

func TestEnhanceAddsConceptsAndDedupes(t *testing.T) {
	text := "futuristic cyberpunk car"
	got := analysis.Enhance(text, analysis.Direct(text))
	wantRelated := []string{"space", "sci-fi", "cyber", "neon", "tech", "neon", "tech", "cyber", "digital", "matrix"}
	if diff := cmp.Diff(wantRelated, got.RelatedConcepts); diff != "" {
		t.Fatalf("related mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(wantRelated, got.SearchHints); diff != "" {
		t.Fatalf("hints mismatch (-want +got):\n%s", diff)
	}
	wantKeywords := []string{"futuristic", "cyberpunk", "car", "space", "sci-fi", "cyber", "neon", "tech", "digital", "matrix"}
	if diff := cmp.Diff(wantKeywords, got.Keywords); diff != "" {
		t.Fatalf("keywords mismatch (-want +got):\n%s", diff)
	}
	if !got.Semantic() {
		t.Fatal("expected enhanced request to be semantic")
	}
}

type stubSemantic struct {
	req   catalog.Request
	err   error
	calls int
}

func (s *stubSemantic) AnalyzeRequest(_ context.Context, _ string, _ catalog.Request) (catalog.Request, error) {
	s.calls++
	return s.req, s.err
}

func TestAnalyzerSimpleSkipsSemanticSource(t *testing.T) {
	source := &stubSemantic{}
	analyzer := analysis.New(analysis.WithSemanticSource(source))
	req, mode := analyzer.Analyze(context.Background(), "small red car")
	if mode != analysis.ModeDirect {
		t.Fatalf("mode = %s, want direct", mode)
	}
	if req.Theme != "regular_car" {
		t.Fatalf("theme = %q", req.Theme)
	}
	if source.calls != 0 {
		t.Fatalf("semantic source called %d times", source.calls)
	}
}

func TestAnalyzerUsesSemanticSource(t *testing.T) {
	source := &stubSemantic{req: catalog.Request{
		Theme:           "Spaceship",
		Keywords:        []string{"Hover", "car"},
		RelatedConcepts: []string{"hovercraft", "sci-fi"},
	}}
	analyzer := analysis.New(analysis.WithSemanticSource(source))
	req, mode := analyzer.Analyze(context.Background(), "futuristic red hovering car")
	if mode != analysis.ModeSemantic {
		t.Fatalf("mode = %s, want semantic", mode)
	}
	if req.Theme != "spaceship" {
		t.Fatalf("theme = %q", req.Theme)
	}
	if diff := cmp.Diff([]string{"red"}, req.Colors); diff != "" {
		t.Fatalf("colors should fall back to direct analysis (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"hover", "car"}, req.Keywords); diff != "" {
		t.Fatalf("keywords mismatch (-want +got):\n%s", diff)
	}
}

func TestAnalyzerFallsBackToEnhanced(t *testing.T) {
	tests := []struct {
		name   string
		source *stubSemantic
	}{
		{"error", &stubSemantic{err: errors.New("upstream 500")}},
		{"empty", &stubSemantic{}},
		{"blank entry", &stubSemantic{req: catalog.Request{Theme: "car", Keywords: []string{" "}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			analyzer := analysis.New(analysis.WithSemanticSource(tt.source))
			req, mode := analyzer.Analyze(context.Background(), "medieval castle with dragon")
			if mode != analysis.ModeEnhanced {
				t.Fatalf("mode = %s, want enhanced", mode)
			}
			if req.Theme != "castle" {
				t.Fatalf("theme = %q", req.Theme)
			}
			if len(req.RelatedConcepts) == 0 {
				t.Fatal("expected related concepts from concept table")
			}
		})
	}
}

func TestAnalyzerWithoutSourceUsesEnhanced(t *testing.T) {
	_, mode := analysis.New().Analyze(context.Background(), "transforming robot")
	if mode != analysis.ModeEnhanced {
		t.Fatalf("mode = %s, want enhanced", mode)
	}
}
