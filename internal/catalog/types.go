package catalog

import "context"

// GeneralTheme is the fallback theme when no category keyword matches.
const GeneralTheme = "general"

// Request is the structured form of a free-text model request.
type Request struct {
	Theme           string   `json:"theme"`
	Colors          []string `json:"colors"`
	Constraints     []string `json:"constraints"`
	Keywords        []string `json:"keywords"`
	RelatedConcepts []string `json:"related_concepts,omitempty"`
	SearchHints     []string `json:"search_hints,omitempty"`
}

// Semantic reports whether the request carries semantic expansion data.
func (r Request) Semantic() bool {
	return len(r.RelatedConcepts) > 0 || len(r.SearchHints) > 0
}

// Clone returns a deep copy so callers can safely derive new requests.
func (r Request) Clone() Request {
	return Request{
		Theme:           r.Theme,
		Colors:          cloneStrings(r.Colors),
		Constraints:     cloneStrings(r.Constraints),
		Keywords:        cloneStrings(r.Keywords),
		RelatedConcepts: cloneStrings(r.RelatedConcepts),
		SearchHints:     cloneStrings(r.SearchHints),
	}
}

// Candidate is one catalogue entry returned by a search query.
type Candidate struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Category    string `json:"category"`
	ReleaseYear *int   `json:"release_year,omitempty"`
	DetailRef   string `json:"detail_ref"`
}

// ScoredCandidate pairs a candidate with its relevance score in [0,1].
type ScoredCandidate struct {
	Candidate
	Score float64 `json:"score"`
}

// Format identifies how a variant is packaged.
type Format string

const (
	FormatPrimary Format = "primary"
	FormatArchive Format = "archive"
)

// Variant is one downloadable representation of a catalogue item.
type Variant struct {
	Label        string  `json:"label"`
	RetrievalRef string  `json:"retrieval_ref"`
	Format       Format  `json:"format"`
	Desirability float64 `json:"desirability"`
}

// Strategy is one labelled query formulation tried against a provider.
type Strategy struct {
	Label string `json:"label"`
	Query string `json:"query"`
}

// Provider returns raw candidate records and variants from the catalogue.
// Empty results are normal; errors signal transport or page failures.
type Provider interface {
	Search(ctx context.Context, query string) ([]Candidate, error)
	ListVariants(ctx context.Context, detailRef string) ([]Variant, error)
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
