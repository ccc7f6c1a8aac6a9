package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"brickkit/internal/catalog"
)

// SemanticAnalyzer asks the model to expand a request into search fields.
type SemanticAnalyzer struct {
	client *Client
}

// NewSemanticAnalyzer wraps client for request analysis.
func NewSemanticAnalyzer(client *Client) *SemanticAnalyzer {
	return &SemanticAnalyzer{client: client}
}

type analysisPayload struct {
	Theme           string   `json:"theme"`
	Colors          []string `json:"colors"`
	Constraints     []string `json:"constraints"`
	Keywords        []string `json:"keywords"`
	RelatedConcepts []string `json:"related_concepts"`
	SearchHints     []string `json:"search_hints"`
}

// AnalyzeRequest returns the model's structured reading of text. The reply
// must be a JSON object with only the documented keys.
func (a *SemanticAnalyzer) AnalyzeRequest(ctx context.Context, text string, hint catalog.Request) (catalog.Request, error) {
	if a == nil || a.client == nil {
		return catalog.Request{}, fmt.Errorf("llm analysis: client not configured")
	}
	prompt := fmt.Sprintf("Request: %q\nDetected theme (may be wrong): %s", strings.TrimSpace(text), hint.Theme)
	content, err := a.client.CompleteJSON(ctx, AnalysisSystemPrompt, prompt)
	if err != nil {
		return catalog.Request{}, err
	}
	payload, err := decodeAnalysis(content)
	if err != nil {
		return catalog.Request{}, fmt.Errorf("llm analysis: %w", err)
	}
	return catalog.Request{
		Theme:           payload.Theme,
		Colors:          payload.Colors,
		Constraints:     payload.Constraints,
		Keywords:        payload.Keywords,
		RelatedConcepts: payload.RelatedConcepts,
		SearchHints:     payload.SearchHints,
	}, nil
}

func decodeAnalysis(content string) (analysisPayload, error) {
	var payload analysisPayload
	object := extractObject(content)
	decoder := json.NewDecoder(bytes.NewReader([]byte(object)))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&payload); err != nil {
		return payload, fmt.Errorf("decode payload: %w (snippet: %s)", err, snippet(content))
	}
	return payload, nil
}
