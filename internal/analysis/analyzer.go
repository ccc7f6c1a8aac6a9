package analysis

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"brickkit/internal/catalog"
	"brickkit/internal/logging"
)

// Mode names the analysis path that produced a request.
type Mode string

const (
	ModeDirect   Mode = "direct"
	ModeSemantic Mode = "semantic"
	ModeEnhanced Mode = "enhanced"
)

// SemanticSource proposes a structured request for free text, typically by
// asking a language model. The direct analysis is passed as a hint.
type SemanticSource interface {
	AnalyzeRequest(ctx context.Context, text string, hint catalog.Request) (catalog.Request, error)
}

// Analyzer converts free text into catalog requests.
type Analyzer struct {
	semantic SemanticSource
	logger   *slog.Logger
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithSemanticSource enables language-model analysis for complex requests.
func WithSemanticSource(source SemanticSource) Option {
	return func(a *Analyzer) {
		a.semantic = source
	}
}

// WithLogger sets the analyzer logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Analyzer) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// New constructs an Analyzer.
func New(opts ...Option) *Analyzer {
	a := &Analyzer{logger: logging.NewNop()}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// Analyze returns the structured request for text and the mode that built it.
// It never fails: semantic errors degrade to the enhanced concept table.
func (a *Analyzer) Analyze(ctx context.Context, text string) (catalog.Request, Mode) {
	direct := Direct(text)
	if IsSimple(text, direct) {
		a.logger.Debug("request analysed directly",
			logging.String(logging.FieldEventType, "analysis_direct"),
			logging.String("theme", direct.Theme),
		)
		return direct, ModeDirect
	}

	if a.semantic != nil {
		req, err := a.semantic.AnalyzeRequest(ctx, Normalize(text), direct)
		if err == nil {
			err = validateSemantic(req)
		}
		if err == nil {
			req = mergeSemantic(req, direct)
			a.logger.Info("semantic analysis complete",
				logging.String(logging.FieldEventType, "analysis_semantic"),
				logging.String("theme", req.Theme),
				logging.Int("related_concepts", len(req.RelatedConcepts)),
				logging.Int("search_hints", len(req.SearchHints)),
			)
			return req, ModeSemantic
		}
		logging.WarnWithContext(a.logger, "semantic analysis failed; using concept table",
			"analysis_semantic_fallback",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check llm.api_key and llm.model"),
			logging.String(logging.FieldImpact, "search uses built-in concept mappings"),
		)
	}

	enhanced := Enhance(text, direct)
	a.logger.Debug("enhanced analysis complete",
		logging.String(logging.FieldEventType, "analysis_enhanced"),
		logging.String("theme", enhanced.Theme),
		logging.Int("related_concepts", len(enhanced.RelatedConcepts)),
	)
	return enhanced, ModeEnhanced
}

var (
	errEmptySemantic = errors.New("semantic analysis returned no usable fields")
	errBlankSemantic = errors.New("semantic analysis returned blank entry")
)

func validateSemantic(req catalog.Request) error {
	if strings.TrimSpace(req.Theme) == "" && len(req.Keywords) == 0 &&
		len(req.RelatedConcepts) == 0 && len(req.SearchHints) == 0 {
		return errEmptySemantic
	}
	for _, group := range [][]string{req.Colors, req.Constraints, req.Keywords, req.RelatedConcepts, req.SearchHints} {
		for _, value := range group {
			if strings.TrimSpace(value) == "" {
				return errBlankSemantic
			}
		}
	}
	return nil
}

// mergeSemantic fills fields the semantic source left empty from the direct
// analysis and lowercases everything so scoring compares like with like.
func mergeSemantic(req, direct catalog.Request) catalog.Request {
	out := catalog.Request{
		Theme:           strings.ToLower(strings.TrimSpace(req.Theme)),
		Colors:          lowerAll(req.Colors),
		Constraints:     lowerAll(req.Constraints),
		Keywords:        lowerAll(req.Keywords),
		RelatedConcepts: lowerAll(req.RelatedConcepts),
		SearchHints:     lowerAll(req.SearchHints),
	}
	if out.Theme == "" {
		out.Theme = direct.Theme
	}
	if len(out.Colors) == 0 {
		out.Colors = append([]string(nil), direct.Colors...)
	}
	if len(out.Constraints) == 0 {
		out.Constraints = append([]string(nil), direct.Constraints...)
	}
	if len(out.Keywords) == 0 {
		out.Keywords = append([]string(nil), direct.Keywords...)
	}
	return out
}

func lowerAll(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		value = strings.ToLower(strings.TrimSpace(value))
		if value == "" {
			continue
		}
		if _, dup := seen[value]; dup {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}
