package selection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"brickkit/internal/catalog"
	"brickkit/internal/logging"
	"brickkit/internal/services"
)

// ErrNoCandidates is returned when there is nothing to choose from.
var ErrNoCandidates = fmt.Errorf("%w: no candidates to choose from", services.ErrNotFound)

// maxAdvisorOptions bounds how many candidates the advisor sees.
const maxAdvisorOptions = 5

// Advisor names one of the presented options by ordinal. The reply is free
// text; the first integer in it is taken as the 1-based choice.
type Advisor interface {
	Choose(ctx context.Context, prompt string, options []string) (string, error)
}

// ChoiceKind records how a candidate was chosen.
type ChoiceKind string

const (
	ChoiceOnly     ChoiceKind = "only_candidate"
	ChoiceAdvised  ChoiceKind = "advised"
	ChoiceFallback ChoiceKind = "fallback"
	ChoiceTopScore ChoiceKind = "top_score"
)

// Choice is the arbitration result.
type Choice struct {
	Candidate catalog.ScoredCandidate
	Kind      ChoiceKind
	// Reason explains a fallback; empty otherwise.
	Reason string
}

// Arbiter chooses one candidate from a ranked list.
type Arbiter struct {
	advisor Advisor
	logger  *slog.Logger
}

// NewArbiter constructs an arbiter. A nil advisor means the top-scored
// candidate is always taken.
func NewArbiter(advisor Advisor, logger *slog.Logger) *Arbiter {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Arbiter{advisor: advisor, logger: logger}
}

var ordinalPattern = regexp.MustCompile(`\b(\d+)\b`)

// Choose picks a candidate. Advisor failures are recovered locally and
// never returned.
func (a *Arbiter) Choose(ctx context.Context, original string, top []catalog.ScoredCandidate) (Choice, error) {
	if len(top) == 0 {
		return Choice{}, ErrNoCandidates
	}
	logger := logging.WithContext(ctx, a.logger)

	best := highest(top)
	if len(top) == 1 {
		choice := Choice{Candidate: top[0], Kind: ChoiceOnly}
		a.logDecision(logger, choice)
		return choice, nil
	}
	if a.advisor == nil {
		choice := Choice{Candidate: best, Kind: ChoiceTopScore}
		a.logDecision(logger, choice)
		return choice, nil
	}

	shown := top
	if len(shown) > maxAdvisorOptions {
		shown = shown[:maxAdvisorOptions]
	}
	options := FormatOptions(shown)
	reply, err := a.advisor.Choose(ctx, BuildPrompt(original, options), options)
	if err != nil {
		return a.fallback(logger, best, fmt.Sprintf("advisor unavailable: %v", err)), nil
	}
	ordinal, err := ParseOrdinal(reply)
	if err != nil {
		return a.fallback(logger, best, err.Error()), nil
	}
	if ordinal < 1 || ordinal > len(shown) {
		return a.fallback(logger, best, fmt.Sprintf("advisor chose %d outside 1-%d", ordinal, len(shown))), nil
	}
	choice := Choice{Candidate: shown[ordinal-1], Kind: ChoiceAdvised}
	a.logDecision(logger, choice)
	return choice, nil
}

func (a *Arbiter) fallback(logger *slog.Logger, best catalog.ScoredCandidate, reason string) Choice {
	choice := Choice{Candidate: best, Kind: ChoiceFallback, Reason: reason}
	logging.WarnWithContext(logger, "advisor selection failed; using top-scored candidate", "selection_fallback",
		logging.String("reason", reason),
		logging.String("candidate", best.DisplayName),
		logging.String(logging.FieldErrorHint, "check llm configuration or disable llm.advisory_selection"),
		logging.String(logging.FieldImpact, "highest scoring model selected"),
	)
	return choice
}

func (a *Arbiter) logDecision(logger *slog.Logger, choice Choice) {
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "selection_decision"),
		logging.String("candidate_id", choice.Candidate.ID),
		logging.String("candidate", choice.Candidate.DisplayName),
		logging.Float64("score", choice.Candidate.Score),
	}
	attrs = append(attrs, logging.DecisionAttrs("model_selection", string(choice.Kind), "")...)
	logger.Info("model selected", logging.Args(attrs...)...)
}

// FormatOptions renders candidates as numbered advisor options.
func FormatOptions(candidates []catalog.ScoredCandidate) []string {
	options := make([]string, len(candidates))
	for i, c := range candidates {
		options[i] = fmt.Sprintf("%d. %s (Set: %s) - Theme: %s", i+1, c.DisplayName, c.ID, c.Category)
	}
	return options
}

// BuildPrompt assembles the advisor question for the numbered options.
func BuildPrompt(original string, options []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "User request: %q\n\nAvailable models:\n", original)
	for _, option := range options {
		b.WriteString(option)
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "\nWhich model (1-%d) best matches the user's request? Consider the model name, theme, and how well it fits the description. Respond with just the number.", len(options))
	return b.String()
}

var errNoOrdinal = errors.New("advisor reply contained no number")

// ParseOrdinal extracts the first integer token from an advisor reply.
func ParseOrdinal(reply string) (int, error) {
	match := ordinalPattern.FindStringSubmatch(reply)
	if match == nil {
		return 0, errNoOrdinal
	}
	n, err := strconv.Atoi(match[1])
	if err != nil {
		return 0, fmt.Errorf("parse advisor ordinal: %w", err)
	}
	return n, nil
}

func highest(top []catalog.ScoredCandidate) catalog.ScoredCandidate {
	best := top[0]
	for _, c := range top[1:] {
		if c.Score > best.Score {
			best = c
		}
	}
	return best
}
