package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"brickkit/internal/catalog"
	"brickkit/internal/logging"
	"brickkit/internal/services"
)

// ErrSearchExhausted is matched by errors.Is when no strategy produced any
// candidates.
var ErrSearchExhausted = errors.New("search exhausted")

// ExhaustedError reports every strategy that was tried without results.
type ExhaustedError struct {
	Tried []string
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("no models found matching the search criteria (tried: %s)", strings.Join(e.Tried, ", "))
}

// Is matches ErrSearchExhausted.
func (e *ExhaustedError) Is(target error) bool {
	return target == ErrSearchExhausted
}

// Unwrap exposes the not-found marker.
func (e *ExhaustedError) Unwrap() error {
	return services.ErrNotFound
}

const (
	minAcceptedResults = 3
	minAcceptedScore   = 0.3
)

// Outcome describes the result set the orchestrator settled on.
type Outcome struct {
	Strategy   catalog.Strategy
	Candidates []catalog.ScoredCandidate
	// Accepted is false when the set is the last non-empty fallback.
	Accepted bool
}

// Orchestrator runs planned strategies against a provider.
type Orchestrator struct {
	provider catalog.Provider
	logger   *slog.Logger
}

// NewOrchestrator constructs an orchestrator for the provider.
func NewOrchestrator(provider catalog.Provider, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Orchestrator{provider: provider, logger: logger}
}

// Run returns the scored candidates of the first accepted strategy.
func (o *Orchestrator) Run(ctx context.Context, req catalog.Request, original string) ([]catalog.ScoredCandidate, error) {
	outcome, err := o.Search(ctx, req, original)
	if err != nil {
		return nil, err
	}
	return outcome.Candidates, nil
}

// Search tries strategies in planned order. The exact prompt is accepted on
// any results; derived strategies need at least three results or a best
// score above 0.3. When nothing is accepted the last non-empty set is
// returned, and an *ExhaustedError when every strategy came back empty.
func (o *Orchestrator) Search(ctx context.Context, req catalog.Request, original string) (Outcome, error) {
	if o.provider == nil {
		return Outcome{}, services.Wrap(services.ErrConfiguration, "search", "run", "no catalogue provider configured", nil)
	}
	strategies := Plan(req, original)
	logger := logging.WithContext(ctx, o.logger)

	var (
		fallback Outcome
		tried    = make([]string, 0, len(strategies))
	)
	for i, strategy := range strategies {
		if err := ctx.Err(); err != nil {
			return Outcome{}, err
		}
		tried = append(tried, strategy.Label)
		strategyLogger := logger.With(logging.String(logging.FieldStrategy, strategy.Label))
		strategyLogger.Info("trying search strategy",
			logging.String(logging.FieldEventType, "strategy_attempt"),
			logging.Int("attempt", i+1),
			logging.Int("strategies", len(strategies)),
			logging.String("query", strategy.Query),
		)

		raw, err := o.provider.Search(services.WithStrategy(ctx, strategy.Label), strategy.Query)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Outcome{}, ctxErr
			}
			logging.WarnWithContext(strategyLogger, "search strategy failed", "strategy_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check catalog.search_url and browser availability"),
				logging.String(logging.FieldImpact, "strategy treated as returning no results"),
			)
			continue
		}
		if len(raw) == 0 {
			strategyLogger.Debug("search strategy returned no results")
			continue
		}

		scored := ScoreAll(req, raw)
		current := Outcome{Strategy: strategy, Candidates: scored}
		if accepted(strategy, scored) {
			current.Accepted = true
			strategyLogger.Info("search strategy accepted",
				logging.String(logging.FieldEventType, "strategy_accepted"),
				logging.Int("results", len(scored)),
				logging.Float64("best_score", scored[0].Score),
				logging.String("best", scored[0].DisplayName),
			)
			return current, nil
		}
		strategyLogger.Info("search strategy below acceptance threshold",
			logging.Args(logging.DecisionAttrs("strategy_acceptance", "rejected",
				fmt.Sprintf("%d results, best score %.2f", len(scored), scored[0].Score))...)...,
		)
		fallback = current
	}

	if len(fallback.Candidates) > 0 {
		logger.Info("using last non-empty search results",
			logging.Args(logging.DecisionAttrs("search_fallback", fallback.Strategy.Label, "no strategy met the acceptance threshold")...)...,
		)
		return fallback, nil
	}
	return Outcome{}, &ExhaustedError{Tried: tried}
}

// ScoreAll scores candidates and sorts them by descending score, keeping
// provider order for ties.
func ScoreAll(req catalog.Request, candidates []catalog.Candidate) []catalog.ScoredCandidate {
	scored := make([]catalog.ScoredCandidate, len(candidates))
	for i, c := range candidates {
		scored[i] = catalog.ScoredCandidate{Candidate: c, Score: Score(req, c)}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	return scored
}

func accepted(strategy catalog.Strategy, scored []catalog.ScoredCandidate) bool {
	if len(scored) == 0 {
		return false
	}
	if strategy.Label == LabelExactPrompt {
		return true
	}
	return len(scored) >= minAcceptedResults || scored[0].Score > minAcceptedScore
}
