package pipeline

import (
	"time"

	"brickkit/internal/analysis"
	"brickkit/internal/catalog"
	"brickkit/internal/render"
	"brickkit/internal/selection"
	"brickkit/internal/services"
	"brickkit/internal/services/download"
)

// Result carries everything a run produced. Fields are filled as stages
// complete, so a failed run still reports the artifacts gathered before the
// failure.
type Result struct {
	RunID  string
	Prompt string
	State  State
	// FailedStage is the state that was active when the run failed.
	FailedStage State
	Err         error

	Request      *catalog.Request
	AnalysisMode analysis.Mode
	Strategy     *catalog.Strategy
	Candidates   []catalog.ScoredCandidate
	Choice       *selection.Choice
	Variant      *catalog.Variant
	Model        *download.Model
	Render       *render.Outcome

	RunDir     string
	Summary    string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Status maps the result to the label recorded in run history.
func (r *Result) Status() string {
	switch {
	case r == nil:
		return services.StatusFailed
	case r.State == StateDone && r.Render != nil && r.Render.Kind == render.KindPartialNoSteps:
		return services.StatusPartial
	case r.State == StateDone:
		return services.StatusDone
	default:
		return services.FailureStatus(r.Err)
	}
}

// ErrorMessage returns the failure text, or "" for successful runs.
func (r *Result) ErrorMessage() string {
	if r == nil || r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// Duration is the wall time between start and finish.
func (r *Result) Duration() time.Duration {
	if r == nil || r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
