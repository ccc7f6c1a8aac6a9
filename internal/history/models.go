package history

import (
	"encoding/json"
	"time"

	"brickkit/internal/pipeline"
)

// Run is one recorded pipeline run.
type Run struct {
	RunID         string    `json:"run_id"`
	Prompt        string    `json:"prompt"`
	Status        string    `json:"status"`
	State         string    `json:"state"`
	FailedStage   string    `json:"failed_stage,omitempty"`
	ErrorMessage  string    `json:"error,omitempty"`
	Summary       string    `json:"summary"`
	AnalysisMode  string    `json:"analysis_mode,omitempty"`
	RequestJSON   string    `json:"request,omitempty"`
	StrategyLabel string    `json:"strategy_label,omitempty"`
	StrategyQuery string    `json:"strategy_query,omitempty"`
	ModelID       string    `json:"model_id,omitempty"`
	ModelName     string    `json:"model_name,omitempty"`
	ModelCategory string    `json:"model_category,omitempty"`
	ModelScore    float64   `json:"model_score,omitempty"`
	ChoiceKind    string    `json:"choice_kind,omitempty"`
	ChoiceReason  string    `json:"choice_reason,omitempty"`
	VariantLabel  string    `json:"variant_label,omitempty"`
	VariantURL    string    `json:"variant_url,omitempty"`
	ModelPath     string    `json:"model_path,omitempty"`
	ModelSHA256   string    `json:"model_sha256,omitempty"`
	StepCount     int       `json:"step_count"`
	Steps         []string  `json:"steps,omitempty"`
	BOMPath       string    `json:"bom_path,omitempty"`
	DocumentPath  string    `json:"document_path,omitempty"`
	RunDir        string    `json:"run_dir,omitempty"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
}

// Duration is the recorded wall time of the run.
func (r Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// FromResult flattens a pipeline result into a history row.
func FromResult(res *pipeline.Result) Run {
	run := Run{
		RunID:        res.RunID,
		Prompt:       res.Prompt,
		Status:       res.Status(),
		State:        string(res.State),
		FailedStage:  string(res.FailedStage),
		ErrorMessage: res.ErrorMessage(),
		Summary:      res.Summary,
		AnalysisMode: string(res.AnalysisMode),
		RunDir:       res.RunDir,
		StartedAt:    res.StartedAt.UTC(),
		FinishedAt:   res.FinishedAt.UTC(),
	}
	if res.Request != nil {
		if raw, err := json.Marshal(res.Request); err == nil {
			run.RequestJSON = string(raw)
		}
	}
	if res.Strategy != nil {
		run.StrategyLabel = res.Strategy.Label
		run.StrategyQuery = res.Strategy.Query
	}
	if res.Choice != nil {
		run.ModelID = res.Choice.Candidate.ID
		run.ModelName = res.Choice.Candidate.DisplayName
		run.ModelCategory = res.Choice.Candidate.Category
		run.ModelScore = res.Choice.Candidate.Score
		run.ChoiceKind = string(res.Choice.Kind)
		run.ChoiceReason = res.Choice.Reason
	}
	if res.Variant != nil {
		run.VariantLabel = res.Variant.Label
		run.VariantURL = res.Variant.RetrievalRef
	}
	if res.Model != nil {
		run.ModelPath = res.Model.Path
		run.ModelSHA256 = res.Model.SHA256
	}
	if res.Render != nil {
		run.StepCount = res.Render.StepCount
		run.Steps = append([]string(nil), res.Render.StepPaths...)
		run.BOMPath = res.Render.BOMPath
		run.DocumentPath = res.Render.DocumentPath
	}
	return run
}
