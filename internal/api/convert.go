package api

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"time"

	"brickkit/internal/history"
	"brickkit/internal/pipeline"
	"brickkit/internal/preflight"
)

// FromHistoryRun converts a recorded run to its API representation.
func FromHistoryRun(run history.Run) Run {
	dto := Run{
		RunID:        run.RunID,
		Prompt:       run.Prompt,
		Status:       run.Status,
		State:        run.State,
		FailedStage:  run.FailedStage,
		ErrorMessage: run.ErrorMessage,
		Summary:      run.Summary,
		AnalysisMode: run.AnalysisMode,
		StepCount:    run.StepCount,
		StartedAt:    formatTime(run.StartedAt),
		FinishedAt:   formatTime(run.FinishedAt),
		Files:        runFiles(run),
	}
	if d := run.Duration(); d > 0 {
		dto.DurationSeconds = d.Seconds()
	}
	if raw := strings.TrimSpace(run.RequestJSON); raw != "" && json.Valid([]byte(raw)) {
		dto.Request = json.RawMessage(raw)
	}
	if run.StrategyLabel != "" {
		dto.Strategy = &Strategy{Label: run.StrategyLabel, Query: run.StrategyQuery}
	}
	if run.ModelID != "" {
		dto.Model = &Model{
			ID:           run.ModelID,
			Name:         run.ModelName,
			Category:     run.ModelCategory,
			Score:        run.ModelScore,
			ChoiceKind:   run.ChoiceKind,
			ChoiceReason: run.ChoiceReason,
			Variant:      run.VariantLabel,
			VariantURL:   run.VariantURL,
			SHA256:       run.ModelSHA256,
		}
	}
	return dto
}

// FromResult converts a finished pipeline result.
func FromResult(res *pipeline.Result) Run {
	if res == nil {
		return Run{}
	}
	return FromHistoryRun(history.FromResult(res))
}

// FromEvent converts a registry event.
func FromEvent(ev pipeline.Event) Event {
	return Event{
		RunID:   ev.RunID,
		State:   string(ev.State),
		Message: ev.Message,
		Done:    ev.Done,
		Total:   ev.Total,
		Time:    formatTime(ev.Time),
	}
}

// liveRun describes a run that is still in flight.
func liveRun(ev pipeline.Event) Run {
	latest := FromEvent(ev)
	return Run{
		RunID:  ev.RunID,
		Status: StatusRunning,
		State:  string(ev.State),
		Latest: &latest,
	}
}

// FromPreflight converts preflight results. The service is healthy when no
// required check failed.
func FromPreflight(results []preflight.Result) HealthResponse {
	checks := make([]HealthCheck, 0, len(results))
	for _, r := range results {
		checks = append(checks, HealthCheck{
			Name:     r.Name,
			Passed:   r.Passed,
			Optional: r.Optional,
			Detail:   r.Detail,
		})
	}
	return HealthResponse{Healthy: preflight.Failed(results) == 0, Checks: checks}
}

// runFiles lists the artifacts of run as slash-separated paths relative to
// the run directory.
func runFiles(run history.Run) []string {
	if run.RunDir == "" {
		return nil
	}
	candidates := make([]string, 0, len(run.Steps)+3)
	candidates = append(candidates, run.ModelPath)
	candidates = append(candidates, run.Steps...)
	candidates = append(candidates, run.BOMPath, run.DocumentPath)

	var files []string
	for _, path := range candidates {
		if path == "" {
			continue
		}
		rel, err := filepath.Rel(run.RunDir, path)
		if err != nil || !filepath.IsLocal(rel) {
			continue
		}
		files = append(files, filepath.ToSlash(rel))
	}
	return files
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
