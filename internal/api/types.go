package api

import "encoding/json"

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// StatusRunning labels runs that have not finished yet.
const StatusRunning = "running"

// Run describes one pipeline run in a transport-friendly format.
type Run struct {
	RunID           string          `json:"runId"`
	Prompt          string          `json:"prompt,omitempty"`
	Status          string          `json:"status"`
	State           string          `json:"state"`
	FailedStage     string          `json:"failedStage,omitempty"`
	ErrorMessage    string          `json:"errorMessage,omitempty"`
	Summary         string          `json:"summary,omitempty"`
	AnalysisMode    string          `json:"analysisMode,omitempty"`
	Request         json.RawMessage `json:"request,omitempty"`
	Strategy        *Strategy       `json:"strategy,omitempty"`
	Model           *Model          `json:"model,omitempty"`
	StepCount       int             `json:"stepCount"`
	Files           []string        `json:"files,omitempty"`
	StartedAt       string          `json:"startedAt,omitempty"`
	FinishedAt      string          `json:"finishedAt,omitempty"`
	DurationSeconds float64         `json:"durationSeconds,omitempty"`
	Latest          *Event          `json:"latest,omitempty"`
}

// Strategy is the search formulation that produced the accepted results.
type Strategy struct {
	Label string `json:"label"`
	Query string `json:"query"`
}

// Model describes the chosen catalogue entry and the file fetched for it.
type Model struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Category     string  `json:"category,omitempty"`
	Score        float64 `json:"score"`
	ChoiceKind   string  `json:"choiceKind,omitempty"`
	ChoiceReason string  `json:"choiceReason,omitempty"`
	Variant      string  `json:"variant,omitempty"`
	VariantURL   string  `json:"variantUrl,omitempty"`
	SHA256       string  `json:"sha256,omitempty"`
}

// Event is one progress notification.
type Event struct {
	RunID   string `json:"runId"`
	State   string `json:"state"`
	Message string `json:"message"`
	Done    int    `json:"done,omitempty"`
	Total   int    `json:"total,omitempty"`
	Time    string `json:"time,omitempty"`
}

// RunRequest is the body of POST /api/runs and POST /api/analyze.
type RunRequest struct {
	Prompt string `json:"prompt"`
}

// RunAccepted answers a started run.
type RunAccepted struct {
	RunID     string `json:"runId"`
	StatusURL string `json:"statusUrl"`
	EventsURL string `json:"eventsUrl"`
}

// RunListResponse wraps recorded and in-flight runs.
type RunListResponse struct {
	Runs   []Run `json:"runs"`
	Active []Run `json:"active"`
}

// RunResponse wraps a single run.
type RunResponse struct {
	Run Run `json:"run"`
}

// AnalyzeResponse carries the structured form of a prompt.
type AnalyzeResponse struct {
	Mode    string          `json:"mode"`
	Request json.RawMessage `json:"request"`
}

// HealthCheck mirrors one preflight result.
type HealthCheck struct {
	Name     string `json:"name"`
	Passed   bool   `json:"passed"`
	Optional bool   `json:"optional"`
	Detail   string `json:"detail,omitempty"`
}

// HealthResponse aggregates the preflight results.
type HealthResponse struct {
	Healthy bool          `json:"healthy"`
	Checks  []HealthCheck `json:"checks"`
}
