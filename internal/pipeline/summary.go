package pipeline

import (
	"fmt"
	"strings"

	"brickkit/internal/render"
)

const summarySeparator = " | "

// Summarize builds the one-line human summary for a finished run.
func Summarize(r *Result) string {
	if r == nil {
		return ""
	}
	if r.Render == nil {
		if r.State == StateFailed {
			return "Model retrieval failed: " + errorText(r.Err)
		}
		if r.Choice == nil {
			return ""
		}
	}

	parts := make([]string, 0, 4)
	if r.Choice != nil {
		parts = append(parts, fmt.Sprintf("Found model: %s - %s", r.Choice.Candidate.ID, r.Choice.Candidate.DisplayName))
	}
	if out := r.Render; out != nil {
		switch out.Kind {
		case render.KindSuccess:
			parts = append(parts, fmt.Sprintf("Generated %d step images", len(out.StepPaths)))
		case render.KindPartialNoSteps:
			parts = append(parts, "No steps found in model")
		default:
			parts = append(parts, "Instruction generation failed: "+out.Detail())
			return strings.Join(parts, summarySeparator)
		}
		if out.BOMPath != "" {
			parts = append(parts, "Generated BOM CSV")
		}
		if out.DocumentPath != "" {
			parts = append(parts, "Generated instruction document")
		}
	}
	return strings.Join(parts, summarySeparator)
}

func errorText(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}
