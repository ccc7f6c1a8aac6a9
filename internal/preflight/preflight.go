package preflight

import (
	"context"
	"path/filepath"

	"brickkit/internal/config"
	"brickkit/internal/render"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
	// Optional checks do not make the overall preflight fail.
	Optional bool
}

// Options overrides collaborators for tests.
type Options struct {
	Probe render.Prober
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config, opts Options) []Result {
	if cfg == nil {
		return nil
	}
	probe := opts.Probe
	if probe == nil {
		probe = render.ProbeVersion
	}

	results := []Result{
		CheckDirectoryAccess("Output directory", cfg.Paths.OutputDir),
		CheckDirectoryAccess("History directory", filepath.Dir(cfg.Paths.HistoryDB)),
		CheckRenderer(ctx, cfg.Renderer.Executable, probe),
		CheckLibrary(cfg.Renderer.LibraryPath),
		CheckBrowser(cfg.Catalog.BrowserBin),
		CheckCatalog(ctx, cfg.Catalog.BaseURL),
	}

	if cfg.LLMEnabled() && (cfg.LLM.SemanticAnalysis || cfg.LLM.AdvisorySelection) {
		results = append(results, CheckLLM(ctx, "LLM", cfg.LLM))
	} else {
		results = append(results, Result{Name: "LLM", Passed: true, Optional: true, Detail: "Disabled (rule-based analysis and top-score selection)"})
	}
	return results
}

// Failed counts required checks that did not pass.
func Failed(results []Result) int {
	failed := 0
	for _, r := range results {
		if !r.Passed && !r.Optional {
			failed++
		}
	}
	return failed
}
