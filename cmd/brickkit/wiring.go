package main

import (
	"errors"
	"fmt"
	"log/slog"

	"brickkit/internal/analysis"
	"brickkit/internal/config"
	"brickkit/internal/documents"
	"brickkit/internal/history"
	"brickkit/internal/notifications"
	"brickkit/internal/pipeline"
	"brickkit/internal/render"
	"brickkit/internal/search"
	"brickkit/internal/selection"
	"brickkit/internal/services/download"
	"brickkit/internal/services/llm"
	"brickkit/internal/services/omr"
)

// pipelineApp holds the collaborators of a fully wired pipeline.
type pipelineApp struct {
	cfg         *config.Config
	logger      *slog.Logger
	analyzer    *analysis.Analyzer
	provider    *omr.Provider
	searcher    *search.Orchestrator
	registry    *pipeline.Registry
	store       *history.Store
	coordinator *pipeline.Coordinator
}

func (c *commandContext) openPipeline() (*pipelineApp, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return nil, err
	}

	app := &pipelineApp{
		cfg:      cfg,
		logger:   logger,
		analyzer: newAnalyzer(cfg, logger),
		provider: omr.New(cfg.Catalog, logger),
		registry: pipeline.NewRegistry(),
	}
	app.searcher = search.NewOrchestrator(app.provider, logger)

	store, err := history.Open(cfg.Paths.HistoryDB)
	if err != nil {
		_ = app.provider.Close()
		return nil, fmt.Errorf("open run history: %w", err)
	}
	app.store = store

	renderOpts := []render.Option{render.WithLogger(logger)}
	if cfg.Documents.Enabled {
		renderOpts = append(renderOpts, render.WithDocumentRenderer(documents.HTMLBooklet{}))
	}

	coordinatorOpts := []pipeline.Option{
		pipeline.WithRegistry(app.registry),
		pipeline.WithRecorder(store),
		pipeline.WithLogger(logger),
	}
	if cfg.Notifications.NtfyTopic != "" {
		coordinatorOpts = append(coordinatorOpts,
			pipeline.WithRecorder(notifications.Recorder{Service: notifications.NewService(cfg.Notifications)}))
	}

	coordinator, err := pipeline.NewCoordinator(pipeline.Deps{
		Analyzer: app.analyzer,
		Searcher: app.searcher,
		Selector: selection.NewArbiter(newAdvisor(cfg), logger),
		Variants: app.provider,
		Fetcher:  download.NewClient(cfg.DownloadTimeout(), download.WithLogger(logger)),
		Renderer: render.NewRunner(cfg.Renderer, renderOpts...),
	}, pipeline.Settings{
		OutputDir:     cfg.Paths.OutputDir,
		StepCeiling:   cfg.Renderer.StepCeiling,
		RenderTimeout: cfg.RenderTimeout(),
	}, coordinatorOpts...)
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	app.coordinator = coordinator
	return app, nil
}

// Close releases the browser session and the history database.
func (a *pipelineApp) Close() error {
	if a == nil {
		return nil
	}
	var errs []error
	if a.provider != nil {
		errs = append(errs, a.provider.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	return errors.Join(errs...)
}

func newLLMClient(cfg *config.Config) *llm.Client {
	if !cfg.LLMEnabled() {
		return nil
	}
	return llm.NewClient(llm.Config{
		APIKey:         cfg.LLM.APIKey,
		BaseURL:        cfg.LLM.BaseURL,
		Model:          cfg.LLM.Model,
		Referer:        cfg.LLM.Referer,
		Title:          cfg.LLM.Title,
		TimeoutSeconds: cfg.LLM.TimeoutSeconds,
	})
}

func newAnalyzer(cfg *config.Config, logger *slog.Logger) *analysis.Analyzer {
	opts := []analysis.Option{analysis.WithLogger(logger)}
	if client := newLLMClient(cfg); client != nil && cfg.LLM.SemanticAnalysis {
		opts = append(opts, analysis.WithSemanticSource(llm.NewSemanticAnalyzer(client)))
	}
	return analysis.New(opts...)
}

// newAdvisor returns nil when advisory selection is off; the arbiter then
// takes the top score.
func newAdvisor(cfg *config.Config) selection.Advisor {
	client := newLLMClient(cfg)
	if client == nil || !cfg.LLM.AdvisorySelection {
		return nil
	}
	return llm.NewAdvisor(client)
}
