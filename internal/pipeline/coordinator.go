package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"brickkit/internal/analysis"
	"brickkit/internal/catalog"
	"brickkit/internal/fileutil"
	"brickkit/internal/logging"
	"brickkit/internal/render"
	"brickkit/internal/search"
	"brickkit/internal/selection"
	"brickkit/internal/services"
	"brickkit/internal/services/download"
)

// Analyzer turns free text into a structured request.
type Analyzer interface {
	Analyze(ctx context.Context, text string) (catalog.Request, analysis.Mode)
}

// Searcher runs the strategy ladder against the catalogue.
type Searcher interface {
	Search(ctx context.Context, req catalog.Request, original string) (search.Outcome, error)
}

// Selector picks one candidate from the ranked search results.
type Selector interface {
	Choose(ctx context.Context, original string, top []catalog.ScoredCandidate) (selection.Choice, error)
}

// VariantLister lists the downloadable variants of a catalogue entry.
type VariantLister interface {
	ListVariants(ctx context.Context, detailRef string) ([]catalog.Variant, error)
}

// Fetcher downloads a variant into a run directory.
type Fetcher interface {
	FetchModel(ctx context.Context, candidate catalog.Candidate, variant catalog.Variant, dir string) (download.Model, error)
}

// Renderer executes a render job.
type Renderer interface {
	Run(ctx context.Context, spec render.JobSpec) render.Outcome
}

// Recorder persists finished runs.
type Recorder interface {
	Record(ctx context.Context, result *Result) error
}

// Deps are the stage collaborators a Coordinator requires.
type Deps struct {
	Analyzer Analyzer
	Searcher Searcher
	Selector Selector
	Variants VariantLister
	Fetcher  Fetcher
	Renderer Renderer
}

// Settings are the run-level knobs taken from configuration.
type Settings struct {
	OutputDir     string
	StepCeiling   int
	RenderTimeout time.Duration
}

// Coordinator sequences the pipeline stages. It never retries a stage.
type Coordinator struct {
	deps      Deps
	settings  Settings
	registry  *Registry
	recorders []Recorder
	logger    *slog.Logger
	newID     func() string
	now       func() time.Time
}

// Option customizes a Coordinator.
type Option func(*Coordinator)

// WithRegistry publishes run events to registry.
func WithRegistry(registry *Registry) Option {
	return func(c *Coordinator) { c.registry = registry }
}

// WithRecorder hands every finished run to recorder. Recorders run in the
// order they were added.
func WithRecorder(recorder Recorder) Option {
	return func(c *Coordinator) {
		if recorder != nil {
			c.recorders = append(c.recorders, recorder)
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithIDGenerator overrides run id generation.
func WithIDGenerator(fn func() string) Option {
	return func(c *Coordinator) {
		if fn != nil {
			c.newID = fn
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// NewCoordinator validates deps and returns a coordinator.
func NewCoordinator(deps Deps, settings Settings, opts ...Option) (*Coordinator, error) {
	var missing []string
	for name, ok := range map[string]bool{
		"analyzer": deps.Analyzer != nil,
		"searcher": deps.Searcher != nil,
		"selector": deps.Selector != nil,
		"variants": deps.Variants != nil,
		"fetcher":  deps.Fetcher != nil,
		"renderer": deps.Renderer != nil,
	} {
		if !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("pipeline: missing collaborators: %s", strings.Join(sortedCopy(missing), ", "))
	}
	if strings.TrimSpace(settings.OutputDir) == "" {
		return nil, errors.New("pipeline: output dir is required")
	}
	c := &Coordinator{
		deps:     deps,
		settings: settings,
		logger:   logging.NewNop(),
		newID:    uuid.NewString,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// NewRunID returns a fresh run identifier.
func (c *Coordinator) NewRunID() string {
	return c.newID()
}

// Run executes the full pipeline for text under a fresh run id.
func (c *Coordinator) Run(ctx context.Context, text string) *Result {
	return c.RunWithID(ctx, c.newID(), text)
}

// RunWithID executes the full pipeline for text. It always returns a
// Result; failures are reported through Result.State and Result.Err.
func (c *Coordinator) RunWithID(ctx context.Context, runID, text string) *Result {
	r := c.begin(ctx, runID, text)
	ctx = services.WithRunID(ctx, runID)
	defer c.finish(ctx, r)

	unlock, err := c.claimRunDir(r)
	if err != nil {
		c.fail(ctx, r, err)
		return r
	}
	defer unlock()

	if !c.analyze(ctx, r) {
		return r
	}
	if !c.search(ctx, r) {
		return r
	}
	if !c.selectModel(ctx, r) {
		return r
	}
	if !c.download(ctx, r) {
		return r
	}
	c.render(ctx, r)
	return r
}

// RenderFile renders a local model file without analysis or search. The
// file is copied into the run directory first.
func (c *Coordinator) RenderFile(ctx context.Context, path string, model catalog.Candidate) *Result {
	return c.RenderFileWithID(ctx, c.newID(), path, model)
}

// RenderFileWithID is RenderFile under a caller-chosen run id.
func (c *Coordinator) RenderFileWithID(ctx context.Context, runID, path string, model catalog.Candidate) *Result {
	r := c.begin(ctx, runID, path)
	ctx = services.WithRunID(ctx, runID)
	defer c.finish(ctx, r)

	unlock, err := c.claimRunDir(r)
	if err != nil {
		c.fail(ctx, r, err)
		return r
	}
	defer unlock()

	if !c.enter(ctx, r, StateDownloading) {
		return r
	}
	dest := filepath.Join(r.RunDir, filepath.Base(path))
	digest, err := fileutil.CopyFileVerified(path, dest)
	if err != nil {
		c.fail(ctx, r, services.Wrap(services.ErrValidation, "downloading", "copy model", path, err))
		return r
	}
	if strings.TrimSpace(model.ID) == "" {
		model.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if strings.TrimSpace(model.DisplayName) == "" {
		model.DisplayName = model.ID
	}
	r.Choice = &selection.Choice{
		Candidate: catalog.ScoredCandidate{Candidate: model, Score: 1},
		Kind:      selection.ChoiceOnly,
		Reason:    "local model file",
	}
	r.Model = &download.Model{Path: dest, SHA256: digest.SHA256, Size: digest.Size}
	c.render(ctx, r)
	return r
}

func (c *Coordinator) begin(ctx context.Context, runID, text string) *Result {
	r := &Result{
		RunID:     runID,
		Prompt:    text,
		State:     StateIdle,
		RunDir:    filepath.Join(c.settings.OutputDir, runID),
		StartedAt: c.now(),
	}
	if c.registry != nil {
		c.registry.Begin(runID, r.StartedAt)
	}
	logging.WithContext(services.WithRunID(ctx, runID), c.logger).Info("run started",
		logging.String(logging.FieldEventType, "run_start"),
		logging.String("prompt", text),
		logging.String("run_dir", r.RunDir),
	)
	return r
}

func (c *Coordinator) finish(ctx context.Context, r *Result) {
	if !r.State.Terminal() {
		r.State = StateDone
	}
	r.FinishedAt = c.now()
	r.Summary = Summarize(r)

	logger := logging.WithContext(ctx, c.logger)
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "run_complete"),
		logging.String("status", r.Status()),
		logging.String("summary", r.Summary),
		logging.Duration("run_duration", r.Duration()),
	}
	if r.State == StateFailed {
		logger.Warn("run failed", logging.Args(append(attrs, logging.Error(r.Err))...)...)
	} else {
		logger.Info("run finished", logging.Args(attrs...)...)
	}

	for _, recorder := range c.recorders {
		// Recording outlives a cancelled run context.
		recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		if err := recorder.Record(recordCtx, r); err != nil {
			logging.WarnWithContext(logger, "failed to record finished run", "run_record_failed",
				logging.Error(err),
				logging.String("recorder", fmt.Sprintf("%T", recorder)),
				logging.String(logging.FieldImpact, "run outcome may be missing from history or notifications"),
			)
		}
		cancel()
	}
	if c.registry != nil {
		c.registry.Finish(r)
	}
}

// enter transitions r into state unless the run context is already done.
func (c *Coordinator) enter(ctx context.Context, r *Result, state State) bool {
	if err := ctx.Err(); err != nil {
		c.fail(ctx, r, err)
		return false
	}
	r.State = state
	c.publish(r.RunID, state, state.Label(), 0, 0)
	logging.WithContext(services.WithStage(ctx, string(state)), c.logger).Info("stage started",
		logging.String(logging.FieldEventType, "stage_start"),
	)
	return true
}

func (c *Coordinator) fail(ctx context.Context, r *Result, err error) {
	r.FailedStage = r.State
	r.State = StateFailed
	r.Err = err
	logging.ErrorWithContext(logging.WithContext(services.WithStage(ctx, string(r.FailedStage)), c.logger),
		"stage failed", "stage_failed",
		logging.Error(err),
	)
}

func (c *Coordinator) publish(runID string, state State, message string, done, total int) {
	if c.registry == nil {
		return
	}
	c.registry.Publish(Event{
		RunID:   runID,
		State:   state,
		Message: message,
		Done:    done,
		Total:   total,
		Time:    c.now(),
	})
}

func (c *Coordinator) analyze(ctx context.Context, r *Result) bool {
	if !c.enter(ctx, r, StateAnalyzing) {
		return false
	}
	if analysis.Normalize(r.Prompt) == "" {
		c.fail(ctx, r, services.Wrap(services.ErrValidation, "analyzing", "read request", "request text is empty", nil))
		return false
	}
	req, mode := c.deps.Analyzer.Analyze(services.WithStage(ctx, string(StateAnalyzing)), r.Prompt)
	r.Request = &req
	r.AnalysisMode = mode
	return true
}

func (c *Coordinator) search(ctx context.Context, r *Result) bool {
	if !c.enter(ctx, r, StateSearching) {
		return false
	}
	outcome, err := c.deps.Searcher.Search(services.WithStage(ctx, string(StateSearching)), *r.Request, r.Prompt)
	if outcome.Strategy.Label != "" {
		strategy := outcome.Strategy
		r.Strategy = &strategy
	}
	r.Candidates = outcome.Candidates
	if err != nil {
		c.fail(ctx, r, err)
		return false
	}
	return true
}

func (c *Coordinator) selectModel(ctx context.Context, r *Result) bool {
	if !c.enter(ctx, r, StateSelecting) {
		return false
	}
	stageCtx := services.WithStage(ctx, string(StateSelecting))
	choice, err := c.deps.Selector.Choose(stageCtx, r.Prompt, r.Candidates)
	if err != nil {
		c.fail(ctx, r, err)
		return false
	}
	r.Choice = &choice
	return true
}

func (c *Coordinator) download(ctx context.Context, r *Result) bool {
	if !c.enter(ctx, r, StateDownloading) {
		return false
	}
	stageCtx := services.WithStage(ctx, string(StateDownloading))
	choice := r.Choice.Candidate

	variants, err := c.deps.Variants.ListVariants(stageCtx, choice.DetailRef)
	if err != nil {
		c.fail(ctx, r, err)
		return false
	}
	ranked := selection.RankVariants(variants)
	if len(ranked) == 0 {
		c.fail(ctx, r, ErrNoVariants)
		return false
	}
	variant := ranked[0]
	r.Variant = &variant
	logging.WithContext(stageCtx, c.logger).Info("variant selected",
		logging.String("candidate", choice.ID),
		logging.String("variant", variant.Label),
		logging.Float64("desirability", variant.Desirability),
		logging.Int("variants", len(ranked)),
	)

	model, err := c.deps.Fetcher.FetchModel(stageCtx, choice.Candidate, variant, r.RunDir)
	if err != nil {
		c.fail(ctx, r, err)
		return false
	}
	r.Model = &model
	return true
}

func (c *Coordinator) render(ctx context.Context, r *Result) {
	if !c.enter(ctx, r, StateRendering) {
		return
	}
	runID := r.RunID
	outcome := c.deps.Renderer.Run(services.WithStage(ctx, string(StateRendering)), render.JobSpec{
		SourcePath:  r.Model.Path,
		OutputDir:   r.RunDir,
		StepCeiling: c.settings.StepCeiling,
		Timeout:     c.settings.RenderTimeout,
		Model:       r.Choice.Candidate.Candidate,
		Progress: func(done, total int) {
			c.publish(runID, StateRendering, fmt.Sprintf("Rendered %d of %d steps", done, total), done, total)
		},
	})
	r.Render = &outcome
	if outcome.Kind == render.KindFailure {
		err := outcome.Err
		if err == nil {
			err = errors.New(outcome.Detail())
		}
		c.fail(ctx, r, err)
		return
	}
	r.State = StateDone
}
