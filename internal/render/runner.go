package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"brickkit/internal/catalog"
	"brickkit/internal/config"
	"brickkit/internal/documents"
	"brickkit/internal/logging"
)

// Kind classifies a render outcome.
type Kind string

const (
	KindSuccess        Kind = "success"
	KindPartialNoSteps Kind = "partial_no_steps"
	KindFailure        Kind = "failure"
)

const (
	instructionsDirName = "instructions"
	stepsDirName        = "steps"
	bomFileName         = "bom.csv"

	defaultPollInterval = 2 * time.Second
	stderrTailLines     = 20
)

// JobSpec describes one render job.
type JobSpec struct {
	SourcePath string
	// OutputDir receives instructions/steps/step*.png and instructions/bom.csv.
	OutputDir string
	// StepCeiling bounds the number of frames the renderer may export.
	StepCeiling int
	Timeout     time.Duration
	// Model describes the source for the instruction document cover.
	Model catalog.Candidate
	// Progress, when set, receives the number of step images seen so far.
	Progress func(done, total int)
}

// Outcome is the result of a render job. Err is nil unless Kind is
// KindFailure.
type Outcome struct {
	StepPaths    []string
	BOMPath      string
	DocumentPath string
	StepCount    int
	Kind         Kind
	Err          error
}

// Detail returns a one-line description of the outcome.
func (o Outcome) Detail() string {
	switch o.Kind {
	case KindSuccess:
		return fmt.Sprintf("Generated %d step images", len(o.StepPaths))
	case KindPartialNoSteps:
		return "No steps found in model"
	default:
		if o.Err != nil {
			return o.Err.Error()
		}
		return "render failed"
	}
}

// Option configures a Runner.
type Option func(*Runner)

// WithExecutor injects the process executor.
func WithExecutor(executor Executor) Option {
	return func(r *Runner) {
		if executor != nil {
			r.exec = executor
		}
	}
}

// WithDocumentRenderer enables instruction document generation.
func WithDocumentRenderer(docs documents.Renderer) Option {
	return func(r *Runner) {
		r.docs = docs
	}
}

// WithLogger sets the runner logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithProber replaces the executable probe used during discovery.
func WithProber(probe Prober) Option {
	return func(r *Runner) {
		if probe != nil {
			r.probe = probe
		}
	}
}

// WithPollInterval changes how often the steps directory is sampled.
func WithPollInterval(interval time.Duration) Option {
	return func(r *Runner) {
		if interval > 0 {
			r.pollInterval = interval
		}
	}
}

// WithTermGrace changes how long a stopped renderer has to exit after
// SIGTERM before it is killed. Only the default executor honours it.
func WithTermGrace(grace time.Duration) Option {
	return func(r *Runner) {
		if grace > 0 {
			r.termGrace = grace
		}
	}
}

// Runner executes render jobs with LeoCAD.
type Runner struct {
	cfg          config.Renderer
	exec         Executor
	docs         documents.Renderer
	probe        Prober
	logger       *slog.Logger
	pollInterval time.Duration
	termGrace    time.Duration
}

// NewRunner constructs a runner for the renderer settings.
func NewRunner(cfg config.Renderer, opts ...Option) *Runner {
	r := &Runner{
		cfg:          cfg,
		probe:        ProbeVersion,
		logger:       logging.NewNop(),
		pollInterval: defaultPollInterval,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	if r.exec == nil {
		r.exec = commandExecutor{grace: r.termGrace}
	}
	return r
}

// Run renders spec.SourcePath. It never panics and always returns an
// Outcome; failures are reported through Outcome.Err.
func (r *Runner) Run(ctx context.Context, spec JobSpec) Outcome {
	logger := logging.WithContext(ctx, r.logger).With(logging.String("source", filepath.Base(spec.SourcePath)))

	executable, err := FindExecutable(ctx, r.cfg.Executable, r.probe)
	if err != nil {
		return failure(err)
	}
	library, err := FindLibrary(r.cfg.LibraryPath)
	if err != nil {
		return failure(err)
	}
	if _, err := os.Stat(spec.SourcePath); err != nil {
		return failure(fmt.Errorf("%w: %s", ErrSourceMissing, spec.SourcePath))
	}

	instructionsDir := filepath.Join(spec.OutputDir, instructionsDirName)
	stepsDir := filepath.Join(instructionsDir, stepsDirName)
	if err := os.MkdirAll(stepsDir, 0o755); err != nil {
		return failure(fmt.Errorf("create steps directory: %w", err))
	}

	steps, err := CountSteps(spec.SourcePath)
	if err != nil {
		return failure(err)
	}
	logger.Info("model inspected", logging.Int("step_markers", steps))

	job := renderJob{
		executable:      executable,
		library:         library,
		instructionsDir: instructionsDir,
		stepsDir:        stepsDir,
		spec:            spec,
		logger:          logger,
	}

	if steps == 0 {
		logging.WarnWithContext(logger, "model has no step markers; exporting parts list only", "render_no_steps",
			logging.String(logging.FieldImpact, "no step images will be produced"),
			logging.String(logging.FieldErrorHint, "the model file contains no 0 STEP lines"),
		)
		return Outcome{
			BOMPath: r.exportBOM(ctx, job),
			Kind:    KindPartialNoSteps,
		}
	}

	stepPaths, err := r.exportSteps(ctx, job, steps)
	if err != nil {
		return failure(err)
	}
	out := Outcome{
		StepPaths: stepPaths,
		StepCount: len(stepPaths),
		Kind:      KindSuccess,
		BOMPath:   r.exportBOM(ctx, job),
	}

	if r.docs != nil {
		path, err := r.docs.Render(ctx, documents.Input{
			Model:           spec.Model,
			InstructionsDir: instructionsDir,
			StepPaths:       stepPaths,
			BOMPath:         out.BOMPath,
		})
		if err != nil {
			logging.WarnWithContext(logger, "instruction document failed", "document_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "step images and parts list are still available"),
			)
		} else {
			out.DocumentPath = path
		}
	}
	return out
}

type renderJob struct {
	executable      string
	library         string
	instructionsDir string
	stepsDir        string
	spec            JobSpec
	logger          *slog.Logger
}

func (r *Runner) frameArgs(job renderJob) []string {
	ceiling := job.spec.StepCeiling
	if ceiling <= 0 {
		ceiling = r.cfg.StepCeiling
	}
	return []string{
		"-l", job.library,
		job.spec.SourcePath,
		"-i", filepath.Join(job.stepsDir, "step.png"),
		"-w", strconv.Itoa(r.cfg.Width),
		"-h", strconv.Itoa(r.cfg.Height),
		"-f", "1",
		"-t", strconv.Itoa(ceiling),
		"--fade-steps",
		"--highlight",
		"--viewpoint", "home",
	}
}

func (r *Runner) jobTimeout(spec JobSpec) time.Duration {
	if spec.Timeout > 0 {
		return spec.Timeout
	}
	if r.cfg.TimeoutSeconds > 0 {
		return time.Duration(r.cfg.TimeoutSeconds) * time.Second
	}
	return 0
}

func (r *Runner) exportSteps(ctx context.Context, job renderJob, markers int) ([]string, error) {
	timeout := r.jobTimeout(job.spec)
	jobCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	total := job.spec.StepCeiling
	if total <= 0 || markers < total {
		total = markers
	}

	pollCtx, stopPoll := context.WithCancel(jobCtx)
	var poller sync.WaitGroup
	poller.Add(1)
	go func() {
		defer poller.Done()
		r.pollProgress(pollCtx, job, total)
	}()

	tail := newLineTail(stderrTailLines)
	started := time.Now()
	job.logger.Info("renderer started",
		logging.String(logging.FieldEventType, "render_start"),
		logging.Int("step_ceiling", total),
		logging.Duration("timeout", timeout),
	)
	runErr := r.exec.Run(jobCtx, job.executable, r.frameArgs(job), func(stream Stream, line string) {
		if stream == Stderr {
			tail.add(line)
			job.logger.Debug("renderer stderr", logging.String("line", line))
			return
		}
		job.logger.Debug("renderer output", logging.String("line", line))
	})
	stopPoll()
	poller.Wait()
	elapsed := time.Since(started)

	if runErr != nil {
		switch {
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case errors.Is(jobCtx.Err(), context.DeadlineExceeded):
			timeoutErr := &TimeoutError{Limit: timeout, Elapsed: elapsed}
			logging.ErrorWithContext(job.logger, "renderer timed out", "render_timeout",
				logging.Duration("elapsed", elapsed),
				logging.Duration("timeout", timeout),
				logging.String(logging.FieldErrorHint, "raise renderer.timeout_seconds or LEOCAD_TIMEOUT"),
			)
			return nil, timeoutErr
		}
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			return nil, &ExitError{Code: exitErr.ExitCode(), Stderr: tail.String()}
		}
		return nil, fmt.Errorf("run renderer: %w", runErr)
	}

	all, valid, err := listStepImages(job.stepsDir, r.cfg.MinArtifactBytes)
	if err != nil {
		return nil, fmt.Errorf("list step images: %w", err)
	}
	if len(all) == 0 {
		return nil, &ExitError{Reason: "No instructions exported; this usually means the model has no steps."}
	}
	if len(valid) == 0 {
		return nil, &ExitError{Reason: "All exported images are empty or corrupted."}
	}
	job.logger.Info("step images exported",
		logging.String(logging.FieldEventType, "render_complete"),
		logging.Int("steps", len(valid)),
		logging.Int("discarded", len(all)-len(valid)),
		logging.Duration("elapsed", elapsed),
	)
	return valid, nil
}

func (r *Runner) pollProgress(ctx context.Context, job renderJob, total int) {
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()
	sampler := logging.NewProgressSampler(10)
	last := -1
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		done := countStepImages(job.stepsDir)
		if done == last {
			continue
		}
		last = done
		if job.spec.Progress != nil {
			job.spec.Progress(done, total)
		}
		if sampler.ShouldLog(done, total) {
			job.logger.Info("render progress",
				logging.String(logging.FieldEventType, "render_progress"),
				logging.Int("steps_done", done),
				logging.Int("steps_total", total),
			)
		}
	}
}

// exportBOM runs the parts-list export. It returns the CSV path on success
// and "" otherwise; failures are logged and never fail the job.
func (r *Runner) exportBOM(ctx context.Context, job renderJob) string {
	if err := os.MkdirAll(job.instructionsDir, 0o755); err != nil {
		logging.WarnWithContext(job.logger, "parts list export skipped", "bom_failed", logging.Error(err))
		return ""
	}
	bomPath := filepath.Join(job.instructionsDir, bomFileName)
	jobCtx := ctx
	if timeout := r.jobTimeout(job.spec); timeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	args := []string{"-l", job.library, job.spec.SourcePath, "--export-csv", bomPath}
	if err := r.exec.Run(jobCtx, job.executable, args, nil); err != nil {
		logging.WarnWithContext(job.logger, "parts list export failed", "bom_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "no bill of materials for this run"),
		)
		return ""
	}
	info, err := os.Stat(bomPath)
	if err != nil || info.Size() == 0 {
		logging.WarnWithContext(job.logger, "parts list export produced no data", "bom_failed",
			logging.String(logging.FieldImpact, "no bill of materials for this run"),
		)
		return ""
	}
	job.logger.Info("parts list exported", logging.String("bom_path", bomPath))
	return bomPath
}

func failure(err error) Outcome {
	return Outcome{Kind: KindFailure, Err: err}
}

// lineTail keeps the last n lines written to it.
type lineTail struct {
	mu    sync.Mutex
	n     int
	lines []string
}

func newLineTail(n int) *lineTail {
	return &lineTail{n: n}
}

func (t *lineTail) add(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines = append(t.lines, line)
	if len(t.lines) > t.n {
		t.lines = t.lines[len(t.lines)-t.n:]
	}
}

func (t *lineTail) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.Join(t.lines, "\n")
}
