package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"brickkit/internal/analysis"
	"brickkit/internal/catalog"
	"brickkit/internal/history"
	"brickkit/internal/logging"
	"brickkit/internal/pipeline"
	"brickkit/internal/preflight"
	"brickkit/internal/services"
)

const (
	defaultMaxRuns   = 2
	defaultListLimit = 20
	maxRequestBytes  = 64 << 10
	shutdownTimeout  = 5 * time.Second
)

// Runner executes pipeline runs.
type Runner interface {
	NewRunID() string
	RunWithID(ctx context.Context, runID, text string) *pipeline.Result
}

// RunStore reads recorded runs.
type RunStore interface {
	List(ctx context.Context, limit int) ([]history.Run, error)
	Get(ctx context.Context, runID string) (*history.Run, error)
}

// Analyzer turns a prompt into a structured request.
type Analyzer interface {
	Analyze(ctx context.Context, text string) (catalog.Request, analysis.Mode)
}

// HealthFunc reports the preflight checks.
type HealthFunc func(ctx context.Context) []preflight.Result

// Deps are the collaborators behind the routes. Runner and Registry are
// required; the remaining routes answer 404 or an empty list without theirs.
type Deps struct {
	Runner   Runner
	Registry *pipeline.Registry
	Store    RunStore
	Analyzer Analyzer
	Health   HealthFunc
}

// Option customizes a Server.
type Option func(*Server)

// WithToken requires "Authorization: Bearer <token>" on every route.
func WithToken(token string) Option {
	return func(s *Server) { s.token = strings.TrimSpace(token) }
}

// WithMaxRuns bounds the number of runs executing at once.
func WithMaxRuns(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxRuns = n
		}
	}
}

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Server serves the run API.
type Server struct {
	bind    string
	token   string
	maxRuns int
	logger  *slog.Logger
	deps    Deps
	slots   *semaphore.Weighted

	mu       sync.Mutex
	runCtx   context.Context
	closing  bool
	listener net.Listener
	server   *http.Server
	runs     sync.WaitGroup
}

// NewServer builds a server listening on bind once Listen is called.
func NewServer(bind string, deps Deps, opts ...Option) (*Server, error) {
	if deps.Runner == nil || deps.Registry == nil {
		return nil, errors.New("api server requires a runner and a registry")
	}
	s := &Server{
		bind:    strings.TrimSpace(bind),
		maxRuns: defaultMaxRuns,
		logger:  logging.NewNop(),
		deps:    deps,
		runCtx:  context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.NewComponentLogger(s.logger, "api-server")
	s.slots = semaphore.NewWeighted(int64(s.maxRuns))

	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s, nil
}

// Handler returns the routed handler with authentication applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/analyze", s.handleAnalyze)
	mux.HandleFunc("/api/runs", s.handleRuns)
	mux.HandleFunc("/api/runs/{id}", s.handleRun)
	mux.HandleFunc("/api/runs/{id}/events", s.handleEvents)
	mux.HandleFunc("/api/runs/{id}/files/{path...}", s.handleFile)
	return s.withRequestID(authMiddleware(s.token, mux))
}

// Listen binds the listening socket.
func (s *Server) Listen() error {
	if s.bind == "" {
		return errors.New("api bind address is empty")
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()
	return nil
}

// Addr reports the bound address, or "" before Listen.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Serve answers requests until ctx is cancelled, then shuts the server down
// and waits for started runs to finish. Runs started through the API are
// cancelled together with ctx.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	if s.listener == nil {
		s.mu.Unlock()
		if err := s.Listen(); err != nil {
			return err
		}
		s.mu.Lock()
	}
	listener := s.listener
	s.runCtx = ctx
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.server.Serve(listener)
	}()
	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))

	var serveErr error
	select {
	case <-ctx.Done():
		s.stopAdmitting()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("api server shutdown incomplete", logging.Error(err))
		}
		<-errCh
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr = fmt.Errorf("api serve: %w", err)
		}
	}
	s.stopAdmitting()
	s.runs.Wait()
	return serveErr
}

// Wait blocks until every run started through the API has finished.
func (s *Server) Wait() {
	s.runs.Wait()
}

// stopAdmitting makes startRun refuse new runs, so no run is added to the
// wait group once Serve starts waiting on it.
func (s *Server) stopAdmitting() {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()
}

// admitRun counts a new run and returns its context, or false once the
// server is shutting down.
func (s *Server) admitRun() (context.Context, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return nil, false
	}
	s.runs.Add(1)
	return s.runCtx, true
}

func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := services.WithRequestID(r.Context(), id)
		logging.WithContext(ctx, s.logger).Debug("api request",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
		)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.deps.Health == nil {
		s.writeJSON(w, http.StatusOK, HealthResponse{Healthy: true, Checks: []HealthCheck{}})
		return
	}
	resp := FromPreflight(s.deps.Health(r.Context()))
	status := http.StatusOK
	if !resp.Healthy {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, resp)
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.deps.Analyzer == nil {
		s.writeError(w, http.StatusNotFound, "analysis is not available")
		return
	}
	prompt, ok := s.decodePrompt(w, r)
	if !ok {
		return
	}
	req, mode := s.deps.Analyzer.Analyze(r.Context(), prompt)
	raw, err := json.Marshal(req)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, AnalyzeResponse{Mode: string(mode), Request: raw})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listRuns(w, r)
	case http.MethodPost:
		s.startRun(w, r)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if value := strings.TrimSpace(r.URL.Query().Get("limit")); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed <= 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	resp := RunListResponse{Runs: []Run{}, Active: []Run{}}
	for _, id := range s.deps.Registry.Active() {
		if ev, _, ok := s.deps.Registry.Lookup(id); ok {
			resp.Active = append(resp.Active, liveRun(ev))
		}
	}
	if s.deps.Store != nil {
		runs, err := s.deps.Store.List(r.Context(), limit)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		for _, run := range runs {
			resp.Runs = append(resp.Runs, FromHistoryRun(run))
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) startRun(w http.ResponseWriter, r *http.Request) {
	prompt, ok := s.decodePrompt(w, r)
	if !ok {
		return
	}
	if !s.slots.TryAcquire(1) {
		s.writeError(w, http.StatusTooManyRequests, "too many runs in progress")
		return
	}

	runCtx, ok := s.admitRun()
	if !ok {
		s.slots.Release(1)
		s.writeError(w, http.StatusServiceUnavailable, "server is shutting down")
		return
	}

	runID := s.deps.Runner.NewRunID()
	// Registered before answering so the events route finds the run at once.
	s.deps.Registry.Begin(runID, time.Now())

	ctx := services.WithRequestID(runCtx, requestID(r))
	go func() {
		defer s.runs.Done()
		defer s.slots.Release(1)
		result := s.deps.Runner.RunWithID(ctx, runID, prompt)
		logging.WithContext(ctx, s.logger).Info("api run finished",
			logging.String(logging.FieldRunID, runID),
			logging.String("status", result.Status()),
		)
	}()

	s.logger.Info("api run started", logging.String(logging.FieldRunID, runID))
	s.writeJSON(w, http.StatusAccepted, RunAccepted{
		RunID:     runID,
		StatusURL: "/api/runs/" + runID,
		EventsURL: "/api/runs/" + runID + "/events",
	})
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	run, ok, err := s.lookupRun(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}
	s.writeJSON(w, http.StatusOK, RunResponse{Run: run})
}

// lookupRun prefers the registry, which holds live runs and recent results,
// and falls back to the history store.
func (s *Server) lookupRun(ctx context.Context, runID string) (Run, bool, error) {
	if ev, result, ok := s.deps.Registry.Lookup(runID); ok {
		if result != nil {
			return FromResult(result), true, nil
		}
		return liveRun(ev), true, nil
	}
	if s.deps.Store == nil {
		return Run{}, false, nil
	}
	recorded, err := s.deps.Store.Get(ctx, runID)
	if err != nil {
		return Run{}, false, err
	}
	if recorded == nil {
		return Run{}, false, nil
	}
	return FromHistoryRun(*recorded), true, nil
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	runID := r.PathValue("id")
	events, cancel, ok := s.deps.Registry.Subscribe(runID)
	if !ok {
		s.replayRecorded(w, r, runID)
		return
	}
	defer cancel()

	rc := http.NewResponseController(w)
	// Streams outlive the server write timeout.
	_ = rc.SetWriteDeadline(time.Time{})
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	enc := json.NewEncoder(w)
	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-events:
			if !open {
				return
			}
			if err := enc.Encode(FromEvent(ev)); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

// replayRecorded answers the events route for a run only known to history
// with its single terminal event.
func (s *Server) replayRecorded(w http.ResponseWriter, r *http.Request, runID string) {
	if s.deps.Store == nil {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}
	recorded, err := s.deps.Store.Get(r.Context(), runID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if recorded == nil {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(Event{
		RunID:   recorded.RunID,
		State:   recorded.State,
		Message: recorded.Summary,
		Time:    formatTime(recorded.FinishedAt),
	})
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	rel, ok := artifactPath(r.PathValue("path"))
	if !ok {
		s.writeError(w, http.StatusBadRequest, "invalid file path")
		return
	}
	runDir, err := s.runDir(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if runDir == "" {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}

	root, err := os.OpenRoot(runDir)
	if err != nil {
		s.writeError(w, http.StatusNotFound, "run directory not found")
		return
	}
	defer root.Close()
	file, err := root.Open(rel)
	if err != nil {
		s.writeError(w, http.StatusNotFound, "file not found")
		return
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil || info.IsDir() {
		s.writeError(w, http.StatusNotFound, "file not found")
		return
	}
	http.ServeContent(w, r, info.Name(), info.ModTime(), file)
}

func (s *Server) runDir(ctx context.Context, runID string) (string, error) {
	if _, result, ok := s.deps.Registry.Lookup(runID); ok && result != nil {
		return result.RunDir, nil
	}
	if s.deps.Store == nil {
		return "", nil
	}
	recorded, err := s.deps.Store.Get(ctx, runID)
	if err != nil || recorded == nil {
		return "", err
	}
	return recorded.RunDir, nil
}

// artifactPath validates a slash-separated path below a run directory.
// Hidden components, such as the run lock, are refused.
func artifactPath(raw string) (string, bool) {
	if raw == "" || strings.Contains(raw, "\\") {
		return "", false
	}
	cleaned := path.Clean(raw)
	if cleaned != raw || !filepath.IsLocal(filepath.FromSlash(cleaned)) {
		return "", false
	}
	for _, part := range strings.Split(cleaned, "/") {
		if strings.HasPrefix(part, ".") {
			return "", false
		}
	}
	return filepath.FromSlash(cleaned), true
}

func (s *Server) decodePrompt(w http.ResponseWriter, r *http.Request) (string, bool) {
	var body RunRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes))
	if err := dec.Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return "", false
	}
	prompt := strings.TrimSpace(body.Prompt)
	if prompt == "" {
		s.writeError(w, http.StatusBadRequest, "prompt is required")
		return "", false
	}
	return prompt, true
}

func requestID(r *http.Request) string {
	if id, ok := services.RequestIDFromContext(r.Context()); ok {
		return id
	}
	return ""
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
