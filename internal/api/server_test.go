package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"brickkit/internal/analysis"
	"brickkit/internal/catalog"
	"brickkit/internal/history"
	"brickkit/internal/pipeline"
	"brickkit/internal/preflight"
	"brickkit/internal/render"
	"brickkit/internal/services"
)

type fakeRunner struct {
	registry *pipeline.Registry
	runDir   string
	release  chan struct{}

	mu      sync.Mutex
	next    int
	prompts []string
}

func (f *fakeRunner) NewRunID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	return "run-" + strconv.Itoa(f.next)
}

func (f *fakeRunner) RunWithID(ctx context.Context, runID, text string) *pipeline.Result {
	f.mu.Lock()
	f.prompts = append(f.prompts, text)
	f.mu.Unlock()

	started := time.Now()
	f.registry.Begin(runID, started)
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
		}
	}
	f.registry.Publish(pipeline.Event{RunID: runID, State: pipeline.StateSearching, Message: "Searching", Time: time.Now()})
	result := &pipeline.Result{
		RunID:      runID,
		Prompt:     text,
		State:      pipeline.StateDone,
		RunDir:     f.runDir,
		Summary:    "Generated 1 step images",
		StartedAt:  started,
		FinishedAt: time.Now(),
		Render: &render.Outcome{
			StepPaths: []string{filepath.Join(f.runDir, "instructions", "steps", "step01.png")},
			StepCount: 1,
			Kind:      render.KindSuccess,
		},
	}
	f.registry.Finish(result)
	return result
}

type fakeStore struct {
	runs []history.Run
	err  error
}

func (f fakeStore) List(_ context.Context, limit int) ([]history.Run, error) {
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.runs) {
		return f.runs[:limit], nil
	}
	return f.runs, nil
}

func (f fakeStore) Get(_ context.Context, runID string) (*history.Run, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, run := range f.runs {
		if run.RunID == runID {
			r := run
			return &r, nil
		}
	}
	return nil, nil
}

type fakeAnalyzer struct{}

func (fakeAnalyzer) Analyze(_ context.Context, text string) (catalog.Request, analysis.Mode) {
	return catalog.Request{Theme: "vehicles", Colors: []string{"red"}, Keywords: strings.Fields(text)}, analysis.ModeDirect
}

func newTestServer(t *testing.T, runner *fakeRunner, store RunStore, opts ...Option) *Server {
	t.Helper()
	deps := Deps{Runner: runner, Registry: runner.registry, Analyzer: fakeAnalyzer{}}
	if store != nil {
		deps.Store = store
	}
	srv, err := NewServer("127.0.0.1:0", deps, opts...)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return srv
}

func newRunner(t *testing.T) *fakeRunner {
	t.Helper()
	return &fakeRunner{registry: pipeline.NewRegistry(), runDir: t.TempDir()}
}

func doRequest(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return out
}

func TestNewServerRequiresRunnerAndRegistry(t *testing.T) {
	if _, err := NewServer(":0", Deps{}); err == nil {
		t.Fatal("expected error for missing deps")
	}
}

func TestStartRunStreamsEvents(t *testing.T) {
	runner := newRunner(t)
	runner.release = make(chan struct{})
	srv := newTestServer(t, runner, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/runs", "application/json", strings.NewReader(`{"prompt":"red race car"}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	var accepted RunAccepted
	if err := json.NewDecoder(resp.Body).Decode(&accepted); err != nil {
		t.Fatalf("decode accepted: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	if accepted.RunID != "run-1" || accepted.EventsURL != "/api/runs/run-1/events" {
		t.Fatalf("unexpected accepted payload: %+v", accepted)
	}

	stream, err := http.Get(ts.URL + accepted.EventsURL)
	if err != nil {
		t.Fatalf("get events: %v", err)
	}
	defer stream.Body.Close()
	if ct := stream.Header.Get("Content-Type"); ct != "application/x-ndjson" {
		t.Fatalf("unexpected content type %q", ct)
	}

	scanner := bufio.NewScanner(stream.Body)
	if !scanner.Scan() {
		t.Fatalf("expected first event: %v", scanner.Err())
	}
	states := []string{stateOf(t, scanner.Text())}
	close(runner.release)
	for scanner.Scan() {
		states = append(states, stateOf(t, scanner.Text()))
	}

	want := []string{"idle", "searching", "done"}
	if diff := cmp.Diff(want, states); diff != "" {
		t.Fatalf("event states mismatch (-want +got):\n%s", diff)
	}
	srv.Wait()
	if diff := cmp.Diff([]string{"red race car"}, runner.prompts); diff != "" {
		t.Fatalf("prompts mismatch (-want +got):\n%s", diff)
	}
}

func stateOf(t *testing.T, line string) string {
	t.Helper()
	var ev Event
	if err := json.Unmarshal([]byte(line), &ev); err != nil {
		t.Fatalf("decode event %q: %v", line, err)
	}
	return ev.State
}

func TestStartRunValidation(t *testing.T) {
	srv := newTestServer(t, newRunner(t), nil)
	h := srv.Handler()

	tests := []struct {
		name   string
		method string
		body   string
		status int
	}{
		{"empty prompt", http.MethodPost, `{"prompt":"   "}`, http.StatusBadRequest},
		{"bad json", http.MethodPost, `{"prompt":`, http.StatusBadRequest},
		{"wrong method", http.MethodDelete, "", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(t, h, tt.method, "/api/runs", tt.body)
			if w.Code != tt.status {
				t.Fatalf("expected %d, got %d (%s)", tt.status, w.Code, w.Body.String())
			}
		})
	}
}

func TestStartRunRejectsWhenBusy(t *testing.T) {
	runner := newRunner(t)
	runner.release = make(chan struct{})
	srv := newTestServer(t, runner, nil, WithMaxRuns(1))
	h := srv.Handler()

	if w := doRequest(t, h, http.MethodPost, "/api/runs", `{"prompt":"castle"}`); w.Code != http.StatusAccepted {
		t.Fatalf("first run: expected 202, got %d", w.Code)
	}
	if w := doRequest(t, h, http.MethodPost, "/api/runs", `{"prompt":"ship"}`); w.Code != http.StatusTooManyRequests {
		t.Fatalf("second run: expected 429, got %d", w.Code)
	}
	close(runner.release)
	srv.Wait()
	if w := doRequest(t, h, http.MethodPost, "/api/runs", `{"prompt":"ship"}`); w.Code != http.StatusAccepted {
		t.Fatalf("after release: expected 202, got %d", w.Code)
	}
	srv.Wait()
}

func TestGetRun(t *testing.T) {
	runner := newRunner(t)
	finished := time.Date(2026, 3, 1, 12, 0, 30, 0, time.UTC)
	store := fakeStore{runs: []history.Run{{
		RunID:         "old-run",
		Prompt:        "blue truck",
		Status:        services.StatusDone,
		State:         "done",
		StrategyLabel: "exact_prompt",
		StrategyQuery: "blue truck",
		ModelID:       "60056",
		ModelName:     "Tow Truck",
		StepCount:     12,
		StartedAt:     finished.Add(-30 * time.Second),
		FinishedAt:    finished,
	}}}
	srv := newTestServer(t, runner, store)
	h := srv.Handler()
	runner.registry.Begin("live-run", time.Now())

	t.Run("recorded", func(t *testing.T) {
		w := doRequest(t, h, http.MethodGet, "/api/runs/old-run", "")
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
		got := decode[RunResponse](t, w).Run
		if got.Model == nil || got.Model.ID != "60056" || got.Strategy == nil || got.Strategy.Label != "exact_prompt" {
			t.Fatalf("unexpected run: %+v", got)
		}
		if got.DurationSeconds != 30 || got.FinishedAt != "2026-03-01T12:00:30.000Z" {
			t.Fatalf("unexpected timing: %v %q", got.DurationSeconds, got.FinishedAt)
		}
	})
	t.Run("live", func(t *testing.T) {
		w := doRequest(t, h, http.MethodGet, "/api/runs/live-run", "")
		got := decode[RunResponse](t, w).Run
		if got.Status != StatusRunning || got.Latest == nil || got.Latest.State != "idle" {
			t.Fatalf("unexpected live run: %+v", got)
		}
	})
	t.Run("missing", func(t *testing.T) {
		if w := doRequest(t, h, http.MethodGet, "/api/runs/nope", ""); w.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", w.Code)
		}
	})
}

func TestGetRunStoreError(t *testing.T) {
	srv := newTestServer(t, newRunner(t), fakeStore{err: errors.New("database is locked")})
	w := doRequest(t, srv.Handler(), http.MethodGet, "/api/runs/x", "")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}

func TestListRuns(t *testing.T) {
	runner := newRunner(t)
	store := fakeStore{runs: []history.Run{
		{RunID: "b", Status: services.StatusFailed, State: "failed"},
		{RunID: "a", Status: services.StatusDone, State: "done"},
	}}
	srv := newTestServer(t, runner, store)
	runner.registry.Begin("live", time.Now())

	w := doRequest(t, srv.Handler(), http.MethodGet, "/api/runs?limit=1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	got := decode[RunListResponse](t, w)
	if len(got.Runs) != 1 || got.Runs[0].RunID != "b" {
		t.Fatalf("unexpected runs: %+v", got.Runs)
	}
	if len(got.Active) != 1 || got.Active[0].RunID != "live" {
		t.Fatalf("unexpected active runs: %+v", got.Active)
	}

	if w := doRequest(t, srv.Handler(), http.MethodGet, "/api/runs?limit=zero", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", w.Code)
	}
}

func TestEventsForRecordedRun(t *testing.T) {
	store := fakeStore{runs: []history.Run{{RunID: "old", State: "failed", Summary: "Model retrieval failed: boom"}}}
	srv := newTestServer(t, newRunner(t), store)
	w := doRequest(t, srv.Handler(), http.MethodGet, "/api/runs/old/events", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	ev := decode[Event](t, w)
	if ev.State != "failed" || ev.Message != "Model retrieval failed: boom" {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if w := doRequest(t, srv.Handler(), http.MethodGet, "/api/runs/unknown/events", ""); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestServeRunFile(t *testing.T) {
	runner := newRunner(t)
	steps := filepath.Join(runner.runDir, "instructions", "steps")
	if err := os.MkdirAll(steps, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(steps, "step01.png"), []byte("png-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(runner.runDir, ".run.lock"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	srv := newTestServer(t, runner, nil)
	runner.RunWithID(context.Background(), "run-9", "castle")
	h := srv.Handler()

	w := doRequest(t, h, http.MethodGet, "/api/runs/run-9/files/instructions/steps/step01.png", "")
	if w.Code != http.StatusOK || w.Body.String() != "png-bytes" {
		t.Fatalf("unexpected file response %d %q", w.Code, w.Body.String())
	}
	if w := doRequest(t, h, http.MethodGet, "/api/runs/run-9/files/.run.lock", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for hidden file, got %d", w.Code)
	}
	if w := doRequest(t, h, http.MethodGet, "/api/runs/run-9/files/instructions/bom.csv", ""); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing file, got %d", w.Code)
	}
	if w := doRequest(t, h, http.MethodGet, "/api/runs/other/files/instructions/bom.csv", ""); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown run, got %d", w.Code)
	}
}

func TestArtifactPath(t *testing.T) {
	tests := []struct {
		raw  string
		ok   bool
		want string
	}{
		{"instructions/bom.csv", true, filepath.Join("instructions", "bom.csv")},
		{"model.mpd", true, "model.mpd"},
		{"", false, ""},
		{"../etc/passwd", false, ""},
		{"instructions/../../x", false, ""},
		{"/abs/path", false, ""},
		{"instructions\\bom.csv", false, ""},
		{".run.lock", false, ""},
		{"instructions/.hidden/x", false, ""},
		{"instructions//bom.csv", false, ""},
	}
	for _, tt := range tests {
		got, ok := artifactPath(tt.raw)
		if ok != tt.ok || got != tt.want {
			t.Errorf("artifactPath(%q) = %q, %v; want %q, %v", tt.raw, got, ok, tt.want, tt.ok)
		}
	}
}

func TestAnalyze(t *testing.T) {
	srv := newTestServer(t, newRunner(t), nil)
	w := doRequest(t, srv.Handler(), http.MethodPost, "/api/analyze", `{"prompt":"red car"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	got := decode[AnalyzeResponse](t, w)
	var req catalog.Request
	if err := json.Unmarshal(got.Request, &req); err != nil {
		t.Fatalf("decode request: %v", err)
	}
	if got.Mode != "direct" || req.Theme != "vehicles" {
		t.Fatalf("unexpected analysis: %+v %+v", got, req)
	}
}

func TestHealth(t *testing.T) {
	runner := newRunner(t)
	srv, err := NewServer(":0", Deps{
		Runner:   runner,
		Registry: runner.registry,
		Health: func(context.Context) []preflight.Result {
			return []preflight.Result{
				{Name: "LeoCAD", Passed: false, Detail: "not found"},
				{Name: "LLM", Passed: false, Optional: true, Detail: "Disabled"},
			}
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	w := doRequest(t, srv.Handler(), http.MethodGet, "/api/health", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	got := decode[HealthResponse](t, w)
	if got.Healthy || len(got.Checks) != 2 {
		t.Fatalf("unexpected health: %+v", got)
	}
}

func TestAuthToken(t *testing.T) {
	srv := newTestServer(t, newRunner(t), nil, WithToken("secret"))
	h := srv.Handler()

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic secret", http.StatusUnauthorized},
		{"wrong token", "Bearer nope", http.StatusUnauthorized},
		{"valid", "Bearer secret", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			if w.Code != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, w.Code)
			}
		})
	}
}

func TestRequestIDHeader(t *testing.T) {
	srv := newTestServer(t, newRunner(t), nil)
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	if got := w.Header().Get("X-Request-ID"); got != "abc-123" {
		t.Fatalf("expected request id echoed, got %q", got)
	}

	w = doRequest(t, srv.Handler(), http.MethodGet, "/api/health", "")
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected generated request id")
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	srv := newTestServer(t, newRunner(t), nil)
	if err := srv.Listen(); err != nil {
		t.Fatalf("listen: %v", err)
	}
	if srv.Addr() == "" {
		t.Fatal("expected bound address")
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	resp, err := http.Get("http://" + srv.Addr() + "/api/health")
	if err != nil {
		t.Fatalf("get health: %v", err)
	}
	resp.Body.Close()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve returned %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not stop")
	}
}

func TestStartRunRefusedAfterShutdown(t *testing.T) {
	runner := newRunner(t)
	srv := newTestServer(t, runner, nil)
	if err := srv.Listen(); err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve returned %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not stop")
	}

	w := doRequest(t, srv.Handler(), http.MethodPost, "/api/runs", `{"prompt":"red car"}`)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503: %s", w.Code, w.Body.String())
	}
	runner.mu.Lock()
	defer runner.mu.Unlock()
	if runner.next != 0 || len(runner.prompts) != 0 {
		t.Fatalf("no run should start after shutdown, got %d ids and prompts %v", runner.next, runner.prompts)
	}
	srv.Wait()
}
