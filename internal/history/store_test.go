package history_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"brickkit/internal/catalog"
	"brickkit/internal/history"
	"brickkit/internal/pipeline"
	"brickkit/internal/render"
	"brickkit/internal/selection"
	"brickkit/internal/services"
	"brickkit/internal/services/download"
)

func openStore(t *testing.T) *history.Store {
	t.Helper()
	store, err := history.Open(filepath.Join(t.TempDir(), "state", "history.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func successResult(id string, started time.Time) *pipeline.Result {
	return &pipeline.Result{
		RunID:        id,
		Prompt:       "small red car",
		State:        pipeline.StateDone,
		AnalysisMode: "direct",
		Request:      &catalog.Request{Theme: "regular_car", Colors: []string{"red"}},
		Strategy:     &catalog.Strategy{Label: "exact_prompt", Query: "small red car"},
		Choice: &selection.Choice{
			Candidate: catalog.ScoredCandidate{
				Candidate: catalog.Candidate{ID: "6610-1", DisplayName: "Red Car", Category: "Town"},
				Score:     0.8,
			},
			Kind: selection.ChoiceTopScore,
		},
		Variant: &catalog.Variant{Label: "Main Model", RetrievalRef: "https://omr.example/6610-1.mpd"},
		Model:   &download.Model{Path: "/out/run/6610-1_Red_Car.mpd", SHA256: "abc"},
		Render: &render.Outcome{
			Kind:      render.KindSuccess,
			StepCount: 2,
			StepPaths: []string{"/out/run/instructions/steps/step01.png", "/out/run/instructions/steps/step02.png"},
			BOMPath:   "/out/run/instructions/bom.csv",
		},
		Summary:    "Found model: 6610-1 - Red Car | Generated 2 step images | Generated BOM CSV",
		StartedAt:  started,
		FinishedAt: started.Add(42 * time.Second),
	}
}

func TestRecordAndGet(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if err := store.Record(ctx, successResult("run-1", started)); err != nil {
		t.Fatalf("Record: %v", err)
	}
	got, err := store.Get(ctx, "run-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil {
		t.Fatal("expected run")
	}
	if got.Status != services.StatusDone || got.ModelID != "6610-1" || got.ChoiceKind != "top_score" {
		t.Fatalf("unexpected run: %+v", got)
	}
	if len(got.Steps) != 2 || got.Steps[1] != "/out/run/instructions/steps/step02.png" {
		t.Fatalf("steps = %v", got.Steps)
	}
	if got.Duration() != 42*time.Second {
		t.Fatalf("duration = %s", got.Duration())
	}
	if got.RequestJSON == "" {
		t.Fatal("request should be stored")
	}
}

func TestGetUnknownRun(t *testing.T) {
	got, err := openStore(t).Get(context.Background(), "missing")
	if err != nil || got != nil {
		t.Fatalf("Get(missing) = %v, %v", got, err)
	}
}

func TestRecordFailedRun(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	res := &pipeline.Result{
		RunID:       "run-f",
		Prompt:      "unicorn",
		State:       pipeline.StateFailed,
		FailedStage: pipeline.StateSearching,
		Err:         services.Wrap(services.ErrNotFound, "searching", "", "no models found", nil),
		StartedAt:   time.Now(),
	}
	if err := store.Record(ctx, res); err != nil {
		t.Fatalf("Record: %v", err)
	}
	got, err := store.Get(ctx, "run-f")
	if err != nil || got == nil {
		t.Fatalf("Get: %v %v", got, err)
	}
	if got.Status != services.StatusReview || got.FailedStage != "searching" || got.ErrorMessage == "" {
		t.Fatalf("unexpected failed run: %+v", got)
	}
	if !got.FinishedAt.IsZero() {
		t.Fatalf("finished_at should be empty, got %s", got.FinishedAt)
	}
}

func TestRecordReplacesExistingRun(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	res := successResult("run-1", time.Now())
	if err := store.Record(ctx, res); err != nil {
		t.Fatal(err)
	}
	res.Render.StepPaths = res.Render.StepPaths[:1]
	res.Summary = "updated"
	if err := store.Record(ctx, res); err != nil {
		t.Fatal(err)
	}
	got, err := store.Get(ctx, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Summary != "updated" || len(got.Steps) != 1 {
		t.Fatalf("run not replaced: %+v", got)
	}
}

func TestListNewestFirstAndPrune(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		if err := store.Record(ctx, successResult(id, base.Add(time.Duration(i)*time.Second+time.Duration(i)*time.Millisecond))); err != nil {
			t.Fatal(err)
		}
	}
	runs, err := store.List(ctx, 2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(runs) != 2 || runs[0].RunID != "c" || runs[1].RunID != "b" {
		t.Fatalf("List order = %+v", runs)
	}

	removed, err := store.Prune(ctx, 1)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed != 2 {
		t.Fatalf("removed = %d, want 2", removed)
	}
	if got, _ := store.Get(ctx, "a"); got != nil {
		t.Fatal("oldest run should be pruned")
	}
}

func TestDelete(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	if err := store.Record(ctx, successResult("run-1", time.Now())); err != nil {
		t.Fatal(err)
	}
	ok, err := store.Delete(ctx, "run-1")
	if err != nil || !ok {
		t.Fatalf("Delete = %v, %v", ok, err)
	}
	ok, err = store.Delete(ctx, "run-1")
	if err != nil || ok {
		t.Fatalf("second Delete = %v, %v", ok, err)
	}
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	store, err := history.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Record(context.Background(), successResult("run-1", time.Now())); err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}
	reopened, err := history.Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	runs, err := reopened.List(context.Background(), 0)
	if err != nil || len(runs) != 1 {
		t.Fatalf("List after reopen = %v, %v", runs, err)
	}
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := history.Open(" "); err == nil {
		t.Fatal("expected error")
	}
}

func TestOpenRejectsOtherSchemaVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	store, err := history.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	_ = store.Close()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec("UPDATE schema_version SET version = 99"); err != nil {
		t.Fatal(err)
	}
	_ = db.Close()

	if _, err := history.Open(path); !errors.Is(err, history.ErrSchemaMismatch) {
		t.Fatalf("expected schema mismatch, got %v", err)
	}
}
