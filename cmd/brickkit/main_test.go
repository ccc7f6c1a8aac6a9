package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"brickkit/internal/config"
	"brickkit/internal/history"
	"brickkit/internal/search"
	"brickkit/internal/services"
	"brickkit/internal/testsupport"
)

type cliResult struct {
	stdout string
	stderr string
	err    error
}

func runCLI(t *testing.T, args ...string) cliResult {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return cliResult{stdout: stdout.String(), stderr: stderr.String(), err: err}
}

func isolateEnv(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("OPENROUTER_API_KEY", "")
	t.Setenv("LDRAW_PATH", "")
	t.Setenv("LEOCAD_TIMEOUT", "")
	t.Setenv("BRICKKIT_OUTPUT_DIR", "")
	t.Setenv("BRICKKIT_API_TOKEN", "")
	t.Setenv("BRICKKIT_NTFY_TOPIC", "")
}

func catalogServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestConfigInitWritesSample(t *testing.T) {
	isolateEnv(t)
	target := filepath.Join(t.TempDir(), "nested", "config.toml")

	res := runCLI(t, "config", "init", "--path", target)
	if res.err != nil {
		t.Fatalf("config init: %v", res.err)
	}
	if !strings.Contains(res.stdout, "Wrote sample configuration to "+target) {
		t.Fatalf("unexpected output: %q", res.stdout)
	}
	if _, _, _, err := config.Load(target); err != nil {
		t.Fatalf("sample config does not load: %v", err)
	}

	res = runCLI(t, "config", "init", "--path", target)
	if res.err == nil || !strings.Contains(res.err.Error(), "already exists") {
		t.Fatalf("expected already exists error, got %v", res.err)
	}
	if res := runCLI(t, "config", "init", "--path", target, "--overwrite"); res.err != nil {
		t.Fatalf("overwrite: %v", res.err)
	}
}

func TestConfigShowMasksSecrets(t *testing.T) {
	isolateEnv(t)
	cfg := testsupport.NewConfig(t)
	cfg.LLM.APIKey = "sk-very-secret"
	cfg.Paths.APIToken = "token-secret"
	path := testsupport.WriteConfigFile(t, cfg)

	res := runCLI(t, "--config", path, "config", "show")
	if res.err != nil {
		t.Fatalf("config show: %v", res.err)
	}
	if strings.Contains(res.stdout, "sk-very-secret") || strings.Contains(res.stdout, "token-secret") {
		t.Fatalf("secrets leaked:\n%s", res.stdout)
	}
	if !strings.Contains(res.stdout, "********") || !strings.Contains(res.stdout, cfg.Paths.OutputDir) {
		t.Fatalf("unexpected config output:\n%s", res.stdout)
	}
}

func TestConfigValidate(t *testing.T) {
	isolateEnv(t)
	path := testsupport.WriteConfigFile(t, testsupport.NewConfig(t))

	res := runCLI(t, "--config", path, "config", "validate")
	if res.err != nil {
		t.Fatalf("config validate: %v", res.err)
	}
	if !strings.Contains(res.stdout, "Configuration valid") {
		t.Fatalf("unexpected output: %q", res.stdout)
	}
}

func TestPlanCommandJSON(t *testing.T) {
	isolateEnv(t)
	path := testsupport.WriteConfigFile(t, testsupport.NewConfig(t))

	res := runCLI(t, "--config", path, "plan", "--json", "red", "race", "car")
	if res.err != nil {
		t.Fatalf("plan: %v", res.err)
	}
	var report planReport
	if err := json.Unmarshal([]byte(res.stdout), &report); err != nil {
		t.Fatalf("decode plan %q: %v", res.stdout, err)
	}
	if len(report.Strategies) == 0 {
		t.Fatal("expected strategies")
	}
	first := report.Strategies[0]
	if first.Label != search.LabelExactPrompt || first.Query != "red race car" {
		t.Fatalf("unexpected first strategy: %+v", first)
	}
	if report.Mode != "direct" {
		t.Fatalf("expected direct analysis, got %q", report.Mode)
	}
	if len(report.Request.Colors) != 1 || report.Request.Colors[0] != "red" {
		t.Fatalf("unexpected colors: %v", report.Request.Colors)
	}
}

func TestPlanCommandTable(t *testing.T) {
	isolateEnv(t)
	path := testsupport.WriteConfigFile(t, testsupport.NewConfig(t))

	res := runCLI(t, "--config", path, "plan", "--direct", "small blue house")
	if res.err != nil {
		t.Fatalf("plan: %v", res.err)
	}
	for _, want := range []string{"Theme:", "Strategy", search.LabelExactPrompt, "small blue house"} {
		if !strings.Contains(res.stdout, want) {
			t.Fatalf("expected %q in output:\n%s", want, res.stdout)
		}
	}
}

func TestBuildRejectsBlankDescription(t *testing.T) {
	isolateEnv(t)
	path := testsupport.WriteConfigFile(t, testsupport.NewConfig(t))

	res := runCLI(t, "--config", path, "build", "   ")
	if res.err == nil || !strings.Contains(res.err.Error(), "description is required") {
		t.Fatalf("expected description error, got %v", res.err)
	}
}

func TestHistoryCommands(t *testing.T) {
	isolateEnv(t)
	cfg := testsupport.NewConfig(t)
	path := testsupport.WriteConfigFile(t, cfg)

	store, err := history.Open(cfg.Paths.HistoryDB)
	if err != nil {
		t.Fatalf("history.Open: %v", err)
	}
	started := time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC)
	for i, id := range []string{"run-old-0001", "run-new-0002"} {
		run := history.Run{
			RunID:      id,
			Prompt:     "red fire truck",
			Status:     services.StatusDone,
			State:      "done",
			ModelID:    "60002",
			ModelName:  "Fire Truck",
			StepCount:  7,
			StartedAt:  started.Add(time.Duration(i) * time.Hour),
			FinishedAt: started.Add(time.Duration(i)*time.Hour + 40*time.Second),
		}
		if err := store.Put(context.Background(), run); err != nil {
			t.Fatalf("put %s: %v", id, err)
		}
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	res := runCLI(t, "--config", path, "history", "list")
	if res.err != nil {
		t.Fatalf("history list: %v", res.err)
	}
	if !strings.Contains(res.stdout, "run-new-") || !strings.Contains(res.stdout, "60002 Fire Truck") {
		t.Fatalf("unexpected list output:\n%s", res.stdout)
	}

	res = runCLI(t, "--config", path, "history", "show", "run-old-0001")
	if res.err != nil {
		t.Fatalf("history show: %v", res.err)
	}
	if !strings.Contains(res.stdout, "Model:     60002 - Fire Truck") || !strings.Contains(res.stdout, "Took:      40s") {
		t.Fatalf("unexpected show output:\n%s", res.stdout)
	}

	res = runCLI(t, "--config", path, "history", "prune", "--keep", "1")
	if res.err != nil {
		t.Fatalf("history prune: %v", res.err)
	}
	if !strings.Contains(res.stdout, "Pruned 1 run(s)") {
		t.Fatalf("unexpected prune output: %q", res.stdout)
	}

	res = runCLI(t, "--config", path, "history", "show", "run-old-0001")
	if res.err == nil || !strings.Contains(res.err.Error(), "not found") {
		t.Fatalf("expected pruned run to be gone, got %v", res.err)
	}

	res = runCLI(t, "--config", path, "history", "delete", "run-new-0002")
	if res.err != nil {
		t.Fatalf("history delete: %v", res.err)
	}
	res = runCLI(t, "--config", path, "history", "list", "--json")
	if res.err != nil {
		t.Fatalf("history list --json: %v", res.err)
	}
	if strings.TrimSpace(res.stdout) != "[]" {
		t.Fatalf("expected empty JSON list, got %q", res.stdout)
	}
}

func TestCheckCommand(t *testing.T) {
	isolateEnv(t)
	catalogSrv := catalogServer(t)

	t.Run("passes", func(t *testing.T) {
		cfg := testsupport.NewConfig(t, testsupport.WithFakeRenderer(), testsupport.WithLibrary())
		cfg.Catalog.BaseURL = catalogSrv.URL
		cfg.Catalog.BrowserBin = testsupport.WriteExecutable(t, t.TempDir(), "chromium", "#!/bin/sh\nexit 0\n")
		path := testsupport.WriteConfigFile(t, cfg)

		res := runCLI(t, "--config", path, "check")
		if res.err != nil {
			t.Fatalf("check: %v\n%s", res.err, res.stdout)
		}
		if !strings.Contains(res.stdout, "All required checks passed") {
			t.Fatalf("unexpected output:\n%s", res.stdout)
		}
	})

	t.Run("missing library", func(t *testing.T) {
		cfg := testsupport.NewConfig(t, testsupport.WithFakeRenderer())
		cfg.Catalog.BaseURL = catalogSrv.URL
		cfg.Renderer.LibraryPath = filepath.Join(testsupport.BaseDir(cfg), "no-ldraw")
		path := testsupport.WriteConfigFile(t, cfg)

		res := runCLI(t, "--config", path, "check")
		if res.err == nil || !strings.Contains(res.err.Error(), "required check(s) failed") {
			t.Fatalf("expected failed checks, got %v", res.err)
		}
		if !strings.Contains(res.stdout, "fail") {
			t.Fatalf("expected a failing row:\n%s", res.stdout)
		}
	})
}

func TestRenderCommandLocalModel(t *testing.T) {
	isolateEnv(t)
	cfg := testsupport.NewConfig(t, testsupport.WithFakeRenderer(), testsupport.WithLibrary())
	path := testsupport.WriteConfigFile(t, cfg)

	model := filepath.Join(testsupport.BaseDir(cfg), "house.mpd")
	content := "0 FILE house.mpd\n1 4 0 0 0 1 0 0 0 1 0 0 0 1 3001.dat\n0 STEP\n1 4 0 -24 0 1 0 0 0 1 0 0 0 1 3001.dat\n0 STEP\n"
	if err := os.WriteFile(model, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	res := runCLI(t, "--config", path, "render", "--quiet", "--id", "house-1", "--name", "Small House", model)
	if res.err != nil {
		t.Fatalf("render: %v\n%s", res.err, res.stdout)
	}
	for _, want := range []string{"Status:    done", "Model:     house-1 - Small House", "Steps:     2", "Parts:"} {
		if !strings.Contains(res.stdout, want) {
			t.Fatalf("expected %q in output:\n%s", want, res.stdout)
		}
	}

	store := testsupport.MustOpenHistory(t, cfg)
	runs, err := store.List(context.Background(), 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(runs) != 1 || runs[0].ModelID != "house-1" || runs[0].StepCount != 2 {
		t.Fatalf("unexpected history: %+v", runs)
	}
}

func TestRenderCommandMissingFile(t *testing.T) {
	isolateEnv(t)
	path := testsupport.WriteConfigFile(t, testsupport.NewConfig(t))

	res := runCLI(t, "--config", path, "render", filepath.Join(t.TempDir(), "missing.mpd"))
	if res.err == nil || !strings.Contains(res.err.Error(), "model file") {
		t.Fatalf("expected model file error, got %v", res.err)
	}
}

func TestTestNotifyCommand(t *testing.T) {
	isolateEnv(t)

	t.Run("unconfigured", func(t *testing.T) {
		path := testsupport.WriteConfigFile(t, testsupport.NewConfig(t))
		res := runCLI(t, "--config", path, "test-notify")
		if res.err == nil || !strings.Contains(res.err.Error(), "ntfy_topic is not configured") {
			t.Fatalf("expected missing topic error, got %v", res.err)
		}
	})

	t.Run("sends", func(t *testing.T) {
		var (
			mu     sync.Mutex
			titles []string
		)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			titles = append(titles, r.Header.Get("Title"))
			mu.Unlock()
			w.WriteHeader(http.StatusOK)
		}))
		t.Cleanup(srv.Close)

		cfg := testsupport.NewConfig(t)
		cfg.Notifications.NtfyTopic = srv.URL + "/brickkit"
		path := testsupport.WriteConfigFile(t, cfg)

		res := runCLI(t, "--config", path, "test-notify")
		if res.err != nil {
			t.Fatalf("test-notify: %v", res.err)
		}
		if !strings.Contains(res.stdout, "Test notification sent to "+cfg.Notifications.NtfyTopic) {
			t.Fatalf("unexpected output: %q", res.stdout)
		}
		mu.Lock()
		defer mu.Unlock()
		if len(titles) != 1 || titles[0] != "brickkit - Test" {
			t.Fatalf("unexpected requests: %v", titles)
		}
	})
}
