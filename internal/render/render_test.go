package render_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
	"golang.org/x/sys/unix"

	"brickkit/internal/catalog"
	"brickkit/internal/config"
	"brickkit/internal/documents"
	"brickkit/internal/render"
	"brickkit/internal/services"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const modelWithSteps = `0 FILE main.ldr
1 4 0 0 0 1 0 0 0 1 0 0 0 1 3001.dat
0 STEP
1 4 0 -24 0 1 0 0 0 1 0 0 0 1 3001.dat
0 STEP
`

const modelWithoutSteps = `0 FILE main.ldr
1 4 0 0 0 1 0 0 0 1 0 0 0 1 3001.dat
`

// scriptHeader parses the renderer arguments the runner passes and handles
// the version probe and the parts-list export. The frame-export body is
// appended per test; $out holds the step.png pattern and $dir its directory.
const scriptHeader = `#!/bin/sh
echo "$@" >> "%s"
if [ "$1" = "--version" ]; then echo "LeoCAD 23.03"; exit 0; fi
out=""
csv=""
while [ $# -gt 0 ]; do
  case "$1" in
    -i) out="$2"; shift ;;
    --export-csv) csv="$2"; shift ;;
  esac
  shift
done
if [ -n "$csv" ]; then
%s
fi
dir=$(dirname "$out")
`

const goodBOM = `  printf 'Part Name,Color,Count\nBrick 2 x 4,Red,2\n' > "$csv"
  exit 0`

type fixture struct {
	dir     string
	argsLog string
	source  string
	cfg     config.Renderer
}

func newFixture(t *testing.T, model, bomBody, frameBody string) *fixture {
	t.Helper()
	dir := t.TempDir()
	library := filepath.Join(dir, "ldraw")
	if err := os.MkdirAll(filepath.Join(library, "parts"), 0o755); err != nil {
		t.Fatal(err)
	}
	source := filepath.Join(dir, "model.mpd")
	if err := os.WriteFile(source, []byte(model), 0o644); err != nil {
		t.Fatal(err)
	}
	argsLog := filepath.Join(dir, "args.log")
	script := filepath.Join(dir, "leocad")
	body := fmt.Sprintf(scriptHeader, argsLog, bomBody) + frameBody + "\n"
	if err := os.WriteFile(script, []byte(body), 0o755); err != nil {
		t.Fatal(err)
	}
	return &fixture{
		dir:     dir,
		argsLog: argsLog,
		source:  source,
		cfg: config.Renderer{
			Executable:       script,
			LibraryPath:      library,
			TimeoutSeconds:   30,
			Width:            1280,
			Height:           720,
			StepCeiling:      15,
			MinArtifactBytes: 1024,
		},
	}
}

func (f *fixture) spec() render.JobSpec {
	return render.JobSpec{
		SourcePath:  f.source,
		OutputDir:   filepath.Join(f.dir, "out"),
		StepCeiling: 15,
		Model:       catalog.Candidate{ID: "6601", DisplayName: "Ice Cream Truck"},
	}
}

func (f *fixture) invocations(t *testing.T) []string {
	t.Helper()
	data, err := os.ReadFile(f.argsLog)
	if err != nil {
		t.Fatal(err)
	}
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

const writeTwoSteps = `head -c 2048 /dev/zero > "$dir/step01.png"
head -c 2048 /dev/zero > "$dir/step02.png"
printf x > "$dir/step03.png"
echo "Saved '$dir/step01.png'"
echo "warning: fading" >&2
exit 0`

func TestRunnerSuccess(t *testing.T) {
	f := newFixture(t, modelWithSteps, goodBOM, writeTwoSteps)
	runner := render.NewRunner(f.cfg, render.WithDocumentRenderer(documents.HTMLBooklet{}))

	out := runner.Run(context.Background(), f.spec())
	if out.Kind != render.KindSuccess {
		t.Fatalf("kind = %s, err = %v", out.Kind, out.Err)
	}
	stepsDir := filepath.Join(f.dir, "out", "instructions", "steps")
	want := []string{filepath.Join(stepsDir, "step01.png"), filepath.Join(stepsDir, "step02.png")}
	if strings.Join(out.StepPaths, ",") != strings.Join(want, ",") {
		t.Fatalf("step paths = %v, want %v", out.StepPaths, want)
	}
	if out.StepCount != 2 {
		t.Fatalf("step count = %d", out.StepCount)
	}
	if out.BOMPath != filepath.Join(f.dir, "out", "instructions", "bom.csv") {
		t.Fatalf("bom path = %q", out.BOMPath)
	}
	if out.DocumentPath == "" {
		t.Fatal("expected instruction document")
	}
	if out.Detail() != "Generated 2 step images" {
		t.Fatalf("detail = %q", out.Detail())
	}

	calls := f.invocations(t)
	var frame string
	for _, call := range calls {
		if strings.Contains(call, "-i ") {
			frame = call
		}
	}
	wantFrame := fmt.Sprintf("-l %s %s -i %s -w 1280 -h 720 -f 1 -t 15 --fade-steps --highlight --viewpoint home",
		f.cfg.LibraryPath, f.source, filepath.Join(stepsDir, "step.png"))
	if frame != wantFrame {
		t.Fatalf("frame args = %q\nwant %q", frame, wantFrame)
	}
}

func TestRunnerZeroStepsExportsBOMOnly(t *testing.T) {
	f := newFixture(t, modelWithoutSteps, goodBOM, "echo should-not-run >&2\nexit 1")
	out := render.NewRunner(f.cfg).Run(context.Background(), f.spec())
	if out.Kind != render.KindPartialNoSteps {
		t.Fatalf("kind = %s, err = %v", out.Kind, out.Err)
	}
	if out.Err != nil {
		t.Fatalf("unexpected error %v", out.Err)
	}
	if out.BOMPath == "" {
		t.Fatal("expected BOM path")
	}
	for _, call := range f.invocations(t) {
		if strings.Contains(call, "-i ") {
			t.Fatalf("frame job should not run: %q", call)
		}
	}
	if out.Detail() != "No steps found in model" {
		t.Fatalf("detail = %q", out.Detail())
	}
}

func TestRunnerZeroStepsWithoutBOMIsStillPartial(t *testing.T) {
	f := newFixture(t, modelWithoutSteps, "  exit 2", "exit 1")
	out := render.NewRunner(f.cfg).Run(context.Background(), f.spec())
	if out.Kind != render.KindPartialNoSteps || out.BOMPath != "" {
		t.Fatalf("outcome = %+v", out)
	}
}

func TestRunnerBOMFailureDoesNotFailSteps(t *testing.T) {
	f := newFixture(t, modelWithSteps, "  exit 1", writeTwoSteps)
	out := render.NewRunner(f.cfg).Run(context.Background(), f.spec())
	if out.Kind != render.KindSuccess {
		t.Fatalf("kind = %s, err = %v", out.Kind, out.Err)
	}
	if out.BOMPath != "" {
		t.Fatalf("bom path = %q, want empty", out.BOMPath)
	}
}

func TestRunnerTimeoutTerminatesRenderer(t *testing.T) {
	// The renderer ignores SIGTERM so the runner has to escalate to SIGKILL.
	frame := `echo $$ > "$dir/renderer.pid"
trap '' TERM
while true; do sleep 1; done`
	f := newFixture(t, modelWithSteps, goodBOM, frame)
	spec := f.spec()
	spec.Timeout = time.Second

	started := time.Now()
	out := render.NewRunner(f.cfg).Run(context.Background(), spec)
	elapsed := time.Since(started)

	if out.Kind != render.KindFailure {
		t.Fatalf("kind = %s", out.Kind)
	}
	var timeoutErr *render.TimeoutError
	if !errors.As(out.Err, &timeoutErr) {
		t.Fatalf("expected *TimeoutError, got %v", out.Err)
	}
	if !errors.Is(out.Err, services.ErrTimeout) {
		t.Fatal("timeout error should carry the timeout marker")
	}
	if msg := out.Err.Error(); !strings.HasPrefix(msg, "LeoCAD process timed out after 1 seconds (elapsed ") {
		t.Fatalf("message = %q", msg)
	}
	if timeoutErr.Elapsed < time.Second {
		t.Fatalf("elapsed = %s, want at least the limit", timeoutErr.Elapsed)
	}
	if elapsed > 7*time.Second {
		t.Fatalf("runner took %s to give up", elapsed)
	}

	data, err := os.ReadFile(filepath.Join(f.dir, "out", "instructions", "steps", "renderer.pid"))
	if err != nil {
		t.Fatalf("read pid: %v", err)
	}
	var pid int
	if _, err := fmt.Sscanf(strings.TrimSpace(string(data)), "%d", &pid); err != nil {
		t.Fatalf("parse pid: %v", err)
	}
	if err := unix.Kill(pid, 0); !errors.Is(err, unix.ESRCH) {
		t.Fatalf("renderer process %d still present (kill -0: %v)", pid, err)
	}
}

func TestRunnerTimeoutWithShortGrace(t *testing.T) {
	frame := `trap '' TERM
while true; do sleep 1; done`
	f := newFixture(t, modelWithSteps, goodBOM, frame)
	spec := f.spec()
	spec.Timeout = 200 * time.Millisecond

	started := time.Now()
	out := render.NewRunner(f.cfg, render.WithTermGrace(100*time.Millisecond)).Run(context.Background(), spec)
	if !render.IsTimeout(out.Err) {
		t.Fatalf("expected timeout, got %v", out.Err)
	}
	if elapsed := time.Since(started); elapsed > 3*time.Second {
		t.Fatalf("runner took %s with a short grace period", elapsed)
	}
}

func TestRunnerCancellation(t *testing.T) {
	f := newFixture(t, modelWithSteps, goodBOM, "sleep 30")
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(200*time.Millisecond, cancel)

	out := render.NewRunner(f.cfg).Run(ctx, f.spec())
	if !errors.Is(out.Err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", out.Err)
	}
	if render.IsTimeout(out.Err) {
		t.Fatal("cancellation must not be reported as a timeout")
	}
}

func TestRunnerNonZeroExit(t *testing.T) {
	f := newFixture(t, modelWithSteps, goodBOM, "echo 'bad model' >&2\nexit 3")
	out := render.NewRunner(f.cfg).Run(context.Background(), f.spec())
	var exitErr *render.ExitError
	if !errors.As(out.Err, &exitErr) {
		t.Fatalf("expected *ExitError, got %v", out.Err)
	}
	if exitErr.Code != 3 || !strings.Contains(exitErr.Stderr, "bad model") {
		t.Fatalf("exit error = %+v", exitErr)
	}
	if !errors.Is(out.Err, services.ErrExternalTool) {
		t.Fatal("exit error should carry the external tool marker")
	}
}

func TestRunnerRejectsEmptyArtifacts(t *testing.T) {
	tests := []struct {
		name   string
		frame  string
		reason string
	}{
		{"no images", "exit 0", "No instructions exported"},
		{"tiny images", "printf x > \"$dir/step01.png\"\nexit 0", "empty or corrupted"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, modelWithSteps, goodBOM, tt.frame)
			out := render.NewRunner(f.cfg).Run(context.Background(), f.spec())
			var exitErr *render.ExitError
			if !errors.As(out.Err, &exitErr) {
				t.Fatalf("expected *ExitError, got %v", out.Err)
			}
			if exitErr.Code != 0 || !strings.Contains(exitErr.Error(), tt.reason) {
				t.Fatalf("exit error = %+v", exitErr)
			}
		})
	}
}

func TestRunnerDrainsNoisyRenderer(t *testing.T) {
	frame := `i=0
while [ $i -lt 20000 ]; do
  echo "stdout line $i with some padding to fill the pipe buffer quickly"
  echo "stderr line $i with some padding to fill the pipe buffer quickly" >&2
  i=$((i+1))
done
head -c 2048 /dev/zero > "$dir/step01.png"
exit 0`
	f := newFixture(t, modelWithSteps, goodBOM, frame)
	out := render.NewRunner(f.cfg).Run(context.Background(), f.spec())
	if out.Kind != render.KindSuccess {
		t.Fatalf("kind = %s, err = %v", out.Kind, out.Err)
	}
}

func TestRunnerReportsProgress(t *testing.T) {
	frame := `head -c 2048 /dev/zero > "$dir/step01.png"
sleep 1
head -c 2048 /dev/zero > "$dir/step02.png"
sleep 1
exit 0`
	f := newFixture(t, modelWithSteps, goodBOM, frame)
	var (
		mu   sync.Mutex
		seen []int
	)
	spec := f.spec()
	spec.Progress = func(done, total int) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, done)
		if total != 2 {
			t.Errorf("total = %d, want 2 step markers", total)
		}
	}
	out := render.NewRunner(f.cfg, render.WithPollInterval(50*time.Millisecond)).Run(context.Background(), spec)
	if out.Kind != render.KindSuccess {
		t.Fatalf("kind = %s, err = %v", out.Kind, out.Err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(seen) == 0 {
		t.Fatal("expected progress callbacks")
	}
	for i := 1; i < len(seen); i++ {
		if seen[i] < seen[i-1] {
			t.Fatalf("progress went backwards: %v", seen)
		}
	}
}

func TestRunnerPreconditions(t *testing.T) {
	f := newFixture(t, modelWithSteps, goodBOM, writeTwoSteps)

	missingRenderer := f.cfg
	missingRenderer.Executable = filepath.Join(f.dir, "no-such-leocad")
	missingRenderer.LibraryPath = filepath.Join(f.dir, "no-such-library")

	missingLibrary := f.cfg
	missingLibrary.LibraryPath = filepath.Join(f.dir, "no-such-library")

	missingSource := f.spec()
	missingSource.SourcePath = filepath.Join(f.dir, "missing.mpd")

	tests := []struct {
		name string
		cfg  config.Renderer
		spec render.JobSpec
		want error
	}{
		{"renderer checked first", missingRenderer, missingSource, render.ErrRendererUnavailable},
		{"library", missingLibrary, missingSource, render.ErrLibraryMissing},
		{"source", f.cfg, missingSource, render.ErrSourceMissing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := render.NewRunner(tt.cfg).Run(context.Background(), tt.spec)
			if out.Kind != render.KindFailure || !errors.Is(out.Err, tt.want) {
				t.Fatalf("outcome = %+v, want %v", out, tt.want)
			}
		})
	}
}

func TestCountSteps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.ldr")
	if err := os.WriteFile(path, []byte(modelWithSteps+"0 STEP\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := render.CountSteps(path)
	if err != nil {
		t.Fatalf("CountSteps: %v", err)
	}
	if got != 3 {
		t.Fatalf("CountSteps = %d, want 3", got)
	}
	if _, err := render.CountSteps(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestFindLibrary(t *testing.T) {
	dir := t.TempDir()
	if got, err := render.FindLibrary(dir); err != nil || got != dir {
		t.Fatalf("FindLibrary(configured) = %q, %v", got, err)
	}
	if _, err := render.FindLibrary(filepath.Join(dir, "missing")); !errors.Is(err, render.ErrLibraryMissing) {
		t.Fatalf("expected ErrLibraryMissing, got %v", err)
	}

	home := t.TempDir()
	t.Setenv("HOME", home)
	if err := os.MkdirAll(filepath.Join(home, "LDraw", "parts"), 0o755); err != nil {
		t.Fatal(err)
	}
	got, err := render.FindLibrary("")
	if err != nil {
		t.Fatalf("FindLibrary(auto): %v", err)
	}
	// A system-wide library earlier in the search order also satisfies this.
	if !strings.HasSuffix(got, "LDraw") {
		t.Fatalf("FindLibrary(auto) = %q", got)
	}
}

func TestFindExecutableUsesProbe(t *testing.T) {
	script := filepath.Join(t.TempDir(), "leocad")
	if err := os.WriteFile(script, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	failing := func(context.Context, string) error { return errors.New("probe failed") }
	if _, err := render.FindExecutable(context.Background(), script, failing); !errors.Is(err, render.ErrRendererUnavailable) {
		t.Fatalf("expected ErrRendererUnavailable, got %v", err)
	}
	got, err := render.FindExecutable(context.Background(), script, nil)
	if err != nil || got != script {
		t.Fatalf("FindExecutable = %q, %v", got, err)
	}
}

func TestTimeoutErrorMessage(t *testing.T) {
	tests := []struct {
		err  render.TimeoutError
		want string
	}{
		{render.TimeoutError{Limit: 300 * time.Second, Elapsed: 305240 * time.Millisecond}, "LeoCAD process timed out after 300 seconds (elapsed 5m5.2s)"},
		{render.TimeoutError{Limit: 60 * time.Second}, "LeoCAD process timed out after 60 seconds"},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}
}
