package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"brickkit/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// The output, log and history directories exist on return.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.OutputDir = filepath.Join(base, "output")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.HistoryDB = filepath.Join(base, "state", "history.db")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.LLM.APIKey = ""

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithLLM points the LLM settings at url with a test key.
func WithLLM(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.LLM.APIKey = "test"
		b.cfg.LLM.BaseURL = url
		b.cfg.LLM.Model = "test-model"
	}
}

// WithLibrary creates an LDraw library directory with a parts subdirectory.
func WithLibrary() ConfigOption {
	return func(b *configBuilder) {
		library := filepath.Join(b.baseDir, "ldraw")
		if err := os.MkdirAll(filepath.Join(library, "parts"), 0o755); err != nil {
			b.t.Fatalf("mkdir library: %v", err)
		}
		b.cfg.Renderer.LibraryPath = library
	}
}

// WithFakeRenderer installs FakeLeoCAD as the renderer executable.
func WithFakeRenderer() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Renderer.Executable = WriteExecutable(b.t, filepath.Join(b.baseDir, "bin"), "leocad", FakeLeoCAD)
		b.cfg.Renderer.MinArtifactBytes = 1
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.OutputDir)
}

// WriteConfigFile encodes cfg as TOML next to its temp directories and
// returns the file path.
func WriteConfigFile(t testing.TB, cfg *config.Config) string {
	t.Helper()
	raw, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	path := filepath.Join(BaseDir(cfg), "config.toml")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}
