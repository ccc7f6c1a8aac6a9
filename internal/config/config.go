package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	OutputDir string `toml:"output_dir"`
	LogDir    string `toml:"log_dir"`
	HistoryDB string `toml:"history_db"`
	APIBind   string `toml:"api_bind"`
	APIToken  string `toml:"api_token"`
}

// Catalog contains settings for the model repository and its browser session.
type Catalog struct {
	BaseURL                  string `toml:"base_url"`
	SearchURL                string `toml:"search_url"`
	BrowserBin               string `toml:"browser_bin"`
	Headless                 bool   `toml:"headless"`
	NavigationTimeoutSeconds int    `toml:"navigation_timeout_seconds"`
	DownloadTimeoutSeconds   int    `toml:"download_timeout_seconds"`
}

// Renderer contains settings for the external step renderer (LeoCAD).
type Renderer struct {
	Executable       string `toml:"executable"`
	LibraryPath      string `toml:"library_path"`
	TimeoutSeconds   int    `toml:"timeout_seconds"`
	Width            int    `toml:"width"`
	Height           int    `toml:"height"`
	StepCeiling      int    `toml:"step_ceiling"`
	MinArtifactBytes int64  `toml:"min_artifact_bytes"`
}

// Documents controls generation of the instruction document.
type Documents struct {
	Enabled bool `toml:"enabled"`
}

// LLM contains shared LLM connection settings used by request analysis and
// candidate selection.
type LLM struct {
	APIKey            string `toml:"api_key"`
	BaseURL           string `toml:"base_url"`
	Model             string `toml:"model"`
	Referer           string `toml:"referer"`
	Title             string `toml:"title"`
	TimeoutSeconds    int    `toml:"timeout_seconds"`
	SemanticAnalysis  bool   `toml:"semantic_analysis"`
	AdvisorySelection bool   `toml:"advisory_selection"`
}

// Notifications configures run completion messages.
type Notifications struct {
	NtfyTopic             string `toml:"ntfy_topic"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
	NotifySuccess         bool   `toml:"notify_success"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for brickkit.
//
// Configuration sections by subsystem:
//   - Paths: output, log and history locations plus the API bind address
//   - Catalog: model repository URLs and browser settings
//   - Renderer: LeoCAD executable, LDraw library and frame settings
//   - Documents: instruction document generation
//   - LLM: optional language model for analysis and selection
//   - Notifications: ntfy topic for finished runs
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Catalog       Catalog       `toml:"catalog"`
	Renderer      Renderer      `toml:"renderer"`
	Documents     Documents     `toml:"documents"`
	LLM           LLM           `toml:"llm"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/brickkit/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("brickkit.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the output and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.OutputDir, c.Paths.LogDir, filepath.Dir(c.Paths.HistoryDB)} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// RenderTimeout returns the renderer timeout as a duration.
func (c *Config) RenderTimeout() time.Duration {
	return time.Duration(c.Renderer.TimeoutSeconds) * time.Second
}

// NavigationTimeout returns the catalogue page navigation timeout.
func (c *Config) NavigationTimeout() time.Duration {
	return time.Duration(c.Catalog.NavigationTimeoutSeconds) * time.Second
}

// DownloadTimeout returns the per-request model download timeout.
func (c *Config) DownloadTimeout() time.Duration {
	return time.Duration(c.Catalog.DownloadTimeoutSeconds) * time.Second
}

// LLMEnabled reports whether an API key is available for LLM-backed features.
func (c *Config) LLMEnabled() bool {
	return strings.TrimSpace(c.LLM.APIKey) != ""
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
