package render

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// executableCandidates are tried in order when no executable is configured.
var executableCandidates = []string{
	"leocad",
	"/Applications/LeoCAD.app/Contents/MacOS/LeoCAD",
	"/usr/local/bin/leocad",
	"/opt/homebrew/bin/leocad",
}

// libraryCandidates are tried in order when no library path is configured.
// A leading "~" is expanded against the user's home directory.
var libraryCandidates = []string{
	"/Applications/LDraw",
	"/usr/local/share/LDraw",
	"/opt/homebrew/share/LDraw",
	"/usr/share/LDraw",
	"~/LDraw",
	"~/Library/Application Support/LDraw",
}

const probeTimeout = 10 * time.Second

// Prober checks that a candidate executable actually runs.
type Prober func(ctx context.Context, path string) error

// ProbeVersion runs "<path> --version" and succeeds on a zero exit.
func ProbeVersion(ctx context.Context, path string) error {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, path, "--version") //nolint:gosec
	return cmd.Run()
}

// FindExecutable returns the first working renderer executable. A configured
// path is the only candidate when set.
func FindExecutable(ctx context.Context, configured string, probe Prober) (string, error) {
	if probe == nil {
		probe = ProbeVersion
	}
	candidates := executableCandidates
	if configured = strings.TrimSpace(configured); configured != "" {
		candidates = []string{configured}
	}
	for _, candidate := range candidates {
		path := candidate
		if !filepath.IsAbs(path) {
			resolved, err := exec.LookPath(path)
			if err != nil {
				continue
			}
			path = resolved
		} else if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := probe(ctx, path); err != nil {
			continue
		}
		return path, nil
	}
	return "", ErrRendererUnavailable
}

// FindLibrary returns the LDraw library directory. A configured path must
// exist; otherwise the well-known locations are searched for a directory
// containing "parts".
func FindLibrary(configured string) (string, error) {
	if configured = strings.TrimSpace(configured); configured != "" {
		if isDir(configured) {
			return configured, nil
		}
		return "", ErrLibraryMissing
	}
	home, _ := os.UserHomeDir()
	for _, candidate := range libraryCandidates {
		if strings.HasPrefix(candidate, "~/") {
			if home == "" {
				continue
			}
			candidate = filepath.Join(home, candidate[2:])
		}
		if isDir(filepath.Join(candidate, "parts")) {
			return candidate, nil
		}
	}
	return "", ErrLibraryMissing
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
