package download

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"brickkit/internal/catalog"
	"brickkit/internal/fileutil"
	"brickkit/internal/textutil"
)

// Model is a downloaded model file ready for rendering.
type Model struct {
	Path   string
	SHA256 string
	Size   int64
}

// FetchModel downloads variant for candidate into dir and returns the model
// file path, named {set}_{clean name}.mpd. Archive variants are unpacked and
// the first .mpd or .ldr entry becomes the model file.
func (c *Client) FetchModel(ctx context.Context, candidate catalog.Candidate, variant catalog.Variant, dir string) (Model, error) {
	if strings.TrimSpace(variant.RetrievalRef) == "" {
		return Model{}, fmt.Errorf("variant %q has no download link", variant.Label)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Model{}, fmt.Errorf("create download dir: %w", err)
	}

	if variant.Format != catalog.FormatArchive {
		dest := filepath.Join(dir, textutil.ModelFileName(candidate.ID, candidate.DisplayName, ".mpd"))
		digest, err := c.Fetch(ctx, variant.RetrievalRef, dest)
		if err != nil {
			return Model{}, err
		}
		return Model{Path: dest, SHA256: digest.SHA256, Size: digest.Size}, nil
	}

	archive := filepath.Join(dir, textutil.ModelFileName(candidate.ID, candidate.DisplayName, ".zip"))
	if _, err := c.Fetch(ctx, variant.RetrievalRef, archive); err != nil {
		return Model{}, err
	}
	defer func() { _ = os.Remove(archive) }()
	return ExtractModel(archive, dir, candidate)
}

// ExtractModel copies the first .mpd or .ldr entry of the zip at archive into
// dir, named after candidate.
func ExtractModel(archive, dir string, candidate catalog.Candidate) (Model, error) {
	reader, err := zip.OpenReader(archive)
	if err != nil {
		return Model{}, fmt.Errorf("open archive: %w", err)
	}
	defer reader.Close()

	for _, entry := range reader.File {
		if entry.FileInfo().IsDir() {
			continue
		}
		ext := strings.ToLower(path.Ext(entry.Name))
		if ext != ".mpd" && ext != ".ldr" {
			continue
		}
		dest := filepath.Join(dir, textutil.ModelFileName(candidate.ID, candidate.DisplayName, ext))
		digest, err := extractEntry(entry, dest)
		if err != nil {
			return Model{}, err
		}
		return Model{Path: dest, SHA256: digest.SHA256, Size: digest.Size}, nil
	}
	return Model{}, ErrNoModelInArchive
}

func extractEntry(entry *zip.File, dest string) (fileutil.Digest, error) {
	rc, err := entry.Open()
	if err != nil {
		return fileutil.Digest{}, fmt.Errorf("open archive entry %s: %w", entry.Name, err)
	}
	defer rc.Close()
	digest, err := fileutil.WriteAtomic(dest, io.LimitReader(rc, maxModelBytes), 0o644)
	if err != nil {
		return fileutil.Digest{}, fmt.Errorf("extract %s: %w", entry.Name, err)
	}
	return digest, nil
}

// maxModelBytes bounds a single extracted model file.
const maxModelBytes = 256 << 20
