package render

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var stepMarker = []byte("0 STEP")

// CountSteps returns the number of step markers in an LDraw model file.
func CountSteps(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read model: %w", err)
	}
	return bytes.Count(data, stepMarker), nil
}

// listStepImages returns every step*.png in dir, sorted by name, and the
// subset larger than minBytes.
func listStepImages(dir string, minBytes int64) (all, valid []string, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, nil
		}
		return nil, nil, err
	}
	for _, entry := range entries {
		if entry.IsDir() || !isStepImage(entry.Name()) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		all = append(all, path)
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.Size() > minBytes {
			valid = append(valid, path)
		}
	}
	sort.Strings(all)
	sort.Strings(valid)
	return all, valid, nil
}

func countStepImages(dir string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	n := 0
	for _, entry := range entries {
		if !entry.IsDir() && isStepImage(entry.Name()) {
			n++
		}
	}
	return n
}

func isStepImage(name string) bool {
	return strings.HasPrefix(name, "step") && strings.HasSuffix(name, ".png")
}
