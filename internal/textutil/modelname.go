package textutil

import (
	"regexp"
	"strings"
)

const maxModelNameRunes = 50

var (
	modelNameUnsafe    = regexp.MustCompile(`[{}()\[\]<>:"/\\|?*'!.]`)
	modelNameSeparator = regexp.MustCompile(`[\s,;_]+`)
)

// CleanModelName turns a catalogue display name into a file name stem.
// Unsafe punctuation is dropped, runs of whitespace and separators become a
// single underscore, and the result is capped at 50 runes. Empty results
// become "model".
func CleanModelName(name string) string {
	clean := modelNameUnsafe.ReplaceAllString(name, "")
	clean = modelNameSeparator.ReplaceAllString(clean, "_")
	clean = strings.Trim(clean, "_")
	if clean == "" {
		return "model"
	}
	if runes := []rune(clean); len(runes) > maxModelNameRunes {
		clean = strings.TrimRight(string(runes[:maxModelNameRunes]), "_")
	}
	return clean
}

// ModelFileName returns the on-disk name for a downloaded model file.
func ModelFileName(setNumber, displayName, ext string) string {
	ext = strings.TrimSpace(ext)
	if ext == "" {
		ext = ".mpd"
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return SanitizeSetNumber(setNumber) + "_" + CleanModelName(displayName) + strings.ToLower(ext)
}
