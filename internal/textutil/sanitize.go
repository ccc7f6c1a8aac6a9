package textutil

import (
	"regexp"
	"strings"
)

var (
	setNumberUnsafe = regexp.MustCompile(`[/\\:*?"<>|{}\[\]()]+`)
	setNumberSpace  = regexp.MustCompile(`\s+`)
)

// SanitizeSetNumber makes a catalogue set number ("6929-1", "10/20") safe as
// the leading part of a file name. Separator characters become dashes, other
// unsafe punctuation is dropped, and an empty result becomes "unknown".
func SanitizeSetNumber(id string) string {
	id = strings.TrimSpace(id)
	id = strings.NewReplacer("/", "-", "\\", "-", ":", "-").Replace(id)
	id = setNumberUnsafe.ReplaceAllString(id, "")
	id = setNumberSpace.ReplaceAllString(id, "-")
	id = strings.Trim(id, "-.")
	if id == "" {
		return "unknown"
	}
	return id
}
