package pipeline

import (
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// State is a coordinator lifecycle position.
type State string

const (
	StateIdle        State = "idle"
	StateAnalyzing   State = "analyzing"
	StateSearching   State = "searching"
	StateSelecting   State = "selecting"
	StateDownloading State = "downloading"
	StateRendering   State = "rendering"
	StateDone        State = "done"
	StateFailed      State = "failed"
)

// Terminal reports whether no further transitions follow s.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// Label returns the display form of the state.
func (s State) Label() string {
	if s == "" {
		return ""
	}
	return cases.Title(language.English).String(string(s))
}
