// Package textutil cleans catalogue names for display and turns them into
// filesystem-safe file names.
//
// CleanModelName strips catalogue noise from a display name; ModelFileName
// combines it with SanitizeSetNumber to name files inside a run directory.
package textutil
