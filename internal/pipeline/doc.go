// Package pipeline drives one request from free text to rendered
// instructions.
//
// A Coordinator walks each run through Analyzing, Searching, Selecting,
// Downloading and Rendering, advancing only when a stage succeeds. Every
// run gets its own directory under the output root, held under a file lock
// for the lifetime of the run. Progress is published to an injected
// Registry so CLI and HTTP callers can follow a run while it executes.
package pipeline
