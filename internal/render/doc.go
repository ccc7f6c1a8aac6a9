// Package render drives the LeoCAD command-line renderer.
//
// A Runner checks that the renderer, the LDraw parts library and the model
// file are all present, counts step markers in the model, exports one PNG per
// step and a bill of materials, and optionally hands the result to a document
// renderer. The renderer process is supervised: both output streams are
// drained concurrently, progress is sampled from the output directory, and a
// timed-out or cancelled job is terminated with SIGTERM, then SIGKILL, and
// always reaped before Run returns.
package render
