// Package download fetches model files from the catalogue.
//
// Fetch makes one GET per call and surfaces any failure as *Error; nothing is
// retried automatically. Writes go through fileutil.WriteAtomic, so a
// destination path either holds a complete file or nothing. FetchModel
// resolves a catalogue variant to a local .mpd/.ldr file, unpacking archive
// variants on the way.
package download
