// Package documents assembles rendered step images and the bill of materials
// into a single instruction document.
package documents
