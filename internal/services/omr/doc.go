// Package omr reads the LDraw Official Model Repository through a headless
// Chromium session driven by go-rod.
//
// Search results and download links are extracted in the page with small
// scripts that return plain JSON; decoding that JSON into catalog types is
// done by pure functions so it can be tested without a browser.
package omr
