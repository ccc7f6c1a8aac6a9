// Package services defines shared utilities consumed by the pipeline stages
// and external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, stage names, strategy labels, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper that translate failures
//     into consistent history statuses (failed vs review).
//
// Integrations with the catalogue, downloads, and the language model live in
// subpackages so the core pipeline only sees interfaces.
package services
