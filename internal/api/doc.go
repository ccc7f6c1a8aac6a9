// Package api exposes the build pipeline over HTTP and defines the wire
// types it speaks.
//
// # Routes
//
// POST /api/runs starts a run in the background and answers with its id.
// GET /api/runs lists recorded runs plus the runs still in flight.
// GET /api/runs/{id} returns the live or recorded state of one run.
// GET /api/runs/{id}/events streams progress events as newline-delimited
// JSON until the run finishes or the client goes away.
// GET /api/runs/{id}/files/{path} serves an artifact from the run directory.
// POST /api/analyze returns the structured request for a prompt without
// running anything.
// GET /api/health reports the preflight checks.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Timestamps use RFC3339 with milliseconds.
// The analyzed request is passed through as json.RawMessage so it is not
// encoded twice. When a bearer token is configured every route requires it.
package api
