// Package preflight provides readiness checks for the external tools,
// services and filesystem paths that brickkit depends on.
//
// These checks run in two contexts:
//   - The CLI "brickkit check" command renders every result as a table.
//   - "brickkit serve" runs RunAll at startup and logs failures as warnings
//     so an operator sees a missing renderer before the first request.
//
// Checks for optional features are skipped when the feature is disabled.
package preflight
