// Package main hosts the brickkit CLI entrypoint and command graph.
//
// The Cobra command tree turns terminal invocations into pipeline runs,
// catalogue searches, history queries, preflight checks and the HTTP API
// server. Configuration resolution, logger setup and pipeline wiring live in
// the command context so subcommands only deal with presentation.
package main
