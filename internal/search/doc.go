// Package search plans catalogue queries for a request, scores the returned
// candidates, and runs strategies against a provider until one produces an
// acceptable result set.
//
// Planning and scoring are pure. The orchestrator is the only component that
// talks to a catalog.Provider.
package search
