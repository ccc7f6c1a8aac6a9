// Package llm provides an OpenRouter chat client and the two language-model
// features built on it: semantic request analysis and advisory candidate
// selection.
//
// The client retries on HTTP 408/429/5xx, empty replies and network
// timeouts with exponential backoff, honouring Retry-After. Context
// cancellation aborts retries immediately. Callers treat every failure as a
// signal to fall back to their deterministic path.
package llm
