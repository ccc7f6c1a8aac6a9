// Package notifications announces finished runs via ntfy.
//
// NewService returns an ntfy-backed Service when a topic is configured and a
// no-op otherwise, so callers never branch on configuration. Recorder adapts
// a Service to the pipeline's recorder hook.
package notifications
