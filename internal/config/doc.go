// Package config loads, normalizes, and validates brickkit configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// OPENROUTER_API_KEY, LDRAW_PATH and LEOCAD_TIMEOUT. Always obtain settings
// through this package so downstream code receives sanitized paths and clear
// validation errors.
package config
