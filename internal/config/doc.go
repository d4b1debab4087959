// Package config loads, normalizes, and validates recut configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment overrides loaded from
// the process environment or an adjacent .env file. The Config type centralizes
// every knob the daemon and CLI need: storage paths, matching policy, speech
// rate tuning, external command lines, and publish targets.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
