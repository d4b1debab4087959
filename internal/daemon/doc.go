// Package daemon coordinates the long-running recut process.
//
// It wires configuration, the project store and the pipeline runner into a
// single lifecycle with flock-based locking to prevent multiple instances,
// and serves the HTTP API: project CRUD, timeline/match/script edits, step
// execution as NDJSON progress streams, cancellation, retry and log tailing.
//
// Keep orchestration logic here: step semantics live in pipeline and project
// while the daemon focuses on startup, shutdown and transport.
package daemon
