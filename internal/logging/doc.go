// Package logging assembles structured slog loggers and formatting helpers used
// across recut.
//
// It owns the console/JSON handlers, centralizes level and output plumbing, and
// exposes context-aware helpers so pipeline code automatically tags log lines
// with project IDs, step names, and correlation IDs. A bounded StreamHub keeps
// recent events in memory for the daemon's log endpoint, and a no-op logger is
// provided for tests and wiring code that cannot fail.
package logging
