// Package main hosts the recut CLI entrypoint and command graph.
//
// Commands open the project store and pipeline runner in-process, so they
// work with or without a daemon. The daemon subcommand serves the same
// runner over HTTP for remote operators. Every listing command accepts
// --json for scripting.
package main
