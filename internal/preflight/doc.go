// Package preflight provides readiness checks for the filesystem paths,
// collaborator commands, and webhook endpoints recut depends on.
//
// The daemon logs a dependency snapshot at startup using CheckSystemDeps,
// and the CLI "recut status" command prints RunAll results alongside it.
// Checks for unconfigured features are skipped.
package preflight
