// Package api defines wire-format types and converters for the HTTP API and
// the CLI's --json output. It translates the project aggregate into
// transport-friendly DTOs so consumers never depend on internal types.
//
// # Key Types
//
// ProjectSummary: one row of the project list with stage, scene and gap
// counts.
//
// ProjectDetail: the full per-scene view (bounds, match, transcript, script
// assessment) plus targets and dispatch records.
//
// StatusResponse: daemon runtime information, running steps and collaborator
// health.
//
// Request types carry validate tags and convert themselves into the domain
// calls they stand for.
//
// # Design Notes
//
// DTOs use snake_case JSON tags, matching the progress protocol and the
// publish webhook payload. Timestamps use RFC3339 with milliseconds. Seconds
// are reported as floats rounded to the millisecond.
package api
