// Package services defines shared helpers consumed by the pipeline steps, the
// project service, and the HTTP API.
//
// Key responsibilities:
//   - Context helpers that stamp project IDs, step names, and correlation
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper so failures can be
//     classified consistently (rejected edit, missing entity, failed external
//     step, caller cancellation).
//
// Use these helpers when wiring new steps so operational behaviour (error
// handling, observability, retries) stays uniform across the pipeline.
package services
