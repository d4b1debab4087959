// Package pipeline runs project steps as cancellable background tasks.
//
// A step reads a snapshot of the project, does its slow work without holding
// the project lock, and then commits its artifacts in one save under the lock.
// The commit is guarded by the snapshot's revision; if the project changed in
// the meantime the step's output is discarded with a conflict. Cancellation
// commits nothing, so the stage stays at the last fully committed value.
// External collaborator failures move the project to Failed with the last
// good stage recorded; Retry rewinds and runs the failed step again.
package pipeline
