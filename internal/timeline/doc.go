// Package timeline models the ordered, contiguous scene list of an edited
// video and the validated edits an operator may apply to it.
//
// A Timeline always covers [0, duration) with half-open scenes whose indices
// run 0..n-1 and whose shared boundaries coincide. Every edit is validated on
// a copy before it is committed, so a rejected edit leaves the timeline
// untouched and returns a *ValidationError naming the scene and invariant.
// Successful edits return a Change so owners of per-scene data can remap or
// invalidate it.
package timeline
