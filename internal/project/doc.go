// Package project holds the Project aggregate: the scene timeline, per-scene
// match results, transcript and script entries, publish records, and the
// stage state machine that gates pipeline progress.
//
// All mutation goes through methods that validate first and commit second,
// so a rejected operation leaves the project unchanged. Callers serialize
// mutation per project with Locks and persist through the store's
// revision check.
package project
