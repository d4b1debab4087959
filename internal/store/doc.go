// Package store persists projects in SQLite.
//
// A project is stored as one header row plus ordered child rows keyed by
// scene_index (scenes, match results and candidates, transcript segments,
// script entries) and its dispatch records. Save rewrites the children in a
// single transaction guarded by the header's revision, so a writer holding a
// stale copy gets services.ErrConflict instead of clobbering newer work.
package store
