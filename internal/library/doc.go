// Package library exposes the read-only source episode library to the
// matching engine.
//
// Episodes are declared in a YAML manifest. Their frame fingerprints are
// computed by an external Fingerprinter and cached in a JSON file keyed by
// episode id; a cache entry is only trusted while the SHA-256 of the episode
// file still matches the hash recorded with it.
package library
