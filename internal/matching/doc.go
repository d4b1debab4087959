// Package matching finds, for each scene of an edited video, the window of
// source footage it was cut from.
//
// Scenes and source episodes are described by frame fingerprints: 64-bit
// perceptual hashes sampled at a fixed interval. The Matcher slides a window
// the length of each scene across every episode, scores windows by mean frame
// similarity, and classifies the outcome:
//
//   - Resolved: one window clears the high threshold with no close rival.
//   - Ambiguous: several windows clear the low threshold within the ambiguity
//     margin of the best, or the best sits between the thresholds. All close
//     candidates are returned ranked by confidence, ties by earliest start.
//   - Unmatched: nothing clears the low threshold (a gap).
//
// ManuallyOverridden is set only by operator action through ValidateOverride and is
// never produced by the Matcher. The per-episode scan is capped by
// Policy.MaxWindowsPerEpisode and Policy.MaxFramesPerWindow so a long library
// cannot make one comparison unbounded. Comparisons run in parallel across
// scenes and episodes; results are deterministic for identical inputs.
package matching
