// Package reconcile predicts how long rewritten narration will take to speak
// and classifies the drift against the scene it has to fit.
//
// The estimate is units / (rate * tempo) minutes, where units are words for
// spaced scripts and characters for Japanese and Chinese, rate comes from a
// per-language table and tempo is the speech engine speed-up factor (> 1).
// Classification is advisory only; nothing in this package rejects a script.
package reconcile
